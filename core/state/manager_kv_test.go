package state

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"pricebridge/crypto"
)

type kvRecord struct {
	Name   string
	Amount *big.Int
	Flags  []uint64
}

func TestKVRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	key := []byte("component/test/state")

	var missing kvRecord
	ok, err := mgr.KVGet(key, &missing)
	if err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	in := kvRecord{Name: "feed", Amount: big.NewInt(42), Flags: []uint64{1, 2}}
	if err := mgr.KVPut(key, &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out kvRecord
	ok, err = mgr.KVGet(key, &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != in.Name || out.Amount.Cmp(in.Amount) != 0 || len(out.Flags) != 2 {
		t.Fatalf("unexpected record %+v", out)
	}

	ok, err = mgr.KVGet(key, nil)
	if err != nil || !ok {
		t.Fatalf("existence probe: ok=%v err=%v", ok, err)
	}

	if err := mgr.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mgr.KVGet(key, &out)
	if err != nil || ok {
		t.Fatalf("expected deleted key, got ok=%v err=%v", ok, err)
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager(t)
	if err := mgr.KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected empty key error on put")
	}
	if _, err := mgr.KVGet([]byte{}, nil); err == nil {
		t.Fatalf("expected empty key error on get")
	}
	if err := mgr.KVDelete(nil); err == nil {
		t.Fatalf("expected empty key error on delete")
	}
}

func TestKVGuardsForeignKeys(t *testing.T) {
	self := crypto.DeriveNodeID(crypto.EntityComponent, []byte("self"))
	other := crypto.DeriveNodeID(crypto.EntityComponent, []byte("other"))
	var caller crypto.NodeID
	mgr := newTestManager(t, WithCaller(func() crypto.NodeID { return caller }))

	for _, key := range []string{"resource/nf/01/1", "resource/def/01", "vault/01/02"} {
		if err := mgr.KVPut([]byte(key), uint64(1)); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("put %s: expected unauthorized, got %v", key, err)
		}
		if err := mgr.KVDelete([]byte(key)); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("delete %s: expected unauthorized, got %v", key, err)
		}
	}

	ownKey := []byte(fmt.Sprintf("component/%x/state", self[:]))
	otherKey := []byte(fmt.Sprintf("component/%x/state", other[:]))
	if err := mgr.KVPut(otherKey, uint64(1)); err != nil {
		t.Fatalf("top-level write: %v", err)
	}

	caller = self
	if err := mgr.KVPut(ownKey, uint64(2)); err != nil {
		t.Fatalf("own write: %v", err)
	}
	if err := mgr.KVPut(otherKey, uint64(3)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected foreign component write to fail, got %v", err)
	}
	if err := mgr.KVDelete(otherKey); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected foreign component delete to fail, got %v", err)
	}
	var got uint64
	if _, err := mgr.KVGet(otherKey, &got); err != nil || got != 1 {
		t.Fatalf("foreign state changed: %d err=%v", got, err)
	}
}
