package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"pricebridge/crypto"
	"pricebridge/storage"
	"pricebridge/storage/trie"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr, opts...)
}

func atto(t *testing.T, value string) *big.Int {
	t.Helper()
	amount, err := ToAtto(decimal.RequireFromString(value))
	if err != nil {
		t.Fatalf("to atto: %v", err)
	}
	return amount
}

type fixture struct {
	mgr    *Manager
	caller *crypto.NodeID
	owner  crypto.NodeID
	badge  crypto.NodeID
	record crypto.NodeID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	caller := new(crypto.NodeID)
	mgr := newTestManager(t, WithCaller(func() crypto.NodeID { return *caller }))
	f := fixture{
		mgr:    mgr,
		caller: caller,
		owner:  crypto.DeriveNodeID(crypto.EntityComponent, []byte("owner")),
		badge:  crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("badge")),
		record: crypto.DeriveNodeID(crypto.EntityNonFungibleResource, []byte("record")),
	}
	*caller = f.owner
	badge, err := mgr.CreateFungibleResource(f.badge, &ResourceDefinition{Kind: FungibleResource}, atto(t, "1"))
	if err != nil {
		t.Fatalf("create badge: %v", err)
	}
	if err := mgr.Deposit(f.owner, badge); err != nil {
		t.Fatalf("deposit badge: %v", err)
	}
	_, err = mgr.CreateNonFungibleResource(f.record, &ResourceDefinition{
		Kind:               NonFungibleResource,
		DataUpdater:        Require(f.badge),
		DataUpdaterUpdater: Require(f.badge),
	}, []NonFungibleEntry{{
		ID: 1,
		Fields: []NonFungibleField{
			{Name: "price", Value: []byte("0"), Mutable: true},
			{Name: "timestamp", Value: []byte("0"), Mutable: true},
			{Name: "label", Value: []byte("fixed")},
		},
	}})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return f
}

func (f fixture) zone(t *testing.T) *AuthZone {
	t.Helper()
	proof, err := f.mgr.CreateProofOfAmount(f.owner, f.badge, atto(t, "1"))
	if err != nil {
		t.Fatalf("create proof: %v", err)
	}
	return NewAuthZone(proof)
}

func fieldValue(t *testing.T, mgr *Manager, resource crypto.NodeID, name string) string {
	t.Helper()
	fields, ok, err := mgr.NonFungibleData(resource, 1)
	if err != nil || !ok {
		t.Fatalf("load data: ok=%v err=%v", ok, err)
	}
	for _, field := range fields {
		if field.Name == name {
			return string(field.Value)
		}
	}
	t.Fatalf("field %q missing", name)
	return ""
}

func TestUpdateNonFungibleDataAuthorized(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.UpdateNonFungibleData(f.zone(t), f.record, 1, []FieldUpdate{
		{Field: "price", Value: []byte("42.5")},
		{Field: "timestamp", Value: []byte("1000")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := fieldValue(t, f.mgr, f.record, "price"); got != "42.5" {
		t.Fatalf("unexpected price %q", got)
	}
	if got := fieldValue(t, f.mgr, f.record, "timestamp"); got != "1000" {
		t.Fatalf("unexpected timestamp %q", got)
	}
}

func TestUpdateNonFungibleDataRequiresProof(t *testing.T) {
	f := newFixture(t)
	for name, zone := range map[string]*AuthZone{"nil zone": nil, "empty zone": NewAuthZone()} {
		err := f.mgr.UpdateNonFungibleData(zone, f.record, 1, []FieldUpdate{{Field: "price", Value: []byte("7")}})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
	if got := fieldValue(t, f.mgr, f.record, "price"); got != "0" {
		t.Fatalf("price changed without authorization: %q", got)
	}
}

func TestUpdateNonFungibleDataAllOrNothing(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.UpdateNonFungibleData(f.zone(t), f.record, 1, []FieldUpdate{
		{Field: "price", Value: []byte("9")},
		{Field: "label", Value: []byte("changed")},
	})
	if !errors.Is(err, ErrImmutableField) {
		t.Fatalf("expected immutable field error, got %v", err)
	}
	if got := fieldValue(t, f.mgr, f.record, "price"); got != "0" {
		t.Fatalf("partial update observed: price=%q", got)
	}

	err = f.mgr.UpdateNonFungibleData(f.zone(t), f.record, 1, []FieldUpdate{{Field: "volume", Value: []byte("1")}})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestCreateProofRequiresBalance(t *testing.T) {
	f := newFixture(t)
	stranger := crypto.DeriveNodeID(crypto.EntityComponent, []byte("stranger"))
	*f.caller = stranger
	if _, err := f.mgr.CreateProofOfAmount(stranger, f.badge, atto(t, "1")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	*f.caller = f.owner
	if _, err := f.mgr.CreateProofOfAmount(f.owner, f.badge, atto(t, "2")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance for amount 2, got %v", err)
	}
}

func TestCreateProofRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	stranger := crypto.DeriveNodeID(crypto.EntityComponent, []byte("stranger"))
	for name, caller := range map[string]crypto.NodeID{"foreign component": stranger, "top level": {}} {
		*f.caller = caller
		if _, err := f.mgr.CreateProofOfAmount(f.owner, f.badge, atto(t, "1")); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized proof, got %v", name, err)
		}
	}

	bare := NewManager(f.mgr.trie)
	if _, err := bare.CreateProofOfAmount(f.owner, f.badge, atto(t, "1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized proof without a caller source, got %v", err)
	}
}

func TestDepositEmptiesBucket(t *testing.T) {
	mgr := newTestManager(t)
	owner := crypto.DeriveNodeID(crypto.EntityAccount, []byte("owner"))
	proxy := crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("proxy"))
	if _, err := mgr.CreateFungibleResource(proxy, &ResourceDefinition{
		Kind:         FungibleResource,
		Divisibility: DecimalScale,
		MintRule:     AllowAll(),
	}, nil); err != nil {
		t.Fatalf("create proxy: %v", err)
	}
	bucket, _, err := mgr.Mint(nil, proxy, atto(t, "10"))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	copied := bucket
	if err := mgr.Deposit(owner, bucket); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !bucket.IsEmpty() || !copied.IsEmpty() {
		t.Fatalf("deposited bucket still holds %s", copied.Quantity())
	}
	if err := mgr.Deposit(owner, copied); err != nil {
		t.Fatalf("deposit drained copy: %v", err)
	}
	held, err := mgr.VaultBalance(owner, proxy)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if held.Cmp(atto(t, "10")) != 0 {
		t.Fatalf("vault holds %s, want 10", FromAtto(held))
	}

	if err := mgr.Deposit(owner, Bucket{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected zero bucket to be rejected, got %v", err)
	}
}

func TestSetDataUpdaterRule(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.SetDataUpdaterRule(NewAuthZone(), f.record, AllowAll()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized role update, got %v", err)
	}
	if err := f.mgr.SetDataUpdaterRule(f.zone(t), f.record, DenyAll()); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	err := f.mgr.UpdateNonFungibleData(f.zone(t), f.record, 1, []FieldUpdate{{Field: "price", Value: []byte("1")}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected deny-all to block updates, got %v", err)
	}
}

func TestMintAccumulatesSupply(t *testing.T) {
	mgr := newTestManager(t)
	proxy := crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("proxy"))
	if _, err := mgr.CreateFungibleResource(proxy, &ResourceDefinition{
		Kind:         FungibleResource,
		Divisibility: DecimalScale,
		MintRule:     AllowAll(),
	}, nil); err != nil {
		t.Fatalf("create proxy: %v", err)
	}

	bucket, total, err := mgr.Mint(nil, proxy, atto(t, "10"))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !bucket.Quantity().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected bucket quantity %s", bucket.Quantity())
	}
	if _, total, err = mgr.Mint(nil, proxy, atto(t, "3.25")); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if !FromAtto(total).Equal(decimal.RequireFromString("13.25")) {
		t.Fatalf("unexpected total %s", FromAtto(total))
	}

	if _, _, err := mgr.Mint(nil, proxy, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestMintRespectsRuleAndDivisibility(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.mgr.Mint(f.zone(t), f.badge, atto(t, "1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected deny-all mint rule to reject, got %v", err)
	}

	coarse := crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("coarse"))
	if _, err := f.mgr.CreateFungibleResource(coarse, &ResourceDefinition{Kind: FungibleResource, MintRule: AllowAll()}, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := f.mgr.Mint(nil, coarse, atto(t, "0.5")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected divisibility error, got %v", err)
	}
}

func TestCreateResourceTwiceFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.CreateFungibleResource(f.badge, &ResourceDefinition{Kind: FungibleResource}, nil); !errors.Is(err, ErrResourceExists) {
		t.Fatalf("expected resource exists, got %v", err)
	}
}

func TestToAttoRejectsExcessPrecision(t *testing.T) {
	if _, err := ToAtto(decimal.RequireFromString("0.0000000000000000001")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	got, err := ToAtto(decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("to atto: %v", err)
	}
	if got.String() != "1500000000000000000" {
		t.Fatalf("unexpected atto %s", got)
	}
}
