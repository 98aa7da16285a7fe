package state

import (
	"math/big"
	"testing"

	"pricebridge/crypto"
)

func TestAdjustResourceSupply(t *testing.T) {
	manager := newTestManager(t)
	resource := crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("proxy"))

	total, err := manager.ResourceSupply(resource)
	if err != nil {
		t.Fatalf("initial supply: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("expected zero supply, got %s", total)
	}

	updated, err := manager.adjustResourceSupply(resource, big.NewInt(1000))
	if err != nil {
		t.Fatalf("adjust supply: %v", err)
	}
	if updated.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected supply after mint: %s", updated)
	}

	updated, err = manager.adjustResourceSupply(resource, big.NewInt(-250))
	if err != nil {
		t.Fatalf("reduce supply: %v", err)
	}
	if updated.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("unexpected supply after reduction: %s", updated)
	}

	if _, err = manager.adjustResourceSupply(resource, big.NewInt(-1000)); err == nil {
		t.Fatalf("expected underflow protection")
	}
	total, err = manager.ResourceSupply(resource)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if total.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("underflow changed supply to %s", total)
	}
}
