package state

import (
	"fmt"
	"math/big"

	"pricebridge/crypto"
)

var vaultPrefix = []byte("vault/")

func vaultKey(owner, resource crypto.NodeID) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", vaultPrefix, owner[:], resource[:]))
}

type storedVault struct {
	Amount *big.Int
	IDs    []uint64
}

// Deposit moves the content of bucket into the vault owned by owner and
// leaves the bucket empty. Vault contents never leave the owner: there is no
// withdraw path.
func (m *Manager) Deposit(owner crypto.NodeID, bucket Bucket) error {
	if owner.IsZero() {
		return fmt.Errorf("state: vault owner required")
	}
	if bucket.content == nil {
		return fmt.Errorf("%w: bucket required", ErrInvalidAmount)
	}
	content := bucket.content
	key := vaultKey(owner, content.resource)
	vault := storedVault{Amount: big.NewInt(0)}
	if _, err := m.KVGet(key, &vault); err != nil {
		return err
	}
	if vault.Amount == nil {
		vault.Amount = big.NewInt(0)
	}
	vault.Amount = new(big.Int).Add(vault.Amount, content.amount)
	for _, id := range content.ids {
		vault.IDs = append(vault.IDs, uint64(id))
	}
	if err := m.put(key, &vault); err != nil {
		return err
	}
	content.amount = big.NewInt(0)
	content.ids = nil
	return nil
}

// VaultBalance returns the base-unit amount held by owner's vault of resource.
func (m *Manager) VaultBalance(owner, resource crypto.NodeID) (*big.Int, error) {
	var vault storedVault
	ok, err := m.KVGet(vaultKey(owner, resource), &vault)
	if err != nil {
		return nil, err
	}
	if !ok || vault.Amount == nil {
		return big.NewInt(0), nil
	}
	return vault.Amount, nil
}

// Proof attests that a vault holds at least Amount of a resource. Proofs can
// only be created from vaults through the manager.
type Proof struct {
	resource crypto.NodeID
	amount   *big.Int
}

func (p Proof) Resource() crypto.NodeID { return p.resource }

// CreateProofOfAmount creates a proof backed by owner's vault of resource.
// Only code running as owner may draw on its vaults.
func (m *Manager) CreateProofOfAmount(owner, resource crypto.NodeID, amount *big.Int) (Proof, error) {
	if caller := m.currentCaller(); caller.IsZero() || caller != owner {
		return Proof{}, fmt.Errorf("%w: vault of %x is not owned by the caller", ErrUnauthorized, owner[:])
	}
	if amount == nil || amount.Sign() <= 0 {
		return Proof{}, fmt.Errorf("%w: proof amount must be positive", ErrInvalidAmount)
	}
	balance, err := m.VaultBalance(owner, resource)
	if err != nil {
		return Proof{}, err
	}
	if balance.Cmp(amount) < 0 {
		return Proof{}, fmt.Errorf("%w: vault holds %s, proof needs %s", ErrInsufficientBalance, balance, amount)
	}
	return Proof{resource: resource, amount: new(big.Int).Set(amount)}, nil
}

// AuthZone collects the proofs presented to the resource subsystem for one
// operation.
type AuthZone struct {
	proofs []Proof
}

func NewAuthZone(proofs ...Proof) *AuthZone {
	return &AuthZone{proofs: append([]Proof(nil), proofs...)}
}

// Clear drops every proof held by the zone.
func (z *AuthZone) Clear() {
	if z == nil {
		return
	}
	z.proofs = nil
}

// Satisfies reports whether the zone's proofs satisfy rule. A nil zone only
// satisfies allow-all rules.
func (z *AuthZone) Satisfies(rule AccessRule) bool {
	if rule.AllowAll {
		return true
	}
	if len(rule.Require) == 0 || z == nil {
		return false
	}
	for _, proof := range z.proofs {
		if proof.amount != nil && proof.amount.Sign() > 0 && sameNode(rule.Require, proof.resource) {
			return true
		}
	}
	return false
}
