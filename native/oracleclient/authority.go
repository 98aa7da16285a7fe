package oracleclient

import (
	"fmt"
	"math/big"

	"pricebridge/core/state"
	"pricebridge/crypto"
)

// badgeAmount is one whole admin badge in base units.
func badgeAmount() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(state.DecimalScale), nil)
}

// Authority holds the component's admin badge. The badge sits in the
// component's own vault and is only ever presented as a proof scoped to a
// single record mutation.
type Authority struct {
	owner crypto.NodeID
	badge crypto.NodeID
	open  bool
}

func newAuthority(owner, badge crypto.NodeID) *Authority {
	return &Authority{owner: owner, badge: badge}
}

// ApplyAuthorized applies every update to one non-fungible unit under a proof
// of the admin badge. All updates land in one write or none do. The scope
// cannot be reentered and is closed before returning.
func (a *Authority) ApplyAuthorized(st *state.Manager, resource crypto.NodeID, id state.NonFungibleLocalID, updates []state.FieldUpdate) error {
	if a.open {
		return ErrAuthorityBusy
	}
	a.open = true
	defer func() { a.open = false }()

	proof, err := st.CreateProofOfAmount(a.owner, a.badge, badgeAmount())
	if err != nil {
		return fmt.Errorf("oracleclient: admin proof: %w", err)
	}
	zone := state.NewAuthZone(proof)
	defer zone.Clear()
	return st.UpdateNonFungibleData(zone, resource, id, updates)
}
