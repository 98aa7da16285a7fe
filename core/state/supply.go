package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"pricebridge/crypto"
)

var resourceSupplyPrefix = []byte("resource/supply/")

func resourceSupplyKey(resource crypto.NodeID) []byte {
	return []byte(fmt.Sprintf("%s%x", resourceSupplyPrefix, resource[:]))
}

func (m *Manager) writeResourceSupply(resource crypto.NodeID, total *big.Int) error {
	if total == nil {
		total = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(total)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(resourceSupplyKey(resource)), encoded)
}

// ResourceSupply returns the total issued quantity of a resource in base units
// (atto for fungible resources, unit count for non-fungible ones). Missing
// entries default to zero.
func (m *Manager) ResourceSupply(resource crypto.NodeID) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager unavailable")
	}
	data, err := m.trie.Get(kvKey(resourceSupplyKey(resource)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	total := new(big.Int)
	if err := rlp.DecodeBytes(data, total); err != nil {
		return nil, err
	}
	return total, nil
}

// adjustResourceSupply increments the stored total supply by delta and returns
// the updated total.
func (m *Manager) adjustResourceSupply(resource crypto.NodeID, delta *big.Int) (*big.Int, error) {
	if delta == nil {
		delta = big.NewInt(0)
	}
	current, err := m.ResourceSupply(resource)
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("resource %x supply underflow", resource[:])
	}
	if err := m.writeResourceSupply(resource, updated); err != nil {
		return nil, err
	}
	return updated, nil
}
