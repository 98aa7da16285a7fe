package events

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"pricebridge/core/types"
)

const (
	// TypeTokenSupply is emitted whenever a resource supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
)

// baseUnitExp scales base units (10^-18) back to whole units.
const baseUnitExp = -18

// TokenSupply captures a supply delta for a fungible resource. Amounts are in
// base units.
type TokenSupply struct {
	Resource string
	Total    *big.Int
	Delta    *big.Int
	Reason   string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{}
	resource := strings.TrimSpace(e.Resource)
	if resource == "" {
		resource = "unknown"
	}
	attrs["resource"] = resource

	total := big.NewInt(0)
	if e.Total != nil {
		total = new(big.Int).Set(e.Total)
	}
	attrs["total"] = decimal.NewFromBigInt(total, baseUnitExp).String()

	if e.Delta != nil {
		attrs["delta"] = decimal.NewFromBigInt(e.Delta, baseUnitExp).String()
	}

	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}

	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
