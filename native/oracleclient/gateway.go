package oracleclient

import (
	"errors"
	"fmt"

	"pricebridge/core"
	"pricebridge/core/types"
	"pricebridge/crypto"
)

// Caller performs a synchronous cross-component call inside the current unit
// of work. *core.Tx implements it.
type Caller interface {
	Call(addr crypto.Address, method string, args ...any) (any, error)
}

// Gateway reads the latest snapshot from the configured oracle component.
type Gateway struct {
	oracle crypto.Address
}

// NewGateway binds a gateway to the oracle component at addr.
func NewGateway(oracle crypto.Address) (*Gateway, error) {
	if oracle.IsZero() {
		return nil, fmt.Errorf("oracleclient: oracle address required")
	}
	if oracle.EntityType() != crypto.EntityComponent {
		return nil, fmt.Errorf("oracleclient: %s is not a component address", oracle)
	}
	return &Gateway{oracle: oracle}, nil
}

func (g *Gateway) Address() crypto.Address { return g.oracle }

// Fetch performs exactly one get_price call. A nil snapshot with a nil error
// means the oracle has nothing to report. An unknown address or method, or a
// result of the wrong shape, is returned as an error that aborts the unit.
func (g *Gateway) Fetch(caller Caller) (*types.PriceData, error) {
	result, err := caller.Call(g.oracle, MethodGetPrice)
	if err != nil {
		if errors.Is(err, core.ErrComponentNotFound) || errors.Is(err, core.ErrMethodNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrOracleUnreachable, err)
		}
		return nil, err
	}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case *types.PriceData:
		if v == nil {
			return nil, nil
		}
		snapshot := *v
		return &snapshot, nil
	case types.PriceData:
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: got %T from %s", ErrOracleMalformed, result, g.oracle)
	}
}
