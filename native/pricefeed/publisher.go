// Package pricefeed provides a minimal price publishing component used on
// local networks, where no external oracle is deployed. It answers get_price
// with the last price pushed through set_price.
package pricefeed

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"pricebridge/core"
	"pricebridge/core/state"
	"pricebridge/core/types"
	"pricebridge/crypto"
)

const (
	MethodGetPrice   = "get_price"
	MethodSetPrice   = "set_price"
	MethodClearPrice = "clear_price"
)

var ErrInvalidArguments = errors.New("pricefeed: invalid arguments")

type storedPrice struct {
	Set       bool
	Price     string
	Timestamp uint64
}

func stateKey(component crypto.NodeID) []byte {
	return []byte(fmt.Sprintf("component/%x/pricefeed", component[:]))
}

// Publisher is a component holding at most one price snapshot.
type Publisher struct {
	address crypto.Address
	logger  *slog.Logger
}

// InstantiatePublisher allocates a publisher component with no price.
func InstantiatePublisher(tx *core.Tx, logger *slog.Logger) (*Publisher, error) {
	addr, err := tx.AllocateAddress(crypto.EntityComponent)
	if err != nil {
		return nil, err
	}
	if err := tx.State().KVPut(stateKey(addr.NodeID()), &storedPrice{}); err != nil {
		return nil, err
	}
	p := newPublisher(addr, logger)
	if err := tx.Globalize(addr, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPublisher rebinds a publisher instantiated by an earlier run.
func LoadPublisher(st *state.Manager, addr crypto.Address, logger *slog.Logger) (*Publisher, error) {
	ok, err := st.KVGet(stateKey(addr.NodeID()), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("pricefeed: no publisher at %s", addr)
	}
	return newPublisher(addr, logger), nil
}

func newPublisher(addr crypto.Address, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{address: addr, logger: logger.With(slog.String("publisher", addr.String()))}
}

func (p *Publisher) Address() crypto.Address { return p.address }

func (p *Publisher) Call(tx *core.Tx, method string, args ...any) (any, error) {
	switch method {
	case MethodGetPrice:
		return p.Price(tx.State())
	case MethodSetPrice:
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: set_price takes price and timestamp", ErrInvalidArguments)
		}
		price, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		ts, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("%w: timestamp must be int64, got %T", ErrInvalidArguments, args[1])
		}
		return nil, p.SetPrice(tx.State(), price, ts)
	case MethodClearPrice:
		return nil, p.Clear(tx.State())
	default:
		return nil, core.MethodNotFound(method)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch price := v.(type) {
	case decimal.Decimal:
		return price, nil
	case string:
		d, err := decimal.NewFromString(price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: price: %w", ErrInvalidArguments, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: price must be decimal or string, got %T", ErrInvalidArguments, v)
	}
}

// Price returns the published snapshot, or nil when none is set.
func (p *Publisher) Price(st *state.Manager) (*types.PriceData, error) {
	var stored storedPrice
	ok, err := st.KVGet(stateKey(p.address.NodeID()), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || !stored.Set {
		return nil, nil
	}
	price, err := decimal.NewFromString(stored.Price)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: stored price: %w", err)
	}
	return &types.PriceData{Price: price, Timestamp: int64(stored.Timestamp)}, nil
}

func (p *Publisher) SetPrice(st *state.Manager, price decimal.Decimal, timestamp int64) error {
	p.logger.Debug("price published",
		slog.String("price", price.String()),
		slog.Int64("timestamp", timestamp))
	return st.KVPut(stateKey(p.address.NodeID()), &storedPrice{
		Set:       true,
		Price:     price.String(),
		Timestamp: uint64(timestamp),
	})
}

func (p *Publisher) Clear(st *state.Manager) error {
	return st.KVPut(stateKey(p.address.NodeID()), &storedPrice{})
}
