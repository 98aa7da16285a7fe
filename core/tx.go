package core

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"pricebridge/core/events"
	"pricebridge/core/state"
	"pricebridge/core/types"
	"pricebridge/crypto"
)

// maxCallDepth bounds nested cross-component calls within one unit of work.
const maxCallDepth = 8

var nonceKey = []byte("ledger/nonce")

var _ events.Emitter = (*Tx)(nil)

// Tx is the execution context of a single unit of work. It is only valid while
// the unit runs.
type Tx struct {
	ctx        context.Context
	id         uuid.UUID
	name       string
	ledger     *Ledger
	events     []types.Event
	globalized map[crypto.NodeID]Component
	onCommit   []func()
	depth      int
	caller     crypto.NodeID
}

func newTx(ctx context.Context, l *Ledger, name string) *Tx {
	return &Tx{
		ctx:        ctx,
		id:         uuid.New(),
		name:       name,
		ledger:     l,
		globalized: make(map[crypto.NodeID]Component),
	}
}

func (tx *Tx) Context() context.Context { return tx.ctx }

func (tx *Tx) ID() uuid.UUID { return tx.id }

func (tx *Tx) State() *state.Manager { return tx.ledger.state }

func (tx *Tx) Network() crypto.Network { return tx.ledger.network }

// Caller returns the component whose code is currently running, or the zero id
// at the top level of the unit.
func (tx *Tx) Caller() crypto.NodeID { return tx.caller }

// Emit records an event. Events are only published when the unit commits.
func (tx *Tx) Emit(e events.Event) {
	if e == nil {
		return
	}
	if renderable, ok := e.(interface{ Event() *types.Event }); ok {
		if evt := renderable.Event(); evt != nil {
			tx.events = append(tx.events, *evt)
			return
		}
	}
	tx.events = append(tx.events, types.Event{Type: e.EventType(), Attributes: map[string]string{}})
}

// Events returns the events emitted so far.
func (tx *Tx) Events() []types.Event {
	return tx.events
}

// OnCommit registers fn to run once the unit has committed. Hooks never run
// for aborted units.
func (tx *Tx) OnCommit(fn func()) {
	if fn != nil {
		tx.onCommit = append(tx.onCommit, fn)
	}
}

// Call invokes method on the component bound to addr, synchronously and inside
// the current unit of work. The callee runs as addr: only its own vaults can
// back proofs until the call returns.
func (tx *Tx) Call(addr crypto.Address, method string, args ...any) (any, error) {
	if addr.Network() != tx.ledger.network {
		return nil, fmt.Errorf("%w: %s is not on network %s", ErrComponentNotFound, addr, tx.ledger.network.Name)
	}
	if addr.EntityType() != crypto.EntityComponent {
		return nil, fmt.Errorf("%w: %s is not a component address", ErrComponentNotFound, addr)
	}
	component, ok := tx.globalized[addr.NodeID()]
	if !ok {
		component, ok = tx.ledger.components[addr.NodeID()]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, addr)
	}
	if tx.depth >= maxCallDepth {
		return nil, fmt.Errorf("ledger: call depth %d exceeded calling %s", maxCallDepth, addr)
	}
	tx.depth++
	previous := tx.caller
	tx.caller = addr.NodeID()
	defer func() {
		tx.depth--
		tx.caller = previous
	}()
	return component.Call(tx, method, args...)
}

// AllocateAddress derives a fresh address for a new entity. Allocation is
// driven by a nonce kept in state, so it rolls back with the unit.
func (tx *Tx) AllocateAddress(entity crypto.EntityType) (crypto.Address, error) {
	var nonce uint64
	if _, err := tx.State().KVGet(nonceKey, &nonce); err != nil {
		return crypto.Address{}, err
	}
	nonce++
	if err := tx.State().KVPut(nonceKey, nonce); err != nil {
		return crypto.Address{}, err
	}
	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, nonce)
	id := crypto.DeriveNodeID(entity, []byte(tx.ledger.network.Name), seed)
	return crypto.NewAddress(tx.ledger.network, id), nil
}

// Globalize makes component reachable at addr. The binding takes effect for the
// rest of the unit and becomes permanent when the unit commits.
func (tx *Tx) Globalize(addr crypto.Address, component Component) error {
	if component == nil {
		return fmt.Errorf("ledger: component required")
	}
	if addr.EntityType() != crypto.EntityComponent {
		return fmt.Errorf("ledger: %s is not a component address", addr)
	}
	if _, exists := tx.ledger.components[addr.NodeID()]; exists {
		return fmt.Errorf("%w: %s", ErrComponentExists, addr)
	}
	if _, exists := tx.globalized[addr.NodeID()]; exists {
		return fmt.Errorf("%w: %s", ErrComponentExists, addr)
	}
	tx.globalized[addr.NodeID()] = component
	return nil
}
