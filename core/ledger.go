package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pricebridge/core/state"
	"pricebridge/core/types"
	"pricebridge/crypto"
	"pricebridge/observability"
	"pricebridge/storage"
	"pricebridge/storage/trie"
)

var (
	// ErrComponentNotFound is returned when a call targets an address with no
	// bound component.
	ErrComponentNotFound = errors.New("ledger: component not found")
	// ErrMethodNotFound is returned by components for unknown methods.
	ErrMethodNotFound = errors.New("ledger: method not found")
	// ErrComponentExists is returned when an address is bound twice.
	ErrComponentExists = errors.New("ledger: component already bound")
	// ErrUnitAborted wraps panics raised inside a unit of work.
	ErrUnitAborted = errors.New("ledger: unit of work aborted")
)

// MethodNotFound builds the error components return for unknown methods.
func MethodNotFound(method string) error {
	return fmt.Errorf("%w: %q", ErrMethodNotFound, method)
}

// Component is a ledger-resident object reachable by address.
type Component interface {
	Call(tx *Tx, method string, args ...any) (any, error)
}

var headKey = []byte("ledger/head")

// Receipt describes a committed unit of work.
type Receipt struct {
	ID     uuid.UUID
	Name   string
	Height uint64
	Root   common.Hash
	Events []types.Event
	Result any
}

// Ledger hosts components and executes units of work against the state trie.
// Units are serialised: each one either commits as a whole or leaves the state
// exactly as it found it.
type Ledger struct {
	mu         sync.Mutex
	db         storage.Database
	trie       *trie.Trie
	state      *state.Manager
	network    crypto.Network
	height     uint64
	components map[crypto.NodeID]Component
	active     *Tx
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(l *Ledger) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// New opens the ledger stored in db, resuming from the last committed head.
func New(db storage.Database, network crypto.Network, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	root, height, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: open state trie: %w", err)
	}
	l := &Ledger{
		db:         db,
		trie:       tr,
		network:    network,
		height:     height,
		components: make(map[crypto.NodeID]Component),
		logger:     slog.Default(),
		tracer:     otel.Tracer("pricebridge/core"),
	}
	l.state = state.NewManager(tr, state.WithCaller(l.caller))
	for _, opt := range opts {
		opt(l)
	}
	observability.Ledger().SetHeight(height)
	return l, nil
}

func loadHead(db storage.Database) ([]byte, uint64, error) {
	data, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: read head: %w", err)
	}
	if len(data) != common.HashLength+8 {
		return nil, 0, fmt.Errorf("ledger: corrupt head record (%d bytes)", len(data))
	}
	return data[:common.HashLength], binary.BigEndian.Uint64(data[common.HashLength:]), nil
}

func (l *Ledger) writeHead(root common.Hash, height uint64) error {
	buf := make([]byte, common.HashLength+8)
	copy(buf, root.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], height)
	return l.db.Put(headKey, buf)
}

func (l *Ledger) Network() crypto.Network { return l.network }

// caller reports the component executing in the active unit of work, or the
// zero id outside any component call. Only read with l.mu held.
func (l *Ledger) caller() crypto.NodeID {
	if l.active == nil {
		return crypto.NodeID{}
	}
	return l.active.caller
}

// Root returns the last committed state root.
func (l *Ledger) Root() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trie.Root()
}

// Height returns the number of committed units of work.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Bind attaches a component implementation to an address whose state already
// exists, e.g. when a node restarts.
func (l *Ledger) Bind(addr crypto.Address, component Component) error {
	if component == nil {
		return fmt.Errorf("ledger: component required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.components[addr.NodeID()]; exists {
		return fmt.Errorf("%w: %s", ErrComponentExists, addr)
	}
	l.components[addr.NodeID()] = component
	return nil
}

// View runs fn against the committed state. Any mutation fn makes is dropped.
func (l *Ledger) View(fn func(*state.Manager) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := fn(l.state)
	if discardErr := l.trie.Discard(); discardErr != nil {
		return errors.Join(err, discardErr)
	}
	return err
}

// Execute runs fn as one unit of work. On success the state is committed and a
// receipt returned; on error or panic every mutation is discarded.
func (l *Ledger) Execute(ctx context.Context, name string, fn func(tx *Tx) (any, error)) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := l.tracer.Start(ctx, "ledger.execute", trace.WithAttributes(attribute.String("unit", name)))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	tx := newTx(ctx, l, name)
	result, err := l.run(tx, fn)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		var receipt *Receipt
		receipt, err = l.commit(tx, result)
		if err == nil {
			observability.Ledger().ObserveUnit(name, "committed", time.Since(start))
			span.SetAttributes(attribute.Int64("height", int64(receipt.Height)))
			l.logger.Debug("unit of work committed",
				slog.String("unit", name),
				slog.String("tx", tx.id.String()),
				slog.Uint64("height", receipt.Height),
				slog.String("root", receipt.Root.Hex()))
			for _, hook := range tx.onCommit {
				hook()
			}
			return receipt, nil
		}
	}

	if discardErr := l.trie.Discard(); discardErr != nil {
		err = errors.Join(err, fmt.Errorf("ledger: rollback: %w", discardErr))
	}
	observability.Ledger().ObserveUnit(name, "aborted", time.Since(start))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.logger.Warn("unit of work aborted",
		slog.String("unit", name),
		slog.String("tx", tx.id.String()),
		slog.Any("error", err))
	return nil, err
}

func (l *Ledger) run(tx *Tx, fn func(tx *Tx) (any, error)) (result any, err error) {
	l.active = tx
	defer func() {
		l.active = nil
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnitAborted, r)
		}
	}()
	return fn(tx)
}

func (l *Ledger) commit(tx *Tx, result any) (*Receipt, error) {
	previous := l.trie.Root()
	height := l.height + 1
	root, err := l.trie.Commit(height)
	if err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}
	if err := l.writeHead(root, height); err != nil {
		if resetErr := l.trie.Reset(previous); resetErr != nil {
			return nil, errors.Join(err, resetErr)
		}
		return nil, fmt.Errorf("ledger: write head: %w", err)
	}
	l.height = height
	for id, component := range tx.globalized {
		l.components[id] = component
	}
	observability.Ledger().SetHeight(height)
	for _, evt := range tx.events {
		observability.Events().RecordPublished(evt.Type)
	}
	return &Receipt{
		ID:     tx.id,
		Name:   tx.name,
		Height: height,
		Root:   root,
		Events: tx.events,
		Result: result,
	}, nil
}
