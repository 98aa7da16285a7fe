package state

import (
	"bytes"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"pricebridge/crypto"
	"pricebridge/storage/trie"
)

var (
	// ErrUnauthorized is returned when the active auth zone does not satisfy
	// the access rule guarding a resource operation.
	ErrUnauthorized = errors.New("state: unauthorized")
	// ErrResourceNotFound marks lookups of undefined resources.
	ErrResourceNotFound = errors.New("state: resource not found")
	// ErrResourceExists is returned when a resource address is reused.
	ErrResourceExists = errors.New("state: resource already exists")
	// ErrInvalidAmount marks negative or over-precise quantities.
	ErrInvalidAmount = errors.New("state: invalid amount")
	// ErrInsufficientBalance is returned when a vault cannot back a proof.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// Manager reads and writes ledger state on top of the state trie. It is the
// resource subsystem of the ledger: resource definitions, supplies,
// non-fungible data and vaults all live here.
type Manager struct {
	trie   *trie.Trie
	caller func() crypto.NodeID
}

type ManagerOption func(*Manager)

// WithCaller installs the source of the currently executing component. Proofs
// can only be drawn from vaults that component owns; without a caller source
// no vault can back a proof.
func WithCaller(fn func() crypto.NodeID) ManagerOption {
	return func(m *Manager) {
		m.caller = fn
	}
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie, opts ...ManagerOption) *Manager {
	m := &Manager{trie: tr}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) currentCaller() crypto.NodeID {
	if m.caller == nil {
		return crypto.NodeID{}
	}
	return m.caller()
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

var (
	reservedPrefix  = []byte("resource/")
	componentPrefix = []byte("component/")
)

// checkWritable guards raw KV writes. Resource and vault keys only change
// through the resource subsystem, and code running as a component may only
// write its own component/<id>/ keys.
func (m *Manager) checkWritable(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if bytes.HasPrefix(key, reservedPrefix) || bytes.HasPrefix(key, vaultPrefix) {
		return fmt.Errorf("%w: %q is owned by the resource subsystem", ErrUnauthorized, key)
	}
	caller := m.currentCaller()
	if caller.IsZero() || !bytes.HasPrefix(key, componentPrefix) {
		return nil
	}
	own := []byte(fmt.Sprintf("%s%x/", componentPrefix, caller[:]))
	if !bytes.HasPrefix(key, own) {
		return fmt.Errorf("%w: component %x cannot write %q", ErrUnauthorized, caller[:], key)
	}
	return nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the trie.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if err := m.checkWritable(key); err != nil {
		return err
	}
	return m.put(key, value)
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if err := m.checkWritable(key); err != nil {
		return err
	}
	return m.trie.Delete(kvKey(key))
}
