package state

import (
	"errors"
	"fmt"

	"pricebridge/crypto"
)

var (
	// ErrNonFungibleNotFound marks lookups of unknown local ids.
	ErrNonFungibleNotFound = errors.New("state: non-fungible not found")
	// ErrUnknownField is returned when an update names a field the data does not have.
	ErrUnknownField = errors.New("state: unknown non-fungible field")
	// ErrImmutableField is returned when an update targets a locked field.
	ErrImmutableField = errors.New("state: non-fungible field is immutable")
)

// NonFungibleLocalID identifies a unit within a non-fungible resource.
type NonFungibleLocalID uint64

func (id NonFungibleLocalID) String() string {
	return fmt.Sprintf("#%d#", uint64(id))
}

// NonFungibleField is a named, encoded field of non-fungible data.
type NonFungibleField struct {
	Name    string
	Value   []byte
	Mutable bool
}

// NonFungibleEntry pairs a local id with its initial data.
type NonFungibleEntry struct {
	ID     NonFungibleLocalID
	Fields []NonFungibleField
}

// FieldUpdate replaces the value of one mutable field.
type FieldUpdate struct {
	Field string
	Value []byte
}

type storedNonFungible struct {
	Fields []NonFungibleField
}

var nonFungiblePrefix = []byte("resource/nf/")

func nonFungibleKey(resource crypto.NodeID, id NonFungibleLocalID) []byte {
	return []byte(fmt.Sprintf("%s%x/%d", nonFungiblePrefix, resource[:], uint64(id)))
}

func (m *Manager) putNonFungible(resource crypto.NodeID, entry NonFungibleEntry) error {
	key := nonFungibleKey(resource, entry.ID)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("state: non-fungible %s already exists", entry.ID)
	}
	seen := make(map[string]struct{}, len(entry.Fields))
	for _, field := range entry.Fields {
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("state: duplicate field %q", field.Name)
		}
		seen[field.Name] = struct{}{}
	}
	return m.put(key, &storedNonFungible{Fields: entry.Fields})
}

// NonFungibleData returns the fields of a non-fungible unit.
func (m *Manager) NonFungibleData(resource crypto.NodeID, id NonFungibleLocalID) ([]NonFungibleField, bool, error) {
	var stored storedNonFungible
	ok, err := m.KVGet(nonFungibleKey(resource, id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.Fields, true, nil
}

// UpdateNonFungibleData applies every update to the unit's data in a single
// write. The resource's data updater rule must be satisfied by zone. Either all
// updates are applied or, on any error, none are.
func (m *Manager) UpdateNonFungibleData(zone *AuthZone, resource crypto.NodeID, id NonFungibleLocalID, updates []FieldUpdate) error {
	def, err := m.Resource(resource)
	if err != nil {
		return err
	}
	if def.Kind != NonFungibleResource {
		return fmt.Errorf("state: %x is not non-fungible", resource[:])
	}
	if !zone.Satisfies(def.DataUpdater) {
		return fmt.Errorf("%w: data update requires %s", ErrUnauthorized, def.DataUpdater)
	}
	fields, ok, err := m.NonFungibleData(resource, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNonFungibleNotFound, id)
	}
	index := make(map[string]int, len(fields))
	for i, field := range fields {
		index[field.Name] = i
	}
	for _, update := range updates {
		i, known := index[update.Field]
		if !known {
			return fmt.Errorf("%w: %q", ErrUnknownField, update.Field)
		}
		if !fields[i].Mutable {
			return fmt.Errorf("%w: %q", ErrImmutableField, update.Field)
		}
		fields[i].Value = append([]byte(nil), update.Value...)
	}
	return m.put(nonFungibleKey(resource, id), &storedNonFungible{Fields: fields})
}

// SetDataUpdaterRule replaces the data updater rule of a non-fungible
// resource. The current updater-updater rule must be satisfied by zone.
func (m *Manager) SetDataUpdaterRule(zone *AuthZone, resource crypto.NodeID, rule AccessRule) error {
	def, err := m.Resource(resource)
	if err != nil {
		return err
	}
	if !zone.Satisfies(def.DataUpdaterUpdater) {
		return fmt.Errorf("%w: role update requires %s", ErrUnauthorized, def.DataUpdaterUpdater)
	}
	def.DataUpdater = rule
	return m.put(resourceDefKey(resource), def)
}
