package state

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"pricebridge/crypto"
)

// ResourceKind distinguishes fungible from non-fungible resource types.
type ResourceKind uint8

const (
	FungibleResource    ResourceKind = 1
	NonFungibleResource ResourceKind = 2
)

// AccessRule guards a resource operation. A rule either allows everyone,
// requires a proof of the referenced resource, or (zero value) denies all.
type AccessRule struct {
	AllowAll bool
	Require  []byte
}

func AllowAll() AccessRule { return AccessRule{AllowAll: true} }

func DenyAll() AccessRule { return AccessRule{} }

// Require returns a rule satisfied by any non-zero proof of resource.
func Require(resource crypto.NodeID) AccessRule {
	return AccessRule{Require: resource.Bytes()}
}

func (r AccessRule) String() string {
	switch {
	case r.AllowAll:
		return "allow_all"
	case len(r.Require) == 0:
		return "deny_all"
	default:
		return fmt.Sprintf("require(%x)", r.Require)
	}
}

// MetadataEntry is a single key/value pair attached to a resource definition.
type MetadataEntry struct {
	Key    string
	Value  string
	Locked bool
}

// ResourceDefinition is the persisted definition of a resource type.
type ResourceDefinition struct {
	Kind               ResourceKind
	Divisibility       uint8
	Metadata           []MetadataEntry
	MintRule           AccessRule
	DataUpdater        AccessRule
	DataUpdaterUpdater AccessRule
}

// MetadataValue returns the metadata value stored under key.
func (d *ResourceDefinition) MetadataValue(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, entry := range d.Metadata {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// Bucket is a transient container of resource units handed to a caller.
// Buckets are only produced by the resource subsystem. Copies share their
// content, and depositing a bucket empties every copy of it.
type Bucket struct {
	content *bucketContent
}

type bucketContent struct {
	resource crypto.NodeID
	amount   *big.Int
	ids      []NonFungibleLocalID
}

func newBucket(resource crypto.NodeID, amount *big.Int, ids []NonFungibleLocalID) Bucket {
	return Bucket{content: &bucketContent{
		resource: resource,
		amount:   new(big.Int).Set(amount),
		ids:      append([]NonFungibleLocalID(nil), ids...),
	}}
}

// EmptyBucket returns a bucket of resource holding nothing.
func EmptyBucket(resource crypto.NodeID) Bucket {
	return newBucket(resource, big.NewInt(0), nil)
}

func (b Bucket) Resource() crypto.NodeID {
	if b.content == nil {
		return crypto.NodeID{}
	}
	return b.content.resource
}

// Amount returns the content in base units.
func (b Bucket) Amount() *big.Int {
	if b.content == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(b.content.amount)
}

func (b Bucket) IDs() []NonFungibleLocalID {
	if b.content == nil {
		return nil
	}
	return append([]NonFungibleLocalID(nil), b.content.ids...)
}

// Quantity renders the bucket content as a decimal: the unit count for
// non-fungible resources, the fixed-point amount otherwise.
func (b Bucket) Quantity() decimal.Decimal {
	if b.Resource().EntityType() == crypto.EntityNonFungibleResource {
		return decimal.NewFromInt(int64(len(b.IDs())))
	}
	return FromAtto(b.Amount())
}

func (b Bucket) IsEmpty() bool {
	return b.content == nil || (len(b.content.ids) == 0 && b.content.amount.Sign() == 0)
}

var resourceDefPrefix = []byte("resource/def/")

func resourceDefKey(resource crypto.NodeID) []byte {
	return []byte(fmt.Sprintf("%s%x", resourceDefPrefix, resource[:]))
}

func (m *Manager) createResource(resource crypto.NodeID, def *ResourceDefinition) error {
	if def == nil {
		return fmt.Errorf("state: resource definition required")
	}
	switch def.Kind {
	case FungibleResource:
		if resource.EntityType() != crypto.EntityFungibleResource {
			return fmt.Errorf("state: %x is not a fungible resource address", resource[:])
		}
		if def.Divisibility > DecimalScale {
			return fmt.Errorf("state: divisibility %d exceeds %d", def.Divisibility, DecimalScale)
		}
	case NonFungibleResource:
		if resource.EntityType() != crypto.EntityNonFungibleResource {
			return fmt.Errorf("state: %x is not a non-fungible resource address", resource[:])
		}
		if def.Divisibility != 0 {
			return fmt.Errorf("state: non-fungible resources are indivisible")
		}
	default:
		return fmt.Errorf("state: unknown resource kind %d", def.Kind)
	}
	exists, err := m.KVGet(resourceDefKey(resource), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %x", ErrResourceExists, resource[:])
	}
	return m.put(resourceDefKey(resource), def)
}

// Resource loads the definition of a resource.
func (m *Manager) Resource(resource crypto.NodeID) (*ResourceDefinition, error) {
	def := new(ResourceDefinition)
	ok, err := m.KVGet(resourceDefKey(resource), def)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrResourceNotFound, resource[:])
	}
	return def, nil
}

// CreateFungibleResource defines a fungible resource and issues its initial
// supply, which is returned in a bucket.
func (m *Manager) CreateFungibleResource(resource crypto.NodeID, def *ResourceDefinition, initial *big.Int) (Bucket, error) {
	if initial == nil {
		initial = big.NewInt(0)
	}
	if def != nil {
		if err := checkAmount(initial, def.Divisibility); err != nil {
			return Bucket{}, err
		}
	}
	if err := m.createResource(resource, def); err != nil {
		return Bucket{}, err
	}
	if _, err := m.adjustResourceSupply(resource, initial); err != nil {
		return Bucket{}, err
	}
	return newBucket(resource, initial, nil), nil
}

// CreateNonFungibleResource defines a non-fungible resource and mints the
// provided initial entries.
func (m *Manager) CreateNonFungibleResource(resource crypto.NodeID, def *ResourceDefinition, entries []NonFungibleEntry) (Bucket, error) {
	if err := m.createResource(resource, def); err != nil {
		return Bucket{}, err
	}
	ids := make([]NonFungibleLocalID, 0, len(entries))
	for _, entry := range entries {
		if err := m.putNonFungible(resource, entry); err != nil {
			return Bucket{}, err
		}
		ids = append(ids, entry.ID)
	}
	if _, err := m.adjustResourceSupply(resource, big.NewInt(int64(len(entries)))); err != nil {
		return Bucket{}, err
	}
	return newBucket(resource, big.NewInt(int64(len(ids))), ids), nil
}

// Mint issues amount base units of a fungible resource after checking the
// resource's mint rule against zone. The new total supply is returned.
func (m *Manager) Mint(zone *AuthZone, resource crypto.NodeID, amount *big.Int) (Bucket, *big.Int, error) {
	def, err := m.Resource(resource)
	if err != nil {
		return Bucket{}, nil, err
	}
	if def.Kind != FungibleResource {
		return Bucket{}, nil, fmt.Errorf("state: %x is not fungible", resource[:])
	}
	if !zone.Satisfies(def.MintRule) {
		return Bucket{}, nil, fmt.Errorf("%w: mint requires %s", ErrUnauthorized, def.MintRule)
	}
	if err := checkAmount(amount, def.Divisibility); err != nil {
		return Bucket{}, nil, err
	}
	total, err := m.adjustResourceSupply(resource, amount)
	if err != nil {
		return Bucket{}, nil, err
	}
	return newBucket(resource, amount, nil), total, nil
}

func checkAmount(amount *big.Int, divisibility uint8) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}
	if divisibility > DecimalScale {
		return fmt.Errorf("%w: divisibility %d", ErrInvalidAmount, divisibility)
	}
	if new(big.Int).Mod(amount, granularity(divisibility)).Sign() != 0 {
		return fmt.Errorf("%w: %s exceeds divisibility %d", ErrInvalidAmount, FromAtto(amount).String(), divisibility)
	}
	return nil
}

func sameNode(a []byte, b crypto.NodeID) bool {
	return bytes.Equal(a, b[:])
}
