package oracleclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pricebridge/core/state"
	"pricebridge/crypto"
)

const (
	MethodUpdateToken = "update_token"
	MethodCashXRD     = "cash_xrd"
	// MethodGetPrice is the method the bridge invokes on the oracle component.
	MethodGetPrice = "get_price"
)

const (
	FieldPrice     = "price"
	FieldTimestamp = "timestamp"
)

// TrackedRecordID is the reserved local id of the single tracked price record.
const TrackedRecordID state.NonFungibleLocalID = 1

// TrackedRecordLocalID returns the local id of the tracked price record.
func TrackedRecordLocalID() state.NonFungibleLocalID { return TrackedRecordID }

const (
	recordName        = "FEED_PRICE"
	recordDescription = "token to facilitate testnet testing of the price oracle"
	proxyName         = "Oracle proxy"
)

var (
	ErrOracleUnreachable = errors.New("oracleclient: oracle unreachable")
	ErrOracleMalformed   = errors.New("oracleclient: malformed oracle response")
	ErrInvalidPrice      = errors.New("oracleclient: invalid price")
	ErrAuthorityBusy     = errors.New("oracleclient: authorization scope already open")
	ErrWrongVariant      = errors.New("oracleclient: operation not supported by this variant")
	ErrNotInstantiated   = errors.New("oracleclient: component not instantiated")
)

// Variant selects the owned state paired with the synchronisation operation.
type Variant uint8

const (
	// VariantTrackedRecord overwrites a single price record on each sync.
	VariantTrackedRecord Variant = 1
	// VariantMintOnRead mints proxy units equal to each observed price.
	VariantMintOnRead Variant = 2
)

func (v Variant) String() string {
	switch v {
	case VariantTrackedRecord:
		return "tracked"
	case VariantMintOnRead:
		return "mint"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant accepts the configuration names of the variants.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tracked", "tracked-record":
		return VariantTrackedRecord, nil
	case "mint", "mint-on-read":
		return VariantMintOnRead, nil
	default:
		return 0, fmt.Errorf("oracleclient: unknown variant %q", name)
	}
}

// PriceTokenData is the payload of the tracked record.
type PriceTokenData struct {
	Price     decimal.Decimal
	Timestamp int64
}

func (d PriceTokenData) fields() []state.NonFungibleField {
	return []state.NonFungibleField{
		{Name: FieldPrice, Value: []byte(d.Price.String()), Mutable: true},
		{Name: FieldTimestamp, Value: []byte(strconv.FormatInt(d.Timestamp, 10)), Mutable: true},
	}
}

// updates returns both field updates; they are always applied as a pair.
func (d PriceTokenData) updates() []state.FieldUpdate {
	return []state.FieldUpdate{
		{Field: FieldPrice, Value: []byte(d.Price.String())},
		{Field: FieldTimestamp, Value: []byte(strconv.FormatInt(d.Timestamp, 10))},
	}
}

func decodePriceTokenData(fields []state.NonFungibleField) (PriceTokenData, error) {
	var (
		data                 PriceTokenData
		havePrice, haveStamp bool
	)
	for _, field := range fields {
		switch field.Name {
		case FieldPrice:
			price, err := decimal.NewFromString(string(field.Value))
			if err != nil {
				return PriceTokenData{}, fmt.Errorf("oracleclient: decode price: %w", err)
			}
			data.Price = price
			havePrice = true
		case FieldTimestamp:
			ts, err := strconv.ParseInt(string(field.Value), 10, 64)
			if err != nil {
				return PriceTokenData{}, fmt.Errorf("oracleclient: decode timestamp: %w", err)
			}
			data.Timestamp = ts
			haveStamp = true
		}
	}
	if !havePrice || !haveStamp {
		return PriceTokenData{}, fmt.Errorf("oracleclient: record data incomplete")
	}
	return data, nil
}

type componentState struct {
	Variant  uint8
	Oracle   crypto.NodeID
	Resource crypto.NodeID
	Badge    crypto.NodeID
}

var componentStatePrefix = []byte("component/")

func componentStateKey(component crypto.NodeID) []byte {
	return []byte(fmt.Sprintf("%s%x/oracleclient", componentStatePrefix, component[:]))
}
