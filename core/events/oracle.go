package events

import (
	"strconv"

	"github.com/shopspring/decimal"

	"pricebridge/core/types"
)

// TypeOracleRecordUpdated is emitted when a tracked price record is
// overwritten with a fresh oracle reading.
const TypeOracleRecordUpdated = "oracleclient.recordUpdated"

type OracleRecordUpdated struct {
	Component string
	Resource  string
	LocalID   string
	Price     decimal.Decimal
	Timestamp int64
}

func (OracleRecordUpdated) EventType() string { return TypeOracleRecordUpdated }

func (e OracleRecordUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeOracleRecordUpdated,
		Attributes: map[string]string{
			"component": e.Component,
			"resource":  e.Resource,
			"localId":   e.LocalID,
			"price":     e.Price.String(),
			"timestamp": strconv.FormatInt(e.Timestamp, 10),
		},
	}
}
