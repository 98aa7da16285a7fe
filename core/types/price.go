package types

import "github.com/shopspring/decimal"

// PriceData is the snapshot published by a price oracle component: the price
// and the publisher's timestamp for it. A nil *PriceData means the publisher
// has nothing to report.
type PriceData struct {
	Price     decimal.Decimal
	Timestamp int64
}
