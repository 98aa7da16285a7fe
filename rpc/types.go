package rpc

import (
	"pricebridge/core"
)

// RecordResult is the tracked price record as served over HTTP.
type RecordResult struct {
	Component string `json:"component"`
	Resource  string `json:"resource"`
	LocalID   string `json:"localId"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// SupplyResult reports the proxy resource supply and the operator's holdings.
type SupplyResult struct {
	Component       string `json:"component"`
	Resource        string `json:"resource"`
	TotalSupply     string `json:"totalSupply"`
	Operator        string `json:"operator"`
	OperatorBalance string `json:"operatorBalance"`
}

// BucketResult describes the units returned by a mint.
type BucketResult struct {
	Resource    string `json:"resource"`
	Quantity    string `json:"quantity"`
	DepositedTo string `json:"depositedTo,omitempty"`
}

// ReceiptResult summarises a committed unit of work.
type ReceiptResult struct {
	ID     string        `json:"id"`
	Unit   string        `json:"unit"`
	Height uint64        `json:"height"`
	Root   string        `json:"root"`
	Events []ReceiptLog  `json:"events"`
	Bucket *BucketResult `json:"bucket,omitempty"`
}

// ReceiptLog captures a structured event emitted during the unit.
type ReceiptLog struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// FeedRequest publishes a price on the local stand-in feed.
type FeedRequest struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func receiptResult(receipt *core.Receipt) ReceiptResult {
	logs := make([]ReceiptLog, 0, len(receipt.Events))
	for _, evt := range receipt.Events {
		logs = append(logs, ReceiptLog{Type: evt.Type, Attributes: evt.Attributes})
	}
	return ReceiptResult{
		ID:     receipt.ID.String(),
		Unit:   receipt.Name,
		Height: receipt.Height,
		Root:   receipt.Root.Hex(),
		Events: logs,
	}
}
