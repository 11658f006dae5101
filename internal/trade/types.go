// Package trade provides the canonical trade representation and the
// normalization, deduplication, and signal-building pipeline that sits
// between raw upstream trade feeds and the risk gate.
package trade

// Side is the normalized trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SignalType tags a CopySignal with its provenance.
const (
	SignalPriceMismatch = "price_mismatch"
	SignalLargeTrade    = "large_trade"
	SignalSmartMoney    = "smart_money"
)

// RawRecord is one loosely-typed trade record as decoded from an
// upstream feed. Field names and value types vary by provider.
type RawRecord map[string]any

// NormalizedTrade is the canonical shape of one externally-sourced
// execution. It is only constructible through Normalize, which
// guarantees every field passed its validity predicate.
type NormalizedTrade struct {
	// ID is a stable identifier, synthesized from token/timestamp/size
	// when the source provides none.
	ID string `json:"id"`

	// MarketToken identifies the tradable outcome token. Never empty.
	MarketToken string `json:"market_token"`

	// Side is buy or sell after vocabulary normalization.
	Side Side `json:"side"`

	// Price is the execution price. Finite and > 0.
	Price float64 `json:"price"`

	// Size is the trade size in quote currency. Finite and > 0.
	Size float64 `json:"size"`

	// Timestamp is milliseconds since epoch; ingestion time when the
	// source omits it.
	Timestamp int64 `json:"timestamp"`

	// SourceAddress is the tracked account this trade is attributed to.
	// Empty for non-attributed paths.
	SourceAddress string `json:"source_address,omitempty"`
}

// CopySignal is an actionable candidate order produced by a strategy
// driver. Created fresh per cycle, never mutated after creation.
type CopySignal struct {
	Type           string  `json:"type"`
	MarketToken    string  `json:"market_token"`
	Direction      Side    `json:"direction"`
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	Strength       float64 `json:"strength"`
	ExpectedProfit float64 `json:"expected_profit"`
	Reason         string  `json:"reason"`
	SourceAddress  string  `json:"source_address,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}
