// Package exchange wraps the Polymarket APIs behind a narrow client
// contract. The rest of the system only ever talks to the Client
// interface; provider quirks (response envelopes, parameter names,
// string-encoded numbers) stay inside this package.
package exchange

import (
	"context"

	"github.com/polycopy/bot/internal/trade"
)

// Market is one tradable market as reported by the markets endpoint.
type Market struct {
	ID           string  `json:"id"`
	Question     string  `json:"question"`
	Slug         string  `json:"slug"`
	Active       bool    `json:"active"`
	Closed       bool    `json:"closed"`
	Volume       string  `json:"volume"`
	ClobTokenIDs string  `json:"clobTokenIds"` // JSON array as string
	VolumeNum    float64 `json:"volumeNum"`
}

// Prices holds the complementary outcome prices for one market.
type Prices struct {
	Yes       float64 `json:"yes"`
	No        float64 `json:"no"`
	Timestamp int64   `json:"timestamp"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a snapshot of one market's book.
type OrderBook struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

// Balance reports account funds in the quote currency.
type Balance struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
	Currency  string  `json:"currency"`
}

// Order is a request to place a trade.
type Order struct {
	MarketID       string     `json:"market_id"`
	TokenID        string     `json:"token_id,omitempty"`
	Side           trade.Side `json:"side"`
	Price          float64    `json:"price"`
	Amount         float64    `json:"amount"`
	ExpectedProfit float64    `json:"expected_profit,omitempty"`
}

// ExecutionResult reports the outcome of an order placement. Failures
// are carried in the result, never raised as errors past the execution
// boundary.
type ExecutionResult struct {
	Success bool    `json:"success"`
	OrderID string  `json:"order_id,omitempty"`
	Profit  float64 `json:"profit,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Client is the exchange contract the strategies and the bot depend on.
type Client interface {
	// Connect establishes the signer identity. It must succeed before
	// any other call.
	Connect(ctx context.Context) error
	Disconnect() error

	// GetActiveMarkets returns up to limit open markets. Shape
	// mismatches in the upstream response degrade to an empty slice.
	GetActiveMarkets(ctx context.Context, limit int) ([]Market, error)

	GetMarketPrices(ctx context.Context, marketID string) (Prices, error)
	GetOrderBook(ctx context.Context, marketID, outcome string) (OrderBook, error)

	// GetTradeHistory returns recent executions as raw records for the
	// normalization pipeline.
	GetTradeHistory(ctx context.Context, limit int) ([]trade.RawRecord, error)

	// GetTradesByAddress returns trades attributed to an account. It
	// returns an empty slice, never an error, when the provider rejects
	// every known parameter binding.
	GetTradesByAddress(ctx context.Context, address string, limit int) ([]trade.RawRecord, error)

	GetBalance(ctx context.Context) (Balance, error)

	// ExecuteTrade places an order. It never returns an error; failures
	// are reported in the result.
	ExecuteTrade(ctx context.Context, order Order) ExecutionResult
}

// Streamer is an optional client capability: a live feed of raw trade
// records for the given outcome tokens. Consumers that need streaming
// must check for it at initialization and fail fast when absent rather
// than probing at runtime.
type Streamer interface {
	StreamTrades(ctx context.Context, tokenIDs []string) (<-chan trade.RawRecord, error)
}
