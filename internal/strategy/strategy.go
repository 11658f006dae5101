// Package strategy contains the signal-generating drivers: price
// mismatch arbitrage, large-trade following, and smart-money copy
// trading. Each driver pulls raw data from the exchange client, runs it
// through the normalization pipeline, and returns ranked candidates for
// the risk gate.
package strategy

import (
	"context"
	"sort"

	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

// Opportunity is an arbitrage candidate. Unlike copy signals these are
// profit-estimated.
type Opportunity struct {
	Type           string  `json:"type"`
	MarketID       string  `json:"market_id"`
	ExpectedProfit float64 `json:"expected_profit"`
	YesPrice       float64 `json:"yes_price"`
	NoPrice        float64 `json:"no_price"`
	Deviation      float64 `json:"deviation"`
	Action         string  `json:"action"` // buy_both or sell_both
}

// SignalStrategy is the contract shared by the copy-trading drivers.
type SignalStrategy interface {
	Initialize(client exchange.Client) error
	GetSignals(ctx context.Context, markets []exchange.Market) []trade.CopySignal
}

// rankSignals filters signals below minStrength and orders the rest by
// descending strength.
func rankSignals(signals []trade.CopySignal, minStrength float64) []trade.CopySignal {
	filtered := signals[:0]
	for _, s := range signals {
		if s.Strength >= minStrength {
			filtered = append(filtered, s)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Strength > filtered[j].Strength
	})
	return filtered
}
