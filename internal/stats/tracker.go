// Package stats tracks per-address trading performance for the tracked
// smart-money accounts.
package stats

import (
	"sync"

	mstats "github.com/montanaflynn/stats"
)

// TraderStats is a point-in-time view of one tracked account.
type TraderStats struct {
	Address       string  `json:"address"`
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	WinRate       float64 `json:"win_rate"`
	AvgProfit     float64 `json:"avg_profit"`
	ProfitStdDev  float64 `json:"profit_std_dev"`
	LastTradeTime int64   `json:"last_trade_time"`
}

// TraderTracker provides thread-safe performance tracking per address.
// Trade observations and settled outcomes arrive on different paths, so
// they are counted separately: TotalTrades counts observed executions,
// WinRate and AvgProfit are computed from settled outcomes only.
type TraderTracker struct {
	mu        sync.RWMutex
	trades    map[string]int
	wins      map[string]int
	profits   map[string][]float64
	lastTrade map[string]int64
}

// NewTraderTracker creates an empty tracker.
func NewTraderTracker() *TraderTracker {
	return &TraderTracker{
		trades:    make(map[string]int),
		wins:      make(map[string]int),
		profits:   make(map[string][]float64),
		lastTrade: make(map[string]int64),
	}
}

// RecordTrade counts one observed execution for the address.
func (t *TraderTracker) RecordTrade(address string, timestampMs int64) {
	if address == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades[address]++
	if timestampMs > t.lastTrade[address] {
		t.lastTrade[address] = timestampMs
	}
}

// RecordOutcome folds one settled profit sample into the address's
// performance history.
func (t *TraderTracker) RecordOutcome(address string, profit float64) {
	if address == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.profits[address] = append(t.profits[address], profit)
	if profit > 0 {
		t.wins[address]++
	}
}

// Snapshot returns the current stats for one address. An address with
// no settled outcomes gets a neutral 0.5 win rate rather than zero, so
// an unknown trader is neither boosted nor penalized.
func (t *TraderTracker) Snapshot(address string) TraderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked(address)
}

// All returns stats for every tracked address.
func (t *TraderTracker) All() []TraderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []TraderStats
	for addr := range t.trades {
		seen[addr] = struct{}{}
		out = append(out, t.snapshotLocked(addr))
	}
	for addr := range t.profits {
		if _, ok := seen[addr]; !ok {
			out = append(out, t.snapshotLocked(addr))
		}
	}
	return out
}

func (t *TraderTracker) snapshotLocked(address string) TraderStats {
	s := TraderStats{
		Address:       address,
		TotalTrades:   t.trades[address],
		Wins:          t.wins[address],
		WinRate:       0.5,
		LastTradeTime: t.lastTrade[address],
	}

	samples := t.profits[address]
	if len(samples) == 0 {
		return s
	}

	s.WinRate = float64(t.wins[address]) / float64(len(samples))
	if mean, err := mstats.Mean(samples); err == nil {
		s.AvgProfit = mean
	}
	if sd, err := mstats.StandardDeviation(samples); err == nil {
		s.ProfitStdDev = sd
	}
	return s
}
