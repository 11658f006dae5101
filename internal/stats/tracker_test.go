package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerNeutralPriorForUnknownTrader(t *testing.T) {
	tr := NewTraderTracker()

	s := tr.Snapshot("0xnew")
	assert.Equal(t, 0.5, s.WinRate)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.AvgProfit)
}

func TestTrackerRecordTrade(t *testing.T) {
	tr := NewTraderTracker()

	tr.RecordTrade("0xa", 100)
	tr.RecordTrade("0xa", 300)
	tr.RecordTrade("0xa", 200) // out of order, must not regress

	s := tr.Snapshot("0xa")
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, int64(300), s.LastTradeTime)

	// Observed executions alone keep the neutral prior.
	assert.Equal(t, 0.5, s.WinRate)
}

func TestTrackerRecordOutcome(t *testing.T) {
	tr := NewTraderTracker()

	tr.RecordOutcome("0xa", 10)
	tr.RecordOutcome("0xa", -5)
	tr.RecordOutcome("0xa", 4)
	tr.RecordOutcome("0xa", 3)

	s := tr.Snapshot("0xa")
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 0.75, s.WinRate)
	assert.InDelta(t, 3.0, s.AvgProfit, 1e-9)
	assert.Greater(t, s.ProfitStdDev, 0.0)
}

func TestTrackerIgnoresEmptyAddress(t *testing.T) {
	tr := NewTraderTracker()

	tr.RecordTrade("", 100)
	tr.RecordOutcome("", 5)
	assert.Empty(t, tr.All())
}

func TestTrackerAll(t *testing.T) {
	tr := NewTraderTracker()

	tr.RecordTrade("0xa", 100)
	tr.RecordOutcome("0xb", 7)

	all := tr.All()
	assert.Len(t, all, 2)

	byAddr := make(map[string]TraderStats, len(all))
	for _, s := range all {
		byAddr[s.Address] = s
	}
	assert.Equal(t, 1, byAddr["0xa"].TotalTrades)
	assert.Equal(t, 1.0, byAddr["0xb"].WinRate)
}
