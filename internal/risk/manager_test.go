package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/bot/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxPositionSize: 100,
		MinProfitMargin: 0.02,
		MaxDailyLoss:    1000,
		MaxPositions:    10,
	}
}

func TestShouldExecuteAdmitsViableOpportunity(t *testing.T) {
	m := NewManager(testConfig())

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m1", Amount: 50, ExpectedProfit: 0.05})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestShouldExecuteSizeCap(t *testing.T) {
	m := NewManager(testConfig())

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m1", Amount: 101, ExpectedProfit: 0.05})
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds limit")
}

func TestShouldExecuteZeroAmountUsesDefaultSize(t *testing.T) {
	m := NewManager(testConfig())

	// Amount zero means the configured maximum, which is within the cap.
	ok, _ := m.ShouldExecute(Opportunity{MarketID: "m1", ExpectedProfit: 0.05})
	assert.True(t, ok)
}

func TestShouldExecuteProfitFloor(t *testing.T) {
	m := NewManager(testConfig())

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m1", Amount: 50, ExpectedProfit: 0.01})
	assert.False(t, ok)
	assert.Contains(t, reason, "below minimum")
}

func TestShouldExecuteDailyLossBreaker(t *testing.T) {
	m := NewManager(testConfig())

	m.RecordTrade(Result{MarketID: "m0", Profit: -1000})

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m1", Amount: 50, ExpectedProfit: 0.05})
	assert.False(t, ok)
	assert.Equal(t, "daily loss limit reached", reason)
}

func TestShouldExecutePositionCountCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 2
	m := NewManager(cfg)

	m.RecordTrade(Result{MarketID: "m1", Profit: 1})
	m.RecordTrade(Result{MarketID: "m2", Profit: 1})

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m3", Amount: 50, ExpectedProfit: 0.05})
	assert.False(t, ok)
	assert.Equal(t, "max open positions reached", reason)
}

func TestShouldExecuteDuplicatePosition(t *testing.T) {
	m := NewManager(testConfig())

	m.RecordTrade(Result{MarketID: "m1", Profit: 1})

	ok, reason := m.ShouldExecute(Opportunity{MarketID: "m1", Amount: 50, ExpectedProfit: 0.05})
	assert.False(t, ok)
	assert.Contains(t, reason, "already has an open position")
}

func TestShouldCopySkipsProfitFloor(t *testing.T) {
	m := NewManager(testConfig())

	// Copy signals carry no profit estimate; the floor must not apply.
	ok, reason := m.ShouldCopy(Opportunity{MarketID: "m1", Amount: 10})
	assert.True(t, ok)
	assert.Empty(t, reason)

	// Every other check still applies.
	m.RecordTrade(Result{MarketID: "m1", Profit: 1})
	ok, reason = m.ShouldCopy(Opportunity{MarketID: "m1", Amount: 10})
	assert.False(t, ok)
	assert.Contains(t, reason, "already has an open position")
}

func TestAssessMarketRiskMemoized(t *testing.T) {
	m := NewManager(testConfig())

	first := m.AssessMarketRisk("m1")
	second := m.AssessMarketRisk("m1")
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestRecordTradeDateRollover(t *testing.T) {
	m := NewManager(testConfig())

	day := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day }

	m.RecordTrade(Result{MarketID: "m1", Profit: -1000})
	ok, _ := m.ShouldExecute(Opportunity{MarketID: "m2", Amount: 50, ExpectedProfit: 0.05})
	require.False(t, ok)

	// Next calendar day: the first record resets counters before applying.
	m.now = func() time.Time { return day.Add(24 * time.Hour) }
	m.RecordTrade(Result{MarketID: "m3", Profit: 5})

	status := m.Status()
	assert.Equal(t, 1, status.DailyTrades)
	assert.Equal(t, 5.0, status.DailyProfit)
	assert.Equal(t, 1, status.CurrentPositions)

	ok, _ = m.ShouldExecute(Opportunity{MarketID: "m2", Amount: 50, ExpectedProfit: 0.05})
	assert.True(t, ok)
}

func TestStatusRiskLevel(t *testing.T) {
	m := NewManager(testConfig())
	assert.Equal(t, "normal", m.Status().RiskLevel)

	m.RecordTrade(Result{MarketID: "m1", Profit: -600})
	assert.Equal(t, "high", m.Status().RiskLevel)
}

func TestRecommendedSize(t *testing.T) {
	m := NewManager(testConfig())

	t.Run("invalid inputs", func(t *testing.T) {
		assert.Zero(t, m.RecommendedSize(Opportunity{ExpectedProfit: 0}, 1000))
		assert.Zero(t, m.RecommendedSize(Opportunity{ExpectedProfit: 1}, 1000))
		assert.Zero(t, m.RecommendedSize(Opportunity{ExpectedProfit: 0.5}, 0))
	})

	t.Run("capped at max position size", func(t *testing.T) {
		// A very favorable edge with a big balance hits the cap.
		size := m.RecommendedSize(Opportunity{ExpectedProfit: 0.9}, 100000)
		assert.Equal(t, 100.0, size)
	})

	t.Run("unfavorable edge declines", func(t *testing.T) {
		// Tiny win/loss ratio makes the Kelly fraction negative.
		assert.Zero(t, m.RecommendedSize(Opportunity{ExpectedProfit: 0.05}, 1000))
	})
}
