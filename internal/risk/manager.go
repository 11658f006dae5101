// Package risk implements the admission controller that gates every
// candidate order against cumulative daily risk limits.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/polycopy/bot/internal/config"
)

// marketRiskCeiling rejects markets whose assessed risk score exceeds it.
const marketRiskCeiling = 0.8

// Opportunity is the risk-relevant view of a candidate trade. Amount
// zero means "use the configured default position size".
type Opportunity struct {
	MarketID       string
	Amount         float64
	ExpectedProfit float64
}

// Result is the outcome of an executed (or attempted) trade, fed back
// into the daily counters.
type Result struct {
	MarketID string
	Profit   float64
	Success  bool
}

// DailyStats accumulates per-calendar-day trading state.
type DailyStats struct {
	Date          string
	TotalTrades   int
	TotalProfit   float64
	OpenPositions map[string]struct{}
}

// Status is a point-in-time view of the risk state.
type Status struct {
	DailyProfit      float64 `json:"daily_profit"`
	DailyTrades      int     `json:"daily_trades"`
	CurrentPositions int     `json:"current_positions"`
	MaxDailyLoss     float64 `json:"max_daily_loss"`
	RiskLevel        string  `json:"risk_level"`
}

// Manager is the stateful admission controller. Daily counters are
// single-writer (RecordTrade); the mutex exists because the HTTP facade
// may read Status concurrently with the cycle.
type Manager struct {
	mu         sync.Mutex
	cfg        *config.Config
	daily      DailyStats
	riskScores map[string]float64

	// now is swapped in tests to simulate date rollover.
	now func() time.Time
}

// NewManager creates a risk manager with fresh daily state.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		cfg:        cfg,
		riskScores: make(map[string]float64),
		now:        time.Now,
	}
	m.daily = freshStats(m.today())
	return m
}

// ShouldExecute evaluates an opportunity against the admission checks,
// short-circuiting on the first failure. It never mutates daily state;
// a denial is a normal control-flow outcome, reported with a reason.
func (m *Manager) ShouldExecute(op Opportunity) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitLocked(op, true)
}

// ShouldCopy applies the admission checks to a copy signal. Copy
// signals are strength-gated upstream and carry no profit estimate, so
// the profitability floor is skipped; every other check applies.
func (m *Manager) ShouldCopy(op Opportunity) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitLocked(op, false)
}

func (m *Manager) admitLocked(op Opportunity, requireProfit bool) (bool, string) {
	// 1. Daily loss breaker
	if m.daily.TotalProfit <= -m.cfg.MaxDailyLoss {
		return false, "daily loss limit reached"
	}

	// 2. Position-count cap
	if len(m.daily.OpenPositions) >= m.cfg.MaxPositions {
		return false, "max open positions reached"
	}

	// 3. Size cap
	size := op.Amount
	if size == 0 {
		size = m.cfg.MaxPositionSize
	}
	if size > m.cfg.MaxPositionSize {
		return false, fmt.Sprintf("trade size %.2f exceeds limit %.2f", size, m.cfg.MaxPositionSize)
	}

	// 4. Profitability floor
	if requireProfit && op.ExpectedProfit < m.cfg.MinProfitMargin {
		return false, fmt.Sprintf("expected profit %.2f%% below minimum %.2f%%",
			op.ExpectedProfit*100, m.cfg.MinProfitMargin*100)
	}

	// 5. Market risk ceiling
	if score := m.assessLocked(op.MarketID); score > marketRiskCeiling {
		return false, fmt.Sprintf("market risk too high: %.2f", score)
	}

	// 6. Duplicate-position guard
	if _, open := m.daily.OpenPositions[op.MarketID]; open {
		return false, fmt.Sprintf("market %s already has an open position", op.MarketID)
	}

	return true, ""
}

// AssessMarketRisk returns the market's risk score in [0,1], computed
// at most once per market per trading day.
func (m *Manager) AssessMarketRisk(marketID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessLocked(marketID)
}

func (m *Manager) assessLocked(marketID string) float64 {
	if score, ok := m.riskScores[marketID]; ok {
		return score
	}

	// TODO: score from liquidity, volatility, and volume once the
	// exchange client exposes them; medium risk until then.
	score := 0.5

	m.riskScores[marketID] = score
	return score
}

// RecordTrade folds an execution outcome into the daily counters. A
// calendar-day rollover resets all counters and the risk-score cache
// before the new record is applied.
func (m *Manager) RecordTrade(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if today := m.today(); m.daily.Date != today {
		m.daily = freshStats(today)
		m.riskScores = make(map[string]float64)
	}

	m.daily.TotalTrades++
	m.daily.TotalProfit += res.Profit
	if res.MarketID != "" {
		m.daily.OpenPositions[res.MarketID] = struct{}{}
	}
}

// Status reports the current risk state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	level := "normal"
	if m.daily.TotalProfit < -m.cfg.MaxDailyLoss*0.5 {
		level = "high"
	}

	return Status{
		DailyProfit:      m.daily.TotalProfit,
		DailyTrades:      m.daily.TotalTrades,
		CurrentPositions: len(m.daily.OpenPositions),
		MaxDailyLoss:     m.cfg.MaxDailyLoss,
		RiskLevel:        level,
	}
}

// RecommendedSize suggests a position size for an opportunity using a
// conservative half-Kelly fraction with an assumed 60% win probability,
// capped at the configured maximum.
func (m *Manager) RecommendedSize(op Opportunity, availableBalance float64) float64 {
	if op.ExpectedProfit <= 0 || op.ExpectedProfit >= 1 || availableBalance <= 0 {
		return 0
	}

	const winProbability = 0.6
	winLossRatio := op.ExpectedProfit / (1 - op.ExpectedProfit)
	kelly := (winProbability*winLossRatio - (1 - winProbability)) / winLossRatio

	fraction := kelly * 0.5
	if fraction < 0 {
		fraction = 0
	}

	size := availableBalance * fraction
	if size > m.cfg.MaxPositionSize {
		size = m.cfg.MaxPositionSize
	}
	return size
}

func (m *Manager) today() string {
	return m.now().Format("2006-01-02")
}

func freshStats(date string) DailyStats {
	return DailyStats{
		Date:          date,
		OpenPositions: make(map[string]struct{}),
	}
}
