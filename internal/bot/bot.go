// Package bot runs the trading cycle: fetch markets, scan for
// opportunities and copy signals, gate every candidate through the risk
// manager, and hand survivors to the exchange client.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/risk"
	"github.com/polycopy/bot/internal/strategy"
	"github.com/polycopy/bot/internal/trade"
)

// runStats accumulates counters across cycles.
type runStats struct {
	startTime          time.Time
	cycles             int
	opportunitiesFound int
	signalsFound       int
	tradesExecuted     int
	tradesSucceeded    int
	totalProfit        float64
}

// Status is a point-in-time view of the bot for the facade.
type Status struct {
	Running            bool    `json:"running"`
	DryRun             bool    `json:"dry_run"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	Cycles             int     `json:"cycles"`
	OpportunitiesFound int     `json:"opportunities_found"`
	SignalsFound       int     `json:"signals_found"`
	TradesExecuted     int     `json:"trades_executed"`
	SuccessRate        float64 `json:"success_rate"`
	TotalProfit        float64 `json:"total_profit"`
}

// Bot wires the strategies, risk manager, and exchange client into a
// periodic trading cycle.
type Bot struct {
	cfg    *config.Config
	client exchange.Client

	risk        *risk.Manager
	arbitrage   *strategy.Arbitrage
	copyTrading *strategy.CopyTrading
	smartMoney  *strategy.SmartMoney
	enhanced    *strategy.SmartMoneyEnhanced

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   runStats
}

// New builds the bot and initializes every strategy against the client.
func New(cfg *config.Config, client exchange.Client) (*Bot, error) {
	b := &Bot{
		cfg:         cfg,
		client:      client,
		risk:        risk.NewManager(cfg),
		arbitrage:   strategy.NewArbitrage(cfg),
		copyTrading: strategy.NewCopyTrading(cfg),
		smartMoney:  strategy.NewSmartMoney(cfg),
	}
	if cfg.UseEnhancedSmartMoney {
		b.enhanced = strategy.NewSmartMoneyEnhanced(cfg)
	}

	if err := b.arbitrage.Initialize(client); err != nil {
		return nil, fmt.Errorf("init arbitrage: %w", err)
	}
	if err := b.copyTrading.Initialize(client); err != nil {
		return nil, fmt.Errorf("init copy trading: %w", err)
	}
	if err := b.smartMoney.Initialize(client); err != nil {
		return nil, fmt.Errorf("init smart money: %w", err)
	}
	if b.enhanced != nil {
		if err := b.enhanced.Initialize(client); err != nil {
			return nil, fmt.Errorf("init enhanced smart money: %w", err)
		}
	}

	return b, nil
}

// Risk exposes the risk manager for the facade.
func (b *Bot) Risk() *risk.Manager { return b.risk }

// Arbitrage exposes the arbitrage driver for the facade.
func (b *Bot) Arbitrage() *strategy.Arbitrage { return b.arbitrage }

// CopyTrading exposes the combined copy-trading driver for the facade.
func (b *Bot) CopyTrading() *strategy.CopyTrading { return b.copyTrading }

// SmartMoney exposes the standalone follower for the facade.
func (b *Bot) SmartMoney() *strategy.SmartMoney { return b.smartMoney }

// Enhanced exposes the enhanced follower, or nil when disabled.
func (b *Bot) Enhanced() *strategy.SmartMoneyEnhanced { return b.enhanced }

// Start launches the trading cycle. It is a no-op if already running.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	b.stats = runStats{startTime: time.Now()}
	b.mu.Unlock()

	if b.enhanced != nil {
		if err := b.enhanced.Start(runCtx); err != nil {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
			cancel()
			return err
		}
	}

	go b.runLoop(runCtx)
	slog.Info("bot_started",
		"interval", b.cfg.CheckInterval,
		"dry_run", b.cfg.DryRun,
		"copy_trading", b.cfg.EnableCopyTrading,
	)
	return nil
}

// Stop cancels the cycle and waits for it to exit.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	cancel()
	<-done
	if b.enhanced != nil {
		b.enhanced.Stop()
	}
	slog.Info("bot_stopped")
}

// Status reports run statistics.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Status{
		Running:            b.running,
		DryRun:             b.cfg.DryRun,
		Cycles:             b.stats.cycles,
		OpportunitiesFound: b.stats.opportunitiesFound,
		SignalsFound:       b.stats.signalsFound,
		TradesExecuted:     b.stats.tradesExecuted,
		TotalProfit:        b.stats.totalProfit,
	}
	if b.running {
		s.UptimeSeconds = time.Since(b.stats.startTime).Seconds()
	}
	if b.stats.tradesExecuted > 0 {
		s.SuccessRate = float64(b.stats.tradesSucceeded) / float64(b.stats.tradesExecuted)
	}
	return s
}

// runLoop executes cycles at the configured interval, starting with an
// immediate pass.
func (b *Bot) runLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()

	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// runCycle is one full pass: markets, arbitrage, copy signals. A failed
// market fetch skips the cycle; it never stops the loop.
func (b *Bot) runCycle(ctx context.Context) {
	markets, err := b.client.GetActiveMarkets(ctx, b.cfg.MarketFetchLimit)
	if err != nil {
		slog.Error("market_fetch_failed", "error", err)
		return
	}

	opportunities := b.arbitrage.FindOpportunities(ctx, markets)
	for _, opp := range opportunities {
		b.handleOpportunity(ctx, opp)
	}

	var signals []trade.CopySignal
	if b.cfg.EnableCopyTrading {
		signals = b.copyTrading.GetSignals(ctx, markets)
		if b.enhanced != nil {
			signals = append(signals, b.enhanced.GetSignals(ctx, markets)...)
		}
		for _, sig := range signals {
			b.handleCopySignal(ctx, sig)
		}
	}

	b.mu.Lock()
	b.stats.cycles++
	b.stats.opportunitiesFound += len(opportunities)
	b.stats.signalsFound += len(signals)
	b.mu.Unlock()

	slog.Info("cycle_complete",
		"markets", len(markets),
		"opportunities", len(opportunities),
		"signals", len(signals),
	)
}

// handleOpportunity gates one arbitrage candidate and executes it.
func (b *Bot) handleOpportunity(ctx context.Context, opp strategy.Opportunity) {
	riskOp := risk.Opportunity{
		MarketID:       opp.MarketID,
		ExpectedProfit: opp.ExpectedProfit,
	}

	ok, reason := b.risk.ShouldExecute(riskOp)
	if !ok {
		slog.Debug("opportunity_rejected", "market", opp.MarketID, "reason", reason)
		return
	}

	side := trade.SideBuy
	if opp.Action == "sell_both" {
		side = trade.SideSell
	}

	order := exchange.Order{
		MarketID:       opp.MarketID,
		Side:           side,
		Price:          opp.YesPrice,
		Amount:         b.positionSize(ctx, riskOp),
		ExpectedProfit: opp.ExpectedProfit,
	}

	result := b.client.ExecuteTrade(ctx, order)
	b.recordExecution(opp.MarketID, result)
	slog.Info("opportunity_executed",
		"market", opp.MarketID,
		"type", opp.Type,
		"action", opp.Action,
		"expected_profit", opp.ExpectedProfit,
		"success", result.Success,
		"order_id", result.OrderID,
	)
}

// handleCopySignal gates one copy signal and, when execution is
// enabled, mirrors it. With execution off the signal is only logged.
func (b *Bot) handleCopySignal(ctx context.Context, sig trade.CopySignal) {
	ok, reason := b.risk.ShouldCopy(risk.Opportunity{
		MarketID: sig.MarketToken,
		Amount:   sig.Size,
	})
	if !ok {
		slog.Debug("copy_signal_rejected", "market", sig.MarketToken, "reason", reason)
		return
	}

	if !b.cfg.EnableCopyTradingExecution {
		slog.Info("copy_signal",
			"type", sig.Type,
			"market", sig.MarketToken,
			"direction", sig.Direction,
			"strength", sig.Strength,
			"reason", sig.Reason,
		)
		return
	}

	order := exchange.Order{
		MarketID: sig.MarketToken,
		Side:     sig.Direction,
		Price:    sig.Price,
		Amount:   sig.Size,
	}

	result := b.client.ExecuteTrade(ctx, order)
	b.recordExecution(sig.MarketToken, result)
	slog.Info("copy_signal_executed",
		"type", sig.Type,
		"market", sig.MarketToken,
		"direction", sig.Direction,
		"strength", sig.Strength,
		"success", result.Success,
		"order_id", result.OrderID,
	)
}

// positionSize sizes an order from the available balance, falling back
// to the configured maximum when the balance is unknown or the sizing
// model declines the opportunity.
func (b *Bot) positionSize(ctx context.Context, op risk.Opportunity) float64 {
	balance, err := b.client.GetBalance(ctx)
	if err != nil {
		slog.Debug("balance_fetch_failed", "error", err)
		return b.cfg.MaxPositionSize
	}

	if size := b.risk.RecommendedSize(op, balance.Available); size > 0 {
		return size
	}
	return b.cfg.MaxPositionSize
}

// recordExecution folds an execution result into the risk counters and
// run statistics.
func (b *Bot) recordExecution(marketID string, result exchange.ExecutionResult) {
	b.risk.RecordTrade(risk.Result{
		MarketID: marketID,
		Profit:   result.Profit,
		Success:  result.Success,
	})

	b.mu.Lock()
	b.stats.tradesExecuted++
	if result.Success {
		b.stats.tradesSucceeded++
	}
	b.stats.totalProfit += result.Profit
	b.mu.Unlock()
}
