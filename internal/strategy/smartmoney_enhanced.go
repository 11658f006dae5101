package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/stats"
	"github.com/polycopy/bot/internal/trade"
)

// The enhanced follower keeps a deeper dedup window than the polled
// variants because the live stream can replay bursts across reconnects.
const (
	enhancedMaxSeen      = 10000
	enhancedSignalBuffer = 200
)

// SmartMoneyEnhanced follows tracked addresses on its own cadence and
// scores each signal from the source trader's historical performance
// instead of a fixed confidence. It can optionally consume the live
// trade stream when the exchange client supports it.
type SmartMoneyEnhanced struct {
	mu        sync.Mutex
	client    exchange.Client
	streamer  exchange.Streamer
	addresses map[string]struct{}

	factory     trade.Factory
	seen        *trade.DedupWindow
	tracker     *stats.TraderTracker
	fetchLimit  int
	minStrength float64
	interval    time.Duration
	useStream   bool

	signals chan trade.CopySignal
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSmartMoneyEnhanced creates the follower from configuration.
func NewSmartMoneyEnhanced(cfg *config.Config) *SmartMoneyEnhanced {
	addresses := make(map[string]struct{}, len(cfg.SmartMoneyAddresses))
	for _, a := range cfg.SmartMoneyAddresses {
		addresses[a] = struct{}{}
	}
	interval := cfg.SmartMoneyCheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SmartMoneyEnhanced{
		addresses:   addresses,
		factory:     trade.NewFactory(cfg.CopyTradeSizeMultiplier),
		seen:        trade.NewDedupWindow(enhancedMaxSeen),
		tracker:     stats.NewTraderTracker(),
		fetchLimit:  cfg.CopyTradeFetchLimit,
		minStrength: cfg.MinSignalStrength,
		interval:    interval,
		useStream:   cfg.EnableSmartMoneyStream,
		signals:     make(chan trade.CopySignal, enhancedSignalBuffer),
	}
}

// Initialize binds the exchange client. When streaming is enabled the
// client must also implement exchange.Streamer; failing fast here beats
// discovering a silent no-op feed at runtime.
func (s *SmartMoneyEnhanced) Initialize(client exchange.Client) error {
	if client == nil {
		return fmt.Errorf("smartmoney enhanced: exchange client required")
	}
	s.client = client

	if s.useStream {
		streamer, ok := client.(exchange.Streamer)
		if !ok {
			return fmt.Errorf("smartmoney enhanced: streaming enabled but client %T does not support it", client)
		}
		s.streamer = streamer
	}
	return nil
}

// Start launches the background poll loop and, when enabled, the stream
// consumer. It is a no-op if already running.
func (s *SmartMoneyEnhanced) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.client == nil {
		s.mu.Unlock()
		return fmt.Errorf("smartmoney enhanced: not initialized")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	if s.streamer != nil {
		records, err := s.streamer.StreamTrades(runCtx, nil)
		if err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			cancel()
			return fmt.Errorf("smartmoney enhanced: stream start: %w", err)
		}
		go s.consumeStream(runCtx, records)
	}

	go s.pollLoop(runCtx)
	slog.Info("smart_money_started", "addresses", len(s.Addresses()), "interval", s.interval, "stream", s.streamer != nil)
	return nil
}

// Stop cancels the background work and waits for the poll loop to exit.
func (s *SmartMoneyEnhanced) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("smart_money_stopped")
}

// Signals exposes the live signal feed.
func (s *SmartMoneyEnhanced) Signals() <-chan trade.CopySignal {
	return s.signals
}

// GetSignals satisfies SignalStrategy. When the background loop is
// running it drains whatever has been buffered; otherwise it does one
// synchronous sweep of the watch list.
func (s *SmartMoneyEnhanced) GetSignals(ctx context.Context, _ []exchange.Market) []trade.CopySignal {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return rankSignals(s.checkAddresses(ctx), s.minStrength)
	}

	var out []trade.CopySignal
	for {
		select {
		case sig := <-s.signals:
			out = append(out, sig)
		default:
			return rankSignals(out, s.minStrength)
		}
	}
}

// pollLoop sweeps the watch list on the configured interval, starting
// with an immediate pass.
func (s *SmartMoneyEnhanced) pollLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.publish(s.checkAddresses(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(s.checkAddresses(ctx))
		}
	}
}

// checkAddresses polls every watched address once and returns the new
// signals. Per-address failures are logged and skipped.
func (s *SmartMoneyEnhanced) checkAddresses(ctx context.Context) []trade.CopySignal {
	var signals []trade.CopySignal

	for _, address := range s.Addresses() {
		records, err := s.client.GetTradesByAddress(ctx, address, s.fetchLimit)
		if err != nil {
			slog.Warn("address_trades_fetch_failed", "address", address, "error", err)
			continue
		}

		for _, record := range records {
			if sig, ok := s.admit(record, address); ok {
				signals = append(signals, sig)
			}
		}
	}

	return signals
}

// consumeStream filters the market-wide trade feed down to the watched
// addresses and runs matches through the same admission path as polls.
func (s *SmartMoneyEnhanced) consumeStream(ctx context.Context, records <-chan trade.RawRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-records:
			if !ok {
				return
			}
			address := s.matchAddress(record)
			if address == "" {
				continue
			}
			if sig, ok := s.admit(record, address); ok {
				s.publish([]trade.CopySignal{sig})
			}
		}
	}
}

// admit normalizes and deduplicates one raw record, scoring it from the
// source trader's tracked performance.
func (s *SmartMoneyEnhanced) admit(record trade.RawRecord, address string) (trade.CopySignal, bool) {
	t := trade.Normalize(record)
	if t == nil {
		return trade.CopySignal{}, false
	}

	s.mu.Lock()
	if s.seen.HasSeen(t.ID) {
		s.mu.Unlock()
		return trade.CopySignal{}, false
	}
	s.seen.MarkSeen(t.ID)
	s.mu.Unlock()

	s.tracker.RecordTrade(address, t.Timestamp)
	perf := s.tracker.Snapshot(address)

	t.SourceAddress = address
	policy := trade.TraderStrength{WinRate: perf.WinRate, AvgProfit: perf.AvgProfit}
	reason := fmt.Sprintf("tracked trader %s %s (win rate %.0f%%)", shortAddress(address), t.Side, perf.WinRate*100)
	return s.factory.Build(*t, trade.SignalSmartMoney, policy, reason), true
}

// matchAddress reports which watched address a raw stream record
// belongs to, or empty when none matches.
func (s *SmartMoneyEnhanced) matchAddress(record trade.RawRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{"maker", "taker", "proxyWallet", "address"} {
		if v, ok := record[key].(string); ok && v != "" {
			if _, watched := s.addresses[v]; watched {
				return v
			}
		}
	}
	return ""
}

// publish pushes signals above the strength floor onto the feed,
// dropping when the buffer is full rather than blocking the loop.
func (s *SmartMoneyEnhanced) publish(signals []trade.CopySignal) {
	for _, sig := range signals {
		if sig.Strength < s.minStrength {
			continue
		}
		select {
		case s.signals <- sig:
		default:
			slog.Warn("signal_buffer_full", "market", sig.MarketToken)
		}
	}
}

// RecordOutcome folds a settled profit for one address into its score.
func (s *SmartMoneyEnhanced) RecordOutcome(address string, profit float64) {
	s.tracker.RecordOutcome(address, profit)
}

// TraderStats reports tracked performance for every watched address.
func (s *SmartMoneyEnhanced) TraderStats() []stats.TraderStats {
	return s.tracker.All()
}

// AddAddress starts following an address. Returns false when already
// watched.
func (s *SmartMoneyEnhanced) AddAddress(address string) bool {
	if address == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[address]; ok {
		return false
	}
	s.addresses[address] = struct{}{}
	return true
}

// RemoveAddress stops following an address.
func (s *SmartMoneyEnhanced) RemoveAddress(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[address]; !ok {
		return false
	}
	delete(s.addresses, address)
	return true
}

// Addresses returns a copy of the current watch list.
func (s *SmartMoneyEnhanced) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.addresses))
	for a := range s.addresses {
		out = append(out, a)
	}
	return out
}
