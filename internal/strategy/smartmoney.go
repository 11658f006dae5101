package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

// SmartMoney is the standalone smart-money follower. Unlike the
// combined copy-trading driver its watch list is mutable at runtime, so
// the facade can add and remove addresses without a restart.
type SmartMoney struct {
	mu        sync.Mutex
	client    exchange.Client
	addresses map[string]struct{}

	factory     trade.Factory
	seen        *trade.DedupWindow
	fetchLimit  int
	minStrength float64
}

// Stats summarizes the follower's runtime state for the facade.
type SmartMoneyStats struct {
	MonitoredAddresses []string `json:"monitored_addresses"`
	SeenTrades         int      `json:"seen_trades"`
	SizeMultiplier     float64  `json:"size_multiplier"`
	FetchLimit         int      `json:"fetch_limit"`
}

// NewSmartMoney creates the follower seeded with the configured
// addresses.
func NewSmartMoney(cfg *config.Config) *SmartMoney {
	addresses := make(map[string]struct{}, len(cfg.SmartMoneyAddresses))
	for _, a := range cfg.SmartMoneyAddresses {
		addresses[a] = struct{}{}
	}
	return &SmartMoney{
		addresses:   addresses,
		factory:     trade.NewFactory(cfg.CopyTradeSizeMultiplier),
		seen:        trade.NewDedupWindow(trade.DefaultMaxSeen),
		fetchLimit:  cfg.CopyTradeFetchLimit,
		minStrength: cfg.MinSignalStrength,
	}
}

// Initialize binds the exchange client.
func (s *SmartMoney) Initialize(client exchange.Client) error {
	if client == nil {
		return fmt.Errorf("smartmoney: exchange client required")
	}
	s.client = client
	return nil
}

// GetSignals polls every watched address and returns unseen trades as
// copy signals, strongest first. The markets argument is unused; the
// watch list, not the market scan, drives this source.
func (s *SmartMoney) GetSignals(ctx context.Context, _ []exchange.Market) []trade.CopySignal {
	var signals []trade.CopySignal

	for _, address := range s.Addresses() {
		records, err := s.client.GetTradesByAddress(ctx, address, s.fetchLimit)
		if err != nil {
			slog.Warn("address_trades_fetch_failed", "address", address, "error", err)
			continue
		}

		s.mu.Lock()
		for _, record := range records {
			t := trade.Normalize(record)
			if t == nil || s.seen.HasSeen(t.ID) {
				continue
			}
			s.seen.MarkSeen(t.ID)

			t.SourceAddress = address
			reason := fmt.Sprintf("tracked trader %s %s", shortAddress(address), t.Side)
			signals = append(signals, s.factory.Build(*t, trade.SignalSmartMoney, trade.FixedStrength(smartMoneyStrength), reason))
		}
		s.mu.Unlock()
	}

	return rankSignals(signals, s.minStrength)
}

// AddAddress starts following an address. Returns false when it was
// already watched.
func (s *SmartMoney) AddAddress(address string) bool {
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

// RemoveAddress stops following an address. Returns false when it was
// not watched.
func (s *SmartMoney) RemoveAddress(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[address]; !ok {
		return false
	}
	delete(s.addresses, address)
	return true
}

// Addresses returns a copy of the current watch list.
func (s *SmartMoney) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.addresses))
	for a := range s.addresses {
		out = append(out, a)
	}
	return out
}

// ClearSeenTrades resets the dedup window so previously mirrored trades
// can be surfaced again.
func (s *SmartMoney) ClearSeenTrades() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.Clear()
}

// Stats reports the follower's runtime state.
func (s *SmartMoney) Stats() SmartMoneyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	addresses := make([]string, 0, len(s.addresses))
	for a := range s.addresses {
		addresses = append(addresses, a)
	}
	return SmartMoneyStats{
		MonitoredAddresses: addresses,
		SeenTrades:         s.seen.Len(),
		SizeMultiplier:     s.factory.CopyRatio,
		FetchLimit:         s.fetchLimit,
	}
}
