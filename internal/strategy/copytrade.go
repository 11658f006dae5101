package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

// Large-trade following looks for lopsided whale activity. A side wins
// the vote when it carries 1.5x the opposite side; the majority share
// becomes the signal strength, capped so volume consensus alone never
// outranks a proven trader.
const (
	largeTradeMajority    = 1.5
	largeTradeMaxStrength = 0.95

	smartMoneyStrength = 0.9

	maxCopyMarkets = 20
)

// CopyTrading mirrors trades from two sources: large-trade voting per
// market and a fixed list of smart-money addresses.
type CopyTrading struct {
	client exchange.Client

	factory trade.Factory
	seen    *trade.DedupWindow

	enableLargeTrades bool
	enableSmartMoney  bool
	addresses         []string
	fetchLimit        int
	minLargeTradeSize float64
	minStrength       float64
}

// NewCopyTrading creates the driver from configuration.
func NewCopyTrading(cfg *config.Config) *CopyTrading {
	return &CopyTrading{
		factory:           trade.NewFactory(cfg.CopyTradeSizeMultiplier),
		seen:              trade.NewDedupWindow(trade.DefaultMaxSeen),
		enableLargeTrades: cfg.EnableLargeTrades,
		enableSmartMoney:  cfg.EnableSmartMoney,
		addresses:         cfg.SmartMoneyAddresses,
		fetchLimit:        cfg.CopyTradeFetchLimit,
		minLargeTradeSize: cfg.MinLargeTradeSize,
		minStrength:       cfg.MinSignalStrength,
	}
}

// Initialize binds the exchange client.
func (c *CopyTrading) Initialize(client exchange.Client) error {
	if client == nil {
		return fmt.Errorf("copytrade: exchange client required")
	}
	c.client = client
	return nil
}

// GetSignals collects large-trade and smart-money signals, filters them
// by the strength floor, and returns them strongest first.
func (c *CopyTrading) GetSignals(ctx context.Context, markets []exchange.Market) []trade.CopySignal {
	var signals []trade.CopySignal

	if c.enableLargeTrades {
		signals = append(signals, c.findLargeTrades(ctx, markets)...)
	}
	if c.enableSmartMoney && len(c.addresses) > 0 {
		signals = append(signals, c.followSmartMoney(ctx)...)
	}

	return rankSignals(signals, c.minStrength)
}

// findLargeTrades fetches recent history once, then votes per market on
// the buy/sell balance of trades above the size threshold.
func (c *CopyTrading) findLargeTrades(ctx context.Context, markets []exchange.Market) []trade.CopySignal {
	if len(markets) == 0 {
		return nil
	}

	records, err := c.client.GetTradeHistory(ctx, c.fetchLimit)
	if err != nil {
		slog.Warn("trade_history_fetch_failed", "error", err)
		return nil
	}

	large := make(map[string][]trade.NormalizedTrade)
	for _, record := range records {
		t := trade.Normalize(record)
		if t == nil || t.Size < c.minLargeTradeSize {
			continue
		}
		large[t.MarketToken] = append(large[t.MarketToken], *t)
	}

	var signals []trade.CopySignal
	for _, market := range capMarkets(markets, maxCopyMarkets) {
		trades := large[market.ID]
		if len(trades) == 0 {
			continue
		}

		buys, sells := 0, 0
		var latest trade.NormalizedTrade
		for _, t := range trades {
			if t.Side == trade.SideBuy {
				buys++
			} else {
				sells++
			}
			if t.Timestamp >= latest.Timestamp {
				latest = t
			}
		}

		var direction trade.Side
		var majority int
		switch {
		case float64(buys) > float64(sells)*largeTradeMajority:
			direction, majority = trade.SideBuy, buys
		case float64(sells) > float64(buys)*largeTradeMajority:
			direction, majority = trade.SideSell, sells
		default:
			continue
		}

		strength := math.Min(float64(majority)/float64(buys+sells), largeTradeMaxStrength)
		reason := fmt.Sprintf("%d of %d large trades are %ss", majority, buys+sells, direction)

		latest.Side = direction
		signals = append(signals, c.factory.Build(latest, trade.SignalLargeTrade, trade.FixedStrength(strength), reason))
	}

	return signals
}

// followSmartMoney pulls recent trades for each tracked address and
// mirrors the unseen ones at fixed confidence. A failing address is
// logged and skipped so one bad source never hides the others.
func (c *CopyTrading) followSmartMoney(ctx context.Context) []trade.CopySignal {
	var signals []trade.CopySignal

	for _, address := range c.addresses {
		records, err := c.client.GetTradesByAddress(ctx, address, c.fetchLimit)
		if err != nil {
			slog.Warn("address_trades_fetch_failed", "address", address, "error", err)
			continue
		}

		for _, record := range records {
			t := trade.Normalize(record)
			if t == nil {
				continue
			}
			if c.seen.HasSeen(t.ID) {
				continue
			}
			c.seen.MarkSeen(t.ID)

			t.SourceAddress = address
			reason := fmt.Sprintf("tracked trader %s %s", shortAddress(address), t.Side)
			signals = append(signals, c.factory.Build(*t, trade.SignalSmartMoney, trade.FixedStrength(smartMoneyStrength), reason))
		}
	}

	return signals
}

// shortAddress abbreviates a wallet address for log and reason text.
func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + ".." + address[len(address)-4:]
}
