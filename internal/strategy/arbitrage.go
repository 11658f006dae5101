package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

// Per-cycle scan caps; every price/book fetch is a network round trip.
const (
	maxMismatchMarkets = 20
	maxBookMarkets     = 10
)

// Arbitrage scans for riskless-spread opportunities: complementary
// outcome prices that do not sum to 1.
type Arbitrage struct {
	client          exchange.Client
	minProfitMargin float64
}

// NewArbitrage creates the driver from configuration.
func NewArbitrage(cfg *config.Config) *Arbitrage {
	return &Arbitrage{minProfitMargin: cfg.MinProfitMargin}
}

// Initialize binds the exchange client.
func (a *Arbitrage) Initialize(client exchange.Client) error {
	if client == nil {
		return fmt.Errorf("arbitrage: exchange client required")
	}
	a.client = client
	return nil
}

// FindOpportunities scans the given markets and returns opportunities
// meeting the profit floor, sorted by descending expected profit. A
// failing market is logged and skipped; one bad source never aborts the
// scan.
func (a *Arbitrage) FindOpportunities(ctx context.Context, markets []exchange.Market) []Opportunity {
	if len(markets) == 0 {
		return nil
	}

	var opportunities []Opportunity
	opportunities = append(opportunities, a.findPriceMismatch(ctx, markets)...)
	opportunities = append(opportunities, a.findOrderBookSpread(ctx, markets)...)

	filtered := opportunities[:0]
	for _, opp := range opportunities {
		if opp.ExpectedProfit >= a.minProfitMargin {
			filtered = append(filtered, opp)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ExpectedProfit > filtered[j].ExpectedProfit
	})
	return filtered
}

// findPriceMismatch flags markets whose yes+no prices deviate from 1.
// Half the deviation is taken as expected profit to account for fees.
func (a *Arbitrage) findPriceMismatch(ctx context.Context, markets []exchange.Market) []Opportunity {
	var opportunities []Opportunity

	for _, market := range capMarkets(markets, maxMismatchMarkets) {
		prices, err := a.client.GetMarketPrices(ctx, market.ID)
		if err != nil {
			slog.Debug("price_fetch_failed", "market", market.ID, "error", err)
			continue
		}

		total := prices.Yes + prices.No
		deviation := math.Abs(total - 1.0)
		if deviation < a.minProfitMargin {
			continue
		}

		action := "sell_both"
		if total < 1.0 {
			action = "buy_both"
		}

		opportunities = append(opportunities, Opportunity{
			Type:           trade.SignalPriceMismatch,
			MarketID:       market.ID,
			ExpectedProfit: deviation * 0.5,
			YesPrice:       prices.Yes,
			NoPrice:        prices.No,
			Deviation:      deviation,
			Action:         action,
		})
	}

	return opportunities
}

// findOrderBookSpread looks for books where buying both outcomes at the
// best asks costs less than the guaranteed 1.0 payout.
func (a *Arbitrage) findOrderBookSpread(ctx context.Context, markets []exchange.Market) []Opportunity {
	var opportunities []Opportunity

	for _, market := range capMarkets(markets, maxBookMarkets) {
		yesBook, err := a.client.GetOrderBook(ctx, market.ID, "yes")
		if err != nil {
			slog.Debug("book_fetch_failed", "market", market.ID, "outcome", "yes", "error", err)
			continue
		}
		noBook, err := a.client.GetOrderBook(ctx, market.ID, "no")
		if err != nil {
			slog.Debug("book_fetch_failed", "market", market.ID, "outcome", "no", "error", err)
			continue
		}

		yesAsk, ok := bestAsk(yesBook)
		if !ok {
			continue
		}
		noAsk, ok := bestAsk(noBook)
		if !ok {
			continue
		}

		cost := yesAsk + noAsk
		if cost >= 1.0 {
			continue
		}

		opportunities = append(opportunities, Opportunity{
			Type:           "orderbook_arbitrage",
			MarketID:       market.ID,
			ExpectedProfit: 1.0 - cost,
			YesPrice:       yesAsk,
			NoPrice:        noAsk,
			Deviation:      1.0 - cost,
			Action:         "buy_both",
		})
	}

	return opportunities
}

func bestAsk(book exchange.OrderBook) (float64, bool) {
	best := math.Inf(1)
	for _, lvl := range book.Asks {
		if lvl.Price > 0 && lvl.Price < best {
			best = lvl.Price
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

func capMarkets(markets []exchange.Market, limit int) []exchange.Market {
	if len(markets) > limit {
		return markets[:limit]
	}
	return markets
}
