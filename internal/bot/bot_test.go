package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

// stubClient serves canned data and records executions.
type stubClient struct {
	markets   []exchange.Market
	prices    map[string]exchange.Prices
	byAddress map[string][]trade.RawRecord
	executed  []exchange.Order
}

func (s *stubClient) Connect(context.Context) error { return nil }
func (s *stubClient) Disconnect() error             { return nil }

func (s *stubClient) GetActiveMarkets(context.Context, int) ([]exchange.Market, error) {
	return s.markets, nil
}

func (s *stubClient) GetMarketPrices(_ context.Context, marketID string) (exchange.Prices, error) {
	return s.prices[marketID], nil
}

func (s *stubClient) GetOrderBook(context.Context, string, string) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, nil
}

func (s *stubClient) GetTradeHistory(context.Context, int) ([]trade.RawRecord, error) {
	return nil, nil
}

func (s *stubClient) GetTradesByAddress(_ context.Context, address string, _ int) ([]trade.RawRecord, error) {
	return s.byAddress[address], nil
}

func (s *stubClient) GetBalance(context.Context) (exchange.Balance, error) {
	return exchange.Balance{Available: 1000, Currency: "USDC"}, nil
}

func (s *stubClient) ExecuteTrade(_ context.Context, order exchange.Order) exchange.ExecutionResult {
	s.executed = append(s.executed, order)
	return exchange.ExecutionResult{Success: true, OrderID: "stub", Profit: order.ExpectedProfit}
}

func botConfig() *config.Config {
	return &config.Config{
		MaxPositionSize:         100,
		MinProfitMargin:         0.02,
		CheckInterval:           1000000000, // 1s, loop not started in most tests
		MarketFetchLimit:        100,
		MaxDailyLoss:            1000,
		MaxPositions:            10,
		EnableCopyTrading:       true,
		EnableLargeTrades:       false,
		EnableSmartMoney:        true,
		DryRun:                  true,
		CopyTradeSizeMultiplier: 0.1,
		CopyTradeFetchLimit:     50,
		MinSignalStrength:       0.7,
		MinLargeTradeSize:       1000,
	}
}

func TestCycleExecutesArbitrageOpportunity(t *testing.T) {
	client := &stubClient{
		markets: []exchange.Market{{ID: "m1"}},
		prices:  map[string]exchange.Prices{"m1": {Yes: 0.6, No: 0.3}},
	}

	b, err := New(botConfig(), client)
	require.NoError(t, err)

	b.runCycle(context.Background())

	require.Len(t, client.executed, 1)
	order := client.executed[0]
	assert.Equal(t, "m1", order.MarketID)
	assert.Equal(t, trade.SideBuy, order.Side)
	assert.InDelta(t, 0.05, order.ExpectedProfit, 1e-9)

	status := b.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 1, status.OpportunitiesFound)
	assert.Equal(t, 1, status.TradesExecuted)
	assert.Equal(t, 1.0, status.SuccessRate)

	// The executed market now holds a position.
	riskStatus := b.Risk().Status()
	assert.Equal(t, 1, riskStatus.CurrentPositions)
}

func TestCycleRejectsDuplicateMarket(t *testing.T) {
	client := &stubClient{
		markets: []exchange.Market{{ID: "m1"}},
		prices:  map[string]exchange.Prices{"m1": {Yes: 0.6, No: 0.3}},
	}

	b, err := New(botConfig(), client)
	require.NoError(t, err)

	b.runCycle(context.Background())
	b.runCycle(context.Background())

	// Second cycle finds the same opportunity but the position is open.
	assert.Len(t, client.executed, 1)
	assert.Equal(t, 2, b.Status().Cycles)
}

func TestCopySignalLoggedNotExecutedByDefault(t *testing.T) {
	client := &stubClient{
		markets: []exchange.Market{{ID: "m1"}},
		prices:  map[string]exchange.Prices{"m1": {Yes: 0.5, No: 0.5}},
		byAddress: map[string][]trade.RawRecord{
			"0xwhale": {{"id": "t-1", "tokenId": "tok1", "side": "buy", "price": 0.6, "size": 100.0}},
		},
	}

	cfg := botConfig()
	cfg.SmartMoneyAddresses = []string{"0xwhale"}

	b, err := New(cfg, client)
	require.NoError(t, err)

	b.runCycle(context.Background())

	// Execution is off: the signal is counted but nothing is placed.
	assert.Empty(t, client.executed)
	assert.Equal(t, 1, b.Status().SignalsFound)
}

func TestCopySignalExecutedWhenEnabled(t *testing.T) {
	client := &stubClient{
		markets: []exchange.Market{{ID: "m1"}},
		prices:  map[string]exchange.Prices{"m1": {Yes: 0.5, No: 0.5}},
		byAddress: map[string][]trade.RawRecord{
			"0xwhale": {{"id": "t-1", "tokenId": "tok1", "side": "buy", "price": 0.6, "size": 100.0}},
		},
	}

	cfg := botConfig()
	cfg.SmartMoneyAddresses = []string{"0xwhale"}
	cfg.EnableCopyTradingExecution = true

	b, err := New(cfg, client)
	require.NoError(t, err)

	b.runCycle(context.Background())

	require.Len(t, client.executed, 1)
	order := client.executed[0]
	assert.Equal(t, "tok1", order.MarketID)
	assert.Equal(t, trade.SideBuy, order.Side)
	assert.Equal(t, 10.0, order.Amount)
}

func TestStartStop(t *testing.T) {
	client := &stubClient{}
	b, err := New(botConfig(), client)
	require.NoError(t, err)

	assert.False(t, b.Status().Running)

	require.NoError(t, b.Start(context.Background()))
	assert.True(t, b.Status().Running)

	// Starting again is a no-op.
	require.NoError(t, b.Start(context.Background()))

	b.Stop()
	assert.False(t, b.Status().Running)

	// Stopping again is a no-op.
	b.Stop()
}

func TestEnhancedInitFailsWithoutStreamer(t *testing.T) {
	cfg := botConfig()
	cfg.UseEnhancedSmartMoney = true
	cfg.EnableSmartMoneyStream = true

	_, err := New(cfg, &stubClient{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enhanced smart money")
}
