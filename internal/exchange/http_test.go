package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/bot/internal/config"
)

func newTestClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()

	cfg := &config.Config{
		ClobURL:             srv.URL,
		GammaURL:            srv.URL,
		DataURL:             srv.URL,
		DryRun:              true,
		CopyTradeFetchLimit: 50,
	}
	c := NewHTTPClient(cfg)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestConnectRequiresSignerForLiveExecution(t *testing.T) {
	cfg := &config.Config{ClobURL: "https://example.com", DryRun: false}
	c := NewHTTPClient(cfg)
	require.Error(t, c.Connect(context.Background()))

	cfg.PrivateKey = "0x" + strings.Repeat("ab", 32)
	require.NoError(t, NewHTTPClient(cfg).Connect(context.Background()))

	cfg.PrivateKey = "not-hex"
	require.Error(t, NewHTTPClient(cfg).Connect(context.Background()))
}

func TestConnectDryRunNeedsNoSigner(t *testing.T) {
	c := NewHTTPClient(&config.Config{ClobURL: "https://example.com", DryRun: true})
	assert.NoError(t, c.Connect(context.Background()))
}

func TestRequireConnected(t *testing.T) {
	c := NewHTTPClient(&config.Config{ClobURL: "https://example.com", DryRun: true})

	_, err := c.GetActiveMarkets(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestGetActiveMarketsEnvelopes(t *testing.T) {
	payloads := map[string]string{
		"raw array": `[{"id":"m1","question":"q1","active":true}]`,
		"markets":   `{"markets":[{"id":"m1","question":"q1","active":true}]}`,
		"data":      `{"data":[{"id":"m1","question":"q1","active":true}]}`,
		"results":   `{"results":[{"id":"m1","question":"q1","active":true}]}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "true", r.URL.Query().Get("active"))
				assert.Equal(t, "false", r.URL.Query().Get("closed"))
				w.Write([]byte(payload))
			}))
			defer srv.Close()

			markets, err := newTestClient(t, srv).GetActiveMarkets(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, markets, 1)
			assert.Equal(t, "m1", markets[0].ID)
		})
	}
}

func TestGetActiveMarketsUnknownShapeDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer srv.Close()

	markets, err := newTestClient(t, srv).GetActiveMarkets(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestGetMarketPricesStringNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m1", r.URL.Query().Get("market"))
		w.Write([]byte(`{"yes":"0.62","no":0.4,"timestamp":1700000000000}`))
	}))
	defer srv.Close()

	prices, err := newTestClient(t, srv).GetMarketPrices(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0.62, prices.Yes)
	assert.Equal(t, 0.4, prices.No)
	assert.Equal(t, int64(1700000000000), prices.Timestamp)
}

func TestGetMarketPricesDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"yes":"0.55","no":"0.45"}}`))
	}))
	defer srv.Close()

	prices, err := newTestClient(t, srv).GetMarketPrices(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0.55, prices.Yes)
	assert.Equal(t, 0.45, prices.No)
	assert.NotZero(t, prices.Timestamp)
}

func TestGetOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m1", r.URL.Query().Get("token_id"))
		assert.Equal(t, "yes", r.URL.Query().Get("outcome"))
		w.Write([]byte(`{"bids":[{"price":"0.48","size":"120"}],"asks":[{"price":0.52,"size":90}]}`))
	}))
	defer srv.Close()

	book, err := newTestClient(t, srv).GetOrderBook(context.Background(), "m1", "yes")
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 0.48, book.Bids[0].Price)
	assert.Equal(t, 120.0, book.Bids[0].Size)
	assert.Equal(t, 0.52, book.Asks[0].Price)
}

func TestGetTradeHistoryEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"history":[{"id":"t1","price":"0.5"}]}`))
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).GetTradeHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0]["id"])
}

func TestGetTradesByAddressProbesParams(t *testing.T) {
	var tried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the third candidate parameter binding is accepted.
		if r.URL.Query().Get("maker") == "0xwhale" {
			w.Write([]byte(`[{"id":"t1"}]`))
			return
		}
		for _, p := range tradesByAddressParams {
			if r.URL.Query().Get(p) != "" {
				tried = append(tried, p)
			}
		}
		http.Error(w, "bad param", http.StatusBadRequest)
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).GetTradesByAddress(context.Background(), "0xwhale", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"address", "trader"}, tried)
}

func TestGetTradesByAddressAllParamsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).GetTradesByAddress(context.Background(), "0xwhale", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetTradesByAddressEmptyAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty address")
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).GetTradesByAddress(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetBalanceDefaultsCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available":"250.5","locked":10}`))
	}))
	defer srv.Close()

	balance, err := newTestClient(t, srv).GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250.5, balance.Available)
	assert.Equal(t, 10.0, balance.Locked)
	assert.Equal(t, "USDC", balance.Currency)
}

func TestExecuteTradeDryRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry-run must not hit the network")
	}))
	defer srv.Close()

	result := newTestClient(t, srv).ExecuteTrade(context.Background(), Order{
		MarketID:       "m1",
		Side:           "buy",
		Price:          0.5,
		Amount:         10,
		ExpectedProfit: 0.05,
	})

	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.OrderID, "dry-"))
	assert.Equal(t, 0.05, result.Profit)
}

func TestExecuteTradeLiveRejectionInResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		http.Error(w, "insufficient balance", http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := &config.Config{
		ClobURL:    srv.URL,
		PrivateKey: strings.Repeat("ab", 32),
		DryRun:     false,
	}
	c := NewHTTPClient(cfg)
	require.NoError(t, c.Connect(context.Background()))

	result := c.ExecuteTrade(context.Background(), Order{MarketID: "m1", Side: "buy", Price: 0.5, Amount: 10})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "order rejected")
}

func TestExecuteTradeLiveAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var order Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "m1", order.MarketID)
		w.Write([]byte(`{"success":true,"order_id":"ord-1"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		ClobURL:    srv.URL,
		PrivateKey: strings.Repeat("ab", 32),
		DryRun:     false,
	}
	c := NewHTTPClient(cfg)
	require.NoError(t, c.Connect(context.Background()))

	result := c.ExecuteTrade(context.Background(), Order{MarketID: "m1", Side: "buy", Price: 0.5, Amount: 10})
	assert.True(t, result.Success)
	assert.Equal(t, "ord-1", result.OrderID)
}

func TestFlexFloatShapes(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`0.5`, 0.5},
		{`"0.5"`, 0.5},
		{`" 12 "`, 12},
		{`null`, 0},
		{`""`, 0},
	}

	for _, tc := range cases {
		var f flexFloat
		require.NoError(t, json.Unmarshal([]byte(tc.in), &f), "input %s", tc.in)
		assert.Equal(t, tc.want, float64(f), "input %s", tc.in)
	}

	var f flexFloat
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
}
