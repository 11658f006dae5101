package exchange

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/trade"
)

// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
const DefaultUserAgent = "Mozilla/5.0"

const requestTimeout = 12 * time.Second

// tradesByAddressParams are the parameter names probed against the
// trades endpoint; the provider's exact binding is not guaranteed.
var tradesByAddressParams = []string{"address", "trader", "maker", "taker", "user", "account"}

// HTTPClient talks to the Polymarket CLOB, Gamma, and data APIs.
type HTTPClient struct {
	cfg        *config.Config
	httpClient *http.Client
	userAgent  string

	mu        sync.Mutex
	connected bool
}

var _ Client = (*HTTPClient)(nil)
var _ Streamer = (*HTTPClient)(nil)

// NewHTTPClient creates a client from the given configuration.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		userAgent:  DefaultUserAgent,
	}
}

// Connect establishes the signer identity. A missing or malformed
// signing credential is fatal when live execution is enabled; dry-run
// operation needs no signer.
func (c *HTTPClient) Connect(ctx context.Context) error {
	if !c.cfg.DryRun {
		if err := validatePrivateKey(c.cfg.PrivateKey); err != nil {
			return fmt.Errorf("signer identity: %w", err)
		}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	slog.Info("exchange_connected", "clob_url", c.cfg.ClobURL, "dry_run", c.cfg.DryRun)
	return nil
}

// Disconnect tears down the connection state.
func (c *HTTPClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	slog.Info("exchange_disconnected")
	return nil
}

// GetActiveMarkets fetches open markets from the Gamma API. Unknown
// response envelopes degrade to an empty slice with a warning.
func (c *HTTPClient) GetActiveMarkets(ctx context.Context, limit int) ([]Market, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	endpoint := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d",
		strings.TrimRight(c.cfg.GammaURL, "/"), limit)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	markets, ok := decodeMarkets(body)
	if !ok {
		slog.Warn("markets_response_shape_unknown", "bytes", len(body))
		return []Market{}, nil
	}
	return markets, nil
}

// GetMarketPrices fetches the yes/no prices for one market.
func (c *HTTPClient) GetMarketPrices(ctx context.Context, marketID string) (Prices, error) {
	if err := c.requireConnected(); err != nil {
		return Prices{}, err
	}

	endpoint := fmt.Sprintf("%s/prices?market=%s",
		strings.TrimRight(c.cfg.ClobURL, "/"), url.QueryEscape(marketID))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return Prices{}, fmt.Errorf("fetch prices for %s: %w", marketID, err)
	}

	var raw struct {
		Yes       flexFloat `json:"yes"`
		No        flexFloat `json:"no"`
		Timestamp int64     `json:"timestamp"`
		Data      *struct {
			Yes       flexFloat `json:"yes"`
			No        flexFloat `json:"no"`
			Timestamp int64     `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Prices{}, fmt.Errorf("decode prices for %s: %w", marketID, err)
	}
	if raw.Data != nil {
		raw.Yes, raw.No, raw.Timestamp = raw.Data.Yes, raw.Data.No, raw.Data.Timestamp
	}

	p := Prices{Yes: float64(raw.Yes), No: float64(raw.No), Timestamp: raw.Timestamp}
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	return p, nil
}

// GetOrderBook fetches the book snapshot for one market outcome.
func (c *HTTPClient) GetOrderBook(ctx context.Context, marketID, outcome string) (OrderBook, error) {
	if err := c.requireConnected(); err != nil {
		return OrderBook{}, err
	}

	q := url.Values{}
	q.Set("token_id", marketID)
	if outcome != "" {
		q.Set("outcome", outcome)
	}
	endpoint := strings.TrimRight(c.cfg.ClobURL, "/") + "/book?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return OrderBook{}, fmt.Errorf("fetch order book for %s: %w", marketID, err)
	}

	var raw struct {
		Bids []struct {
			Price flexFloat `json:"price"`
			Size  flexFloat `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price flexFloat `json:"price"`
			Size  flexFloat `json:"size"`
		} `json:"asks"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderBook{}, fmt.Errorf("decode order book for %s: %w", marketID, err)
	}

	book := OrderBook{Timestamp: raw.Timestamp}
	if book.Timestamp == 0 {
		book.Timestamp = time.Now().UnixMilli()
	}
	for _, lvl := range raw.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: float64(lvl.Price), Size: float64(lvl.Size)})
	}
	for _, lvl := range raw.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: float64(lvl.Price), Size: float64(lvl.Size)})
	}
	return book, nil
}

// GetTradeHistory fetches recent executions as raw records.
func (c *HTTPClient) GetTradeHistory(ctx context.Context, limit int) ([]trade.RawRecord, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	endpoint := fmt.Sprintf("%s/trades?limit=%d", strings.TrimRight(c.cfg.DataURL, "/"), limit)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch trade history: %w", err)
	}

	records, ok := decodeRecords(body)
	if !ok {
		slog.Warn("trade_history_shape_unknown", "bytes", len(body))
		return []trade.RawRecord{}, nil
	}
	return records, nil
}

// GetTradesByAddress fetches trades attributed to an account, probing
// candidate parameter names until one succeeds. It returns an empty
// slice, never an error, when every binding fails.
func (c *HTTPClient) GetTradesByAddress(ctx context.Context, address string, limit int) ([]trade.RawRecord, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if address == "" {
		return []trade.RawRecord{}, nil
	}
	if limit <= 0 {
		limit = c.cfg.CopyTradeFetchLimit
	}

	base := strings.TrimRight(c.cfg.DataURL, "/")
	for _, param := range tradesByAddressParams {
		q := url.Values{}
		q.Set(param, address)
		q.Set("limit", strconv.Itoa(limit))

		body, err := c.get(ctx, base+"/trades?"+q.Encode())
		if err != nil {
			slog.Debug("trades_by_address_param_failed", "param", param, "error", err)
			continue
		}

		records, ok := decodeRecords(body)
		if !ok {
			slog.Debug("trades_by_address_shape_unknown", "param", param)
			continue
		}
		return records, nil
	}

	slog.Warn("trades_by_address_all_params_failed", "address", truncate(address, 10))
	return []trade.RawRecord{}, nil
}

// GetBalance fetches the account balance.
func (c *HTTPClient) GetBalance(ctx context.Context) (Balance, error) {
	if err := c.requireConnected(); err != nil {
		return Balance{}, err
	}

	body, err := c.get(ctx, strings.TrimRight(c.cfg.ClobURL, "/")+"/balance")
	if err != nil {
		return Balance{}, fmt.Errorf("fetch balance: %w", err)
	}

	var raw struct {
		Available flexFloat `json:"available"`
		Locked    flexFloat `json:"locked"`
		Currency  string    `json:"currency"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Balance{}, fmt.Errorf("decode balance: %w", err)
	}

	b := Balance{Available: float64(raw.Available), Locked: float64(raw.Locked), Currency: raw.Currency}
	if b.Currency == "" {
		b.Currency = "USDC"
	}
	return b, nil
}

// ExecuteTrade places an order. In dry-run mode the order is only
// logged and a simulated result is returned. Failures of any kind are
// reported in the result, never as an error.
func (c *HTTPClient) ExecuteTrade(ctx context.Context, order Order) ExecutionResult {
	if err := c.requireConnected(); err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}

	if c.cfg.DryRun {
		slog.Info("dry_run_trade",
			"market", order.MarketID,
			"side", order.Side,
			"amount", order.Amount,
			"price", order.Price,
		)
		return ExecutionResult{
			Success: true,
			OrderID: "dry-" + uuid.NewString(),
			Profit:  order.ExpectedProfit,
		}
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}

	endpoint := strings.TrimRight(c.cfg.ClobURL, "/") + "/order"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	body := readBodyLimit(resp.Body, 8<<10)
	if resp.StatusCode != http.StatusOK {
		return ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("order rejected: status=%d body=%q", resp.StatusCode, body),
		}
	}

	var result ExecutionResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return ExecutionResult{Success: false, Error: fmt.Sprintf("decode order response: %v", err)}
	}
	if result.OrderID == "" && result.Error == "" {
		result.Success = true
		result.OrderID = uuid.NewString()
	}
	return result
}

// get performs a GET request and returns the response body.
func (c *HTTPClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("%s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func (c *HTTPClient) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("exchange client not connected")
	}
	return nil
}

// validatePrivateKey checks that the signing credential looks like a
// 32-byte hex key.
func validatePrivateKey(key string) error {
	if key == "" {
		return fmt.Errorf("PRIVATE_KEY is required for live execution")
	}
	key = strings.TrimPrefix(key, "0x")
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be a 32-byte hex string")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("PRIVATE_KEY is not valid hex: %w", err)
	}
	return nil
}

// decodeMarkets handles the known market-list envelopes: a raw array or
// an object wrapping it under markets/data/results.
func decodeMarkets(body []byte) ([]Market, bool) {
	var markets []Market
	if err := json.Unmarshal(body, &markets); err == nil {
		return markets, true
	}

	var envelope struct {
		Markets []Market `json:"markets"`
		Data    []Market `json:"data"`
		Results []Market `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Markets != nil:
			return envelope.Markets, true
		case envelope.Data != nil:
			return envelope.Data, true
		case envelope.Results != nil:
			return envelope.Results, true
		}
	}
	return nil, false
}

// decodeRecords handles the known trade-list envelopes.
func decodeRecords(body []byte) ([]trade.RawRecord, bool) {
	var records []trade.RawRecord
	if err := json.Unmarshal(body, &records); err == nil {
		if records == nil {
			records = []trade.RawRecord{}
		}
		return records, true
	}

	var envelope struct {
		Trades  []trade.RawRecord `json:"trades"`
		Data    []trade.RawRecord `json:"data"`
		Results []trade.RawRecord `json:"results"`
		History []trade.RawRecord `json:"history"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Trades != nil:
			return envelope.Trades, true
		case envelope.Data != nil:
			return envelope.Data, true
		case envelope.Results != nil:
			return envelope.Results, true
		case envelope.History != nil:
			return envelope.History, true
		}
	}
	return nil, false
}

// flexFloat accepts both quoted and bare JSON numbers; the CLOB returns
// prices and sizes as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// readBodyLimit reads at most max bytes from r for error reporting.
func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, max))
	return strings.TrimSpace(string(b))
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
