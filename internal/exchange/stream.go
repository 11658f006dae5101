package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polycopy/bot/internal/trade"
)

// Reconnection and heartbeat tuning for the market stream.
const (
	initialBackoff   = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterPercent    = 0.2
	heartbeatTimeout = 60 * time.Second
	pongTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second

	streamBuffer = 500
)

// StreamTrades opens a live websocket feed of raw trade records for the
// given outcome tokens. The channel closes when ctx is cancelled.
func (c *HTTPClient) StreamTrades(ctx context.Context, tokenIDs []string) (<-chan trade.RawRecord, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if c.cfg.WSURL == "" {
		return nil, fmt.Errorf("websocket url not configured")
	}

	l := newStreamListener(c.cfg.WSURL, tokenIDs)
	l.start(ctx)
	return l.records, nil
}

// streamListener manages the websocket connection to the market channel
// with automatic reconnection.
type streamListener struct {
	url      string
	tokenIDs []string
	records  chan trade.RawRecord

	conn    *websocket.Conn
	connMu  sync.Mutex
	backoff time.Duration

	lastMsg   time.Time
	lastMsgMu sync.RWMutex
}

func newStreamListener(url string, tokenIDs []string) *streamListener {
	return &streamListener{
		url:      url,
		tokenIDs: tokenIDs,
		records:  make(chan trade.RawRecord, streamBuffer),
		backoff:  initialBackoff,
	}
}

func (l *streamListener) start(ctx context.Context) {
	go l.runLoop(ctx)
	go l.heartbeatMonitor(ctx)
}

// runLoop handles connection, reading, and reconnection.
func (l *streamListener) runLoop(ctx context.Context) {
	defer close(l.records)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stream_stopping", "reason", "context cancelled")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("stream_connect_failed", "error", err, "backoff", l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			slog.Warn("stream_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

// connect establishes the websocket connection and subscribes to the
// market channel for the tracked tokens.
func (l *streamListener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	url := l.url
	if !strings.HasSuffix(url, "/market") && !strings.HasSuffix(url, "/user") {
		url = strings.TrimSuffix(url, "/") + "/market"
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	l.backoff = initialBackoff

	msg := map[string]any{
		"type":       "market",
		"assets_ids": l.tokenIDs,
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("stream_connected", "endpoint", url, "token_count", len(l.tokenIDs))
	l.updateLastMsg()
	return nil
}

// readLoop reads messages until an error or cancellation.
func (l *streamListener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout + pongTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

// handleMessage extracts raw trade records from a websocket payload and
// pushes them downstream. The stream shares the normalization pipeline
// with the polled sources, so this only has to get records out of the
// known event shapes, not validate them.
func (l *streamListener) handleMessage(data []byte) {
	for _, record := range parseStreamMessage(data) {
		select {
		case l.records <- record:
		default:
			slog.Warn("stream_channel_full", "dropped", 1)
		}
	}
}

// lastTradePriceEvent is the trade-execution event on the market channel.
type lastTradePriceEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
	Timestamp string `json:"timestamp"`
}

// parseStreamMessage converts market-channel events into raw records.
// Events arrive both as single objects and as arrays.
func parseStreamMessage(data []byte) []trade.RawRecord {
	var events []lastTradePriceEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single lastTradePriceEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return nil
		}
		events = []lastTradePriceEvent{single}
	}

	var records []trade.RawRecord
	for _, ev := range events {
		kind := ev.EventType
		if kind == "" {
			kind = ev.Type
		}
		if kind != "last_trade_price" || ev.AssetID == "" {
			continue
		}

		record := trade.RawRecord{
			"assetId": ev.AssetID,
			"price":   ev.Price,
			"size":    ev.Size,
			"side":    ev.Side,
		}
		if ev.Timestamp != "" {
			record["timestamp"] = ev.Timestamp
		}
		if ev.Maker != "" {
			record["maker"] = ev.Maker
		}
		if ev.Taker != "" {
			record["taker"] = ev.Taker
		}
		records = append(records, record)
	}
	return records
}

// heartbeatMonitor pings the connection when no message has arrived
// within the heartbeat window.
func (l *streamListener) heartbeatMonitor(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

func (l *streamListener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() || time.Since(lastMsg) <= heartbeatTimeout {
		return
	}

	slog.Warn("stream_heartbeat_timeout", "elapsed", time.Since(lastMsg))

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			slog.Warn("stream_ping_failed", "error", err)
			l.closeConnection()
		}
	}
}

func (l *streamListener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

func (l *streamListener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("stream_disconnected")
	}
}

// waitBackoff sleeps for the current backoff with jitter, then grows it.
func (l *streamListener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * backoffFactor)
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}
