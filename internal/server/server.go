// Package server exposes the bot over a small JSON HTTP facade. Every
// endpoint is a thin adapter over an existing client, strategy, or bot
// method; no trading logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/polycopy/bot/internal/bot"
	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/trade"
)

const defaultHistoryLimit = 50

// Server is the HTTP facade.
type Server struct {
	cfg    *config.Config
	client exchange.Client
	bot    *bot.Bot
	http   *http.Server
}

// New builds the facade with its routes registered.
func New(cfg *config.Config, client exchange.Client, b *bot.Bot) *Server {
	s := &Server{cfg: cfg, client: client, bot: b}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /markets", s.handleMarkets)
	mux.HandleFunc("GET /markets/prices", s.handlePrices)
	mux.HandleFunc("GET /orderbook", s.handleOrderBook)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /arbitrage", s.handleArbitrage)
	mux.HandleFunc("GET /signals/copy", s.handleCopySignals)
	mux.HandleFunc("GET /signals/smartmoney", s.handleSmartMoneySignals)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /risk", s.handleRisk)
	mux.HandleFunc("GET /bot/status", s.handleBotStatus)
	mux.HandleFunc("POST /trade", s.handleTrade)
	mux.HandleFunc("POST /bot/start", s.handleBotStart)
	mux.HandleFunc("POST /bot/stop", s.handleBotStop)
	mux.HandleFunc("POST /smartmoney/addresses", s.handleAddAddress)
	mux.HandleFunc("DELETE /smartmoney/addresses", s.handleRemoveAddress)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table, used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("server_listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.cfg.MarketFetchLimit)
	markets, err := s.client.GetActiveMarkets(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, errors.New("market parameter is required"))
		return
	}
	prices, err := s.client.GetMarketPrices(r.Context(), marketID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, errors.New("market parameter is required"))
		return
	}
	book, err := s.client.GetOrderBook(r.Context(), marketID, r.URL.Query().Get("outcome"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.client.GetBalance(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultHistoryLimit)
	records, err := s.client.GetTradeHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	trades := make([]trade.NormalizedTrade, 0, len(records))
	for _, record := range records {
		if t := trade.Normalize(record); t != nil {
			trades = append(trades, *t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "count": len(trades)})
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	markets, err := s.client.GetActiveMarkets(r.Context(), s.cfg.MarketFetchLimit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	opportunities := s.bot.Arbitrage().FindOpportunities(r.Context(), markets)
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opportunities, "count": len(opportunities)})
}

func (s *Server) handleCopySignals(w http.ResponseWriter, r *http.Request) {
	markets, err := s.client.GetActiveMarkets(r.Context(), s.cfg.MarketFetchLimit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	signals := s.bot.CopyTrading().GetSignals(r.Context(), markets)
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

func (s *Server) handleSmartMoneySignals(w http.ResponseWriter, r *http.Request) {
	signals := s.bot.SmartMoney().GetSignals(r.Context(), nil)
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"smart_money": s.bot.SmartMoney().Stats(),
		"bot":         s.bot.Status(),
	}
	if enhanced := s.bot.Enhanced(); enhanced != nil {
		response["traders"] = enhanced.TraderStats()
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Risk().Status())
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Status())
}

// handleTrade places a manual order through the same execution boundary
// the bot uses. Dry-run still applies.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var order exchange.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order: %w", err))
		return
	}
	if order.MarketID == "" {
		writeError(w, http.StatusBadRequest, errors.New("market_id is required"))
		return
	}
	if order.Side != trade.SideBuy && order.Side != trade.SideSell {
		writeError(w, http.StatusBadRequest, errors.New("side must be buy or sell"))
		return
	}

	result := s.client.ExecuteTrade(r.Context(), order)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Start(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	s.bot.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

type addressRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}

	added := s.bot.SmartMoney().AddAddress(req.Address)
	if enhanced := s.bot.Enhanced(); enhanced != nil {
		enhanced.AddAddress(req.Address)
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "address": req.Address})
}

func (s *Server) handleRemoveAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}

	removed := s.bot.SmartMoney().RemoveAddress(req.Address)
	if enhanced := s.bot.Enhanced(); enhanced != nil {
		enhanced.RemoveAddress(req.Address)
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "address": req.Address})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
