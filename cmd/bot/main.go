// Package main is the entry point for the Polymarket copy-trading bot.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polycopy/bot/internal/bot"
	"github.com/polycopy/bot/internal/config"
	"github.com/polycopy/bot/internal/exchange"
	"github.com/polycopy/bot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("polycopy starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"clob_url", cfg.ClobURL,
		"gamma_url", cfg.GammaURL,
		"data_url", cfg.DataURL,
		"ws_url", cfg.WSURL,
		"private_key", cfg.MaskedPrivateKey(),
		"api_key", cfg.MaskedAPIKey(),
		"dry_run", cfg.DryRun,
		"max_position_size", cfg.MaxPositionSize,
		"min_profit_margin", cfg.MinProfitMargin,
		"max_daily_loss", cfg.MaxDailyLoss,
		"max_positions", cfg.MaxPositions,
		"check_interval", cfg.CheckInterval,
		"copy_trading", cfg.EnableCopyTrading,
		"copy_execution", cfg.EnableCopyTradingExecution,
		"enhanced_smart_money", cfg.UseEnhancedSmartMoney,
		"smart_money_stream", cfg.EnableSmartMoneyStream,
		"smart_money_addresses", len(cfg.SmartMoneyAddresses),
		"server_port", cfg.ServerPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	client := exchange.NewHTTPClient(cfg)
	if err := client.Connect(ctx); err != nil {
		slog.Error("exchange_connect_failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	b, err := bot.New(cfg, client)
	if err != nil {
		slog.Error("bot_init_failed", "error", err)
		os.Exit(1)
	}

	if err := b.Start(ctx); err != nil {
		slog.Error("bot_start_failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, client, b)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("shutdown_signal_received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("server_failed", "error", err)
		}
	case <-ctx.Done():
	}

	cancel()

	slog.Info("shutting_down")
	b.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server_shutdown_error", "error", err)
	}

	slog.Info("shutdown_complete")
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
