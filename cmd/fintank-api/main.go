package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintank/internal/api"
	"fintank/internal/auth"
	"fintank/internal/config"
	"fintank/internal/db"
	"fintank/internal/ledger"
	"fintank/internal/ocean"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	walletClient := auth.NewWalletClient(cfg.WalletAuthURL, cfg.WalletAuthKey)
	oceanSvc := ocean.NewService(pool, logger, cfg.Policy, cfg.AdminUserID)
	if err := oceanSvc.EnsurePool(ctx); err != nil {
		logger.Error("pool init failed", "err", err)
		os.Exit(1)
	}
	// The API never syncs the chain itself; the ledger here only needs the
	// database side plus the deposit address for intents.
	bankSvc := ledger.NewService(pool, logger, nil, cfg.DepositAddress, cfg.RequiredConfirmations)

	server := api.New(cfg, logger, walletClient, oceanSvc, bankSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("fintank api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
