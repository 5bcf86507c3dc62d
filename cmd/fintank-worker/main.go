package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fintank/internal/chain"
	"fintank/internal/config"
	"fintank/internal/db"
	"fintank/internal/ledger"
	"fintank/internal/notify"
	"fintank/internal/ocean"
	"fintank/internal/payout"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	chainClient := chain.NewClient(cfg.ChainIndexerURL, cfg.ChainIndexerKey)
	bankSvc := ledger.NewService(pool, logger, chainClient, cfg.DepositAddress, cfg.RequiredConfirmations)
	oceanSvc := ocean.NewService(pool, logger, cfg.Policy, cfg.AdminUserID)
	if err := oceanSvc.EnsurePool(ctx); err != nil {
		logger.Error("pool init failed", "err", err)
		os.Exit(1)
	}
	dispatcher := payout.New(bankSvc, chainClient, logger)

	var announcer *notify.Announcer
	if cfg.DiscordToken != "" && cfg.DiscordChannel != "" {
		announcer, err = notify.NewAnnouncer(pool, logger, cfg.DiscordToken, cfg.DiscordChannel)
		if err != nil {
			logger.Error("announcer init failed", "err", err)
			os.Exit(1)
		}
		defer announcer.Close()
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("FINTANK_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := bankSvc.SyncPending(ctx); err != nil {
			logger.Error("sync failed", "err", err)
			os.Exit(1)
		}
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("dispatch failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	syncTicker := time.NewTicker(cfg.SyncEvery)
	dispatchTicker := time.NewTicker(cfg.DispatchEvery)
	cycleTicker := time.NewTicker(cfg.CycleEvery)
	announceTicker := time.NewTicker(cfg.AnnounceEvery)
	defer syncTicker.Stop()
	defer dispatchTicker.Stop()
	defer cycleTicker.Stop()
	defer announceTicker.Stop()

	logger.Info("worker started",
		"sync_every", cfg.SyncEvery.String(),
		"dispatch_every", cfg.DispatchEvery.String(),
		"cycle_every", cfg.CycleEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-syncTicker.C:
			if err := bankSvc.SyncPending(ctx); err != nil {
				logger.Error("deposit sync failed", "err", err)
			}
		case <-dispatchTicker.C:
			if err := dispatcher.Run(ctx); err != nil {
				logger.Error("withdrawal dispatch failed", "err", err)
			}
		case <-cycleTicker.C:
			view, changed, err := oceanSvc.RolloverCycle(ctx, false)
			if err != nil {
				logger.Error("cycle rollover failed", "err", err)
				continue
			}
			if changed {
				logger.Info("ocean cycle rolled", "is_storm", view.IsStorm, "next_mode_change", view.NextModeChange)
			}
		case <-announceTicker.C:
			if announcer == nil {
				continue
			}
			if err := announcer.Flush(ctx); err != nil {
				logger.Error("announce failed", "err", err)
			}
		}
	}
}
