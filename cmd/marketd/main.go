package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/immochain/immochain/internal/auth"
	"github.com/immochain/immochain/internal/config"
	"github.com/immochain/immochain/internal/database"
	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/feed"
	"github.com/immochain/immochain/internal/marketplace"
	"github.com/immochain/immochain/internal/model"
	"github.com/immochain/immochain/internal/poller"
	"github.com/immochain/immochain/internal/registry"
	"github.com/immochain/immochain/internal/server"
	"github.com/immochain/immochain/internal/version"
	"github.com/immochain/immochain/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/marketd.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting marketd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Account table; the admin key comes from config, every other account
	// registers its key over the API.
	verifier := auth.NewVerifier(cfg.Auth.MaxSkew)
	adminPEM, err := os.ReadFile(cfg.Auth.AdminPublicKeyPath)
	if err != nil {
		logger.Error("failed to read admin public key", "path", cfg.Auth.AdminPublicKeyPath, "error", err)
		os.Exit(1)
	}
	adminAddr, err := verifier.RegisterPEM(adminPEM)
	if err != nil {
		logger.Error("failed to parse admin public key", "error", err)
		os.Exit(1)
	}
	logger.Info("admin account registered", "address", adminAddr)

	// Core engine: notification log, share registry, marketplace.
	log := events.NewLog(logger)
	reg := registry.New(adminAddr, log, logger)

	mkt := marketplace.New(marketplace.Config{
		Address:              model.Address(cfg.Marketplace.Address),
		MinPricePercent:      cfg.Band.MinPercent,
		MaxPricePercent:      cfg.Band.MaxPercent,
		PriceStepPercent:     cfg.Band.StepPercent,
		SingleOrderPerSeller: cfg.Marketplace.SingleOrderPerSeller,
	}, reg, log, nil, logger)

	if err := reg.SetMarketplaceAddress(adminAddr, mkt.Address()); err != nil {
		logger.Error("failed to bind marketplace address", "error", err)
		os.Exit(1)
	}

	// Persistence writers, each on its own log subscription.
	wcfg := writer.Config{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	eventWriter := writer.NewEventWriter(wcfg, log.Subscribe("event-writer", cfg.Writers.BufferSize), pool, logger)
	tradeWriter := writer.NewTradeWriter(wcfg, log.Subscribe("trade-writer", cfg.Writers.BufferSize), pool, logger)

	snapBuf := events.NewBuffer[model.BookSnapshot](cfg.Writers.BufferSize)
	snapshotWriter := writer.NewSnapshotWriter(wcfg, snapBuf, pool, logger)

	if err := eventWriter.Start(ctx); err != nil {
		logger.Error("failed to start event writer", "error", err)
		os.Exit(1)
	}
	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	if err := snapshotWriter.Start(ctx); err != nil {
		logger.Error("failed to start snapshot writer", "error", err)
		os.Exit(1)
	}

	// Book snapshot poller feeds the snapshot writer.
	bookPoller := poller.New(poller.Config{Interval: cfg.Snapshots.Interval}, reg, mkt, snapBuf, logger)
	if err := bookPoller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// WebSocket feed and HTTP API.
	eventFeed := feed.New(feed.Config{
		PingInterval:  cfg.Feed.PingInterval,
		WriteTimeout:  cfg.Feed.WriteTimeout,
		SubscriberCap: cfg.Feed.BufferSize,
	}, log, logger)
	if err := eventFeed.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	httpServer := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, reg, mkt, verifier, eventFeed, logger)
	if err := httpServer.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	logger.Info("marketd running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Reverse startup order: stop taking requests, then drain background
	// components, writers last so every published event reaches the tables.
	httpServer.Stop(shutdownCtx)
	eventFeed.Stop(shutdownCtx)
	bookPoller.Stop(shutdownCtx)
	snapshotWriter.Stop(shutdownCtx)
	tradeWriter.Stop(shutdownCtx)
	eventWriter.Stop(shutdownCtx)

	logger.Info("marketd stopped")
}
