package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/computechain/explorer/internal/api"
	"github.com/computechain/explorer/internal/config"
	"github.com/computechain/explorer/internal/indexer"
	"github.com/computechain/explorer/internal/listener"
	"github.com/computechain/explorer/internal/publisher"
	"github.com/computechain/explorer/pkg/db/postgres"
	"github.com/computechain/explorer/pkg/rpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	slog.Info("starting explorer indexer",
		"node", cfg.NodeURL,
		"poll_interval", cfg.PollInterval,
		"resync_depth", cfg.ResyncDepth,
		"ws_enabled", cfg.NodeWSURL != "",
		"events_enabled", cfg.RedisURL != "",
	)

	// Connect to PostgreSQL
	store, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Node RPC client
	node := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: []string{cfg.NodeURL},
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})

	// Optional Redis event publisher
	var pub indexer.Publisher
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to parse redis url", "err", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		p, err := publisher.New(redisClient, cfg.BlocksTopic)
		if err != nil {
			slog.Error("failed to create publisher", "err", err)
			os.Exit(1)
		}
		defer p.Close()
		pub = p
	}

	// Create indexer
	idx := indexer.New(indexer.NewRPCNode(node), store, indexer.Config{
		PollInterval:   cfg.PollInterval,
		ResyncInterval: cfg.ResyncInterval,
		ResyncDepth:    cfg.ResyncDepth,
		Publisher:      pub,
	})

	// API logger
	apiLogger, err := zap.NewProduction()
	if err != nil {
		slog.Error("failed to create api logger", "err", err)
		os.Exit(1)
	}
	defer apiLogger.Sync()

	srv := api.NewServer(store, idx, apiLogger, cfg.HTTPAddr, cfg.AdminToken, cfg.PageSize, cfg.MaxPageSize)

	// Run all components
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting indexer loop")
		return idx.Run(ctx)
	})

	g.Go(func() error {
		return srv.Run(ctx)
	})

	// Optional head listener; a dead feed never stops the indexer.
	if cfg.NodeWSURL != "" {
		lst := listener.New(listener.Config{URL: cfg.NodeWSURL}, func(height uint64) {
			idx.Nudge()
		})
		defer lst.Close()
		g.Go(func() error {
			if err := lst.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("head listener stopped", "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("indexer error", "err", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
