package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/parcel-search/internal/config"
	"github.com/DeafMist/parcel-search/internal/elasticsearch"
	"github.com/DeafMist/parcel-search/internal/logger"
)

type pruner interface {
	Ping(ctx context.Context) error
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

const maxConnectAttempts = 10

var errGaveUp = errors.New("elasticsearch unreachable after retries")

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := connect(ctx, log, func() (pruner, error) {
		return elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	}, 2*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("connect elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// A failed run is retried on the next tick.
	runOnce(ctx, log, store, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, store, cfg)
		}
	}
}

// connect creates a client and pings it, backing off exponentially up to 30s
// between attempts.
func connect(ctx context.Context, log *slog.Logger, newClient func() (pruner, error), retryDelay time.Duration) (pruner, error) {
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		client, err := newClient()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx)
			cancel()
			if err == nil {
				return client, nil
			}
		}
		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxConnectAttempts),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, errGaveUp
}

func runOnce(ctx context.Context, log *slog.Logger, store pruner, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := store.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no expired activity found")
	}
	return deleted
}
