package core

// retention.go runs the periodic history retention job. It runs once at
// start and then every CheckInterval until ctx is cancelled. A failing purge
// is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the history retention job.
type RetentionConfig struct {
	KeepFor       time.Duration // default: 90 days
	CheckInterval time.Duration // default: 24h
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.KeepFor <= 0 {
		c.KeepFor = 90 * 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// RunRetention purges history entries older than cfg.KeepFor. It blocks
// until ctx is done.
func RunRetention(ctx context.Context, store HistoryStore, cfg RetentionConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("history retention started",
		"keep_for", cfg.KeepFor.String(),
		"interval", cfg.CheckInterval.String(),
	)

	purgeHistory(ctx, store, cfg.KeepFor, logger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history retention stopped")
			return
		case <-ticker.C:
			purgeHistory(ctx, store, cfg.KeepFor, logger)
		}
	}
}

func purgeHistory(ctx context.Context, store HistoryStore, keepFor time.Duration, logger *slog.Logger) {
	start := time.Now()
	purged, err := store.Purge(ctx, start.Add(-keepFor))
	if err != nil {
		logger.Error("history purge failed", "error", err)
		return
	}
	logger.Info("history purged",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
