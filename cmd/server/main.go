package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/pharmaimport/internal/config"
	"github.com/JonMunkholm/pharmaimport/internal/core"
	_ "github.com/JonMunkholm/pharmaimport/internal/core/kinds" // Register import kinds
	"github.com/JonMunkholm/pharmaimport/internal/logging"
	"github.com/JonMunkholm/pharmaimport/internal/submit"
	"github.com/JonMunkholm/pharmaimport/internal/web"
)

// janitorInterval is how often idle sessions are evicted.
const janitorInterval = 5 * time.Minute

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"api_base_url", cfg.Submission.BaseURL,
		"batch_size", cfg.Import.BatchSize,
		"pacing_delay", cfg.Import.PacingDelay,
		"upload_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"history_db", cfg.Database.Enabled(),
	)

	core.MaxFileSize = cfg.Import.MaxFileSize
	core.UploadTimeout = cfg.Import.UploadTimeout

	ctx := context.Background()

	history, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer closeHistory()

	client, err := submit.New(submit.Config{
		BaseURL:         cfg.Submission.BaseURL,
		Token:           cfg.Submission.Token,
		Timeout:         cfg.Submission.Timeout,
		RequestIDHeader: cfg.Submission.RequestIDHeader,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create submission client", "error", err)
		os.Exit(1)
	}

	service := core.NewService(client, history, core.ServiceConfig{
		Scheduler: core.SchedulerConfig{
			BatchSize:   cfg.Import.BatchSize,
			PacingDelay: cfg.Import.PacingDelay,
		},
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		SessionTTL:    cfg.Import.SessionTTL,
		OnSuccess: func(kind string, report core.AggregateReport) {
			logger.Info("import created records",
				"kind", kind,
				"created", report.SuccessCount,
				"failed", report.FailedCount,
			)
		},
		Logger: logger,
	})

	logger.Info("import kinds registered", "count", core.KindCount())
	for _, def := range core.All() {
		logger.Debug("import kind", "key", def.Key, "path", def.Path, "required", def.RequiredParams)
	}

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go core.RunRetention(jobCtx, history, core.RetentionConfig{
		KeepFor:       time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
		CheckInterval: cfg.History.CheckInterval,
	}, logger)
	go service.RunJanitor(jobCtx, janitorInterval)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := service.UploadStatus(); st.Active > 0 {
			logger.Info("waiting for uploads to complete", "active", st.Active)
			if err := service.Shutdown(shutdownCtx); err != nil {
				logger.Warn("uploads did not complete in time", "error", err)
			} else {
				logger.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// openHistory connects to Postgres when DATABASE_URL is set and falls back
// to a bounded in-memory store otherwise.
func openHistory(ctx context.Context, cfg *config.Config) (core.HistoryStore, func(), error) {
	if !cfg.Database.Enabled() {
		slog.Info("no database configured, keeping import history in memory",
			"limit", cfg.History.MemoryLimit)
		return core.NewMemoryHistory(cfg.History.MemoryLimit), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	store := core.NewPostgresHistory(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
