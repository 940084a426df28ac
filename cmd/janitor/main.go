package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/example/wc-matomo-tracking/internal/app"
	"github.com/example/wc-matomo-tracking/internal/config"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/metrics"
	"github.com/example/wc-matomo-tracking/internal/retention"
	"github.com/example/wc-matomo-tracking/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single retention pass and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, envLoaded := config.LoadConfig()
	log := logger.MustNew(cfg.Mode)
	defer log.Sync()

	log = logger.Component(log, "janitor")
	log.Info("starting retention janitor",
		zap.Bool("env_file", envLoaded),
		zap.String("log_store", cfg.LogStore),
		zap.Duration("interval", cfg.PruneInterval),
		zap.String("archive_bucket", cfg.ArchiveBucket),
	)

	metrics.Register()

	logStore, closeLogs, err := app.OpenLogStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open audit log store", zap.Error(err))
	}
	defer closeLogs()

	provider, closeSettings, err := app.NewSettingsProvider(cfg)
	if err != nil {
		log.Fatal("failed to create settings provider", zap.Error(err))
	}
	defer closeSettings()

	// A nil *S3Archiver must not reach the interface.
	var archiver retention.Archiver
	s3Archiver, err := app.NewArchiver(ctx, cfg, logStore)
	if err != nil {
		log.Fatal("failed to create archiver", zap.Error(err))
	}
	if s3Archiver != nil {
		archiver = s3Archiver
	}

	auditLog := auditlog.NewService(logStore, auditlog.WithLogger(logger.Component(log, "auditlog")))
	janitor := retention.NewJanitor(provider, auditLog, archiver, log)

	if *once {
		if _, err := janitor.RunOnce(ctx); err != nil {
			log.Fatal("retention pass failed", zap.Error(err))
		}
		return
	}

	if err := janitor.Run(ctx, cfg.PruneInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("janitor stopped", zap.Error(err))
	}
	log.Info("shutting down")
}
