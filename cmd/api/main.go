package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/wc-matomo-tracking/internal/api"
	"github.com/example/wc-matomo-tracking/internal/app"
	"github.com/example/wc-matomo-tracking/internal/auth"
	"github.com/example/wc-matomo-tracking/internal/config"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/kafka"
	"github.com/example/wc-matomo-tracking/internal/metrics"
	"github.com/example/wc-matomo-tracking/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminTokenExpiry = 15 * time.Minute

func main() {
	ctx := context.Background()

	cfg, envLoaded := config.LoadConfig()
	log := logger.MustNew(cfg.Mode)
	defer log.Sync()

	log = logger.Component(log, "api")

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters long")
	}
	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET is empty, webhook signatures are not checked")
	}

	if cfg.Mode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("starting admin API",
		zap.Bool("env_file", envLoaded),
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("log_store", cfg.LogStore),
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

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	auditLog := auditlog.NewService(logStore, auditlog.WithLogger(logger.Component(log, "auditlog")))
	router := api.NewRouter(api.RouterConfig{
		Handlers:      api.NewHandlers(auditLog, provider, producer, log),
		JWTService:    auth.NewJWTService(cfg.JWTSecret, adminTokenExpiry),
		WebhookSecret: cfg.WebhookSecret,
		Logger:        log,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
