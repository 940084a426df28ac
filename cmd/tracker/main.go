package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/wc-matomo-tracking/internal/app"
	"github.com/example/wc-matomo-tracking/internal/config"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/kafka"
	"github.com/example/wc-matomo-tracking/internal/matomo"
	"github.com/example/wc-matomo-tracking/internal/metrics"
	"github.com/example/wc-matomo-tracking/internal/tracking"
	"github.com/example/wc-matomo-tracking/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, envLoaded := config.LoadConfig()
	log := logger.MustNew(cfg.Mode)
	defer log.Sync()

	log = logger.Component(log, "tracker")
	log.Info("starting order tracker",
		zap.Bool("env_file", envLoaded),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroup),
		zap.String("log_store", cfg.LogStore),
		zap.String("settings_source", cfg.SettingsSource),
		zap.Bool("async_delivery", cfg.AsyncDelivery),
	)

	metrics.Register()

	logStore, closeLogs, err := app.OpenLogStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open audit log store", zap.Error(err))
	}
	defer closeLogs()

	orders, closeOrders, err := app.OpenOrderLookup(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open order read model", zap.Error(err))
	}
	defer closeOrders()

	provider, closeSettings, err := app.NewSettingsProvider(cfg)
	if err != nil {
		log.Fatal("failed to create settings provider", zap.Error(err))
	}
	defer closeSettings()

	auditLog := auditlog.NewService(logStore, auditlog.WithLogger(logger.Component(log, "auditlog")))
	handler := tracking.NewHandler(provider, orders, matomo.NewClient(), auditLog,
		tracking.WithAsync(cfg.AsyncDelivery),
		tracking.WithHomeURL(cfg.StoreHomeURL),
		tracking.WithLogger(log),
	)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger.Component(log, "kafka"))
	defer consumer.Close()

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("consuming order events")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			log.Error("consumer error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	log.Info("shutting down")
	cancel()
	<-done
	handler.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
