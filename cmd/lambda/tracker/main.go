package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/wc-matomo-tracking/internal/app"
	"github.com/example/wc-matomo-tracking/internal/config"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/kinesis"
	"github.com/example/wc-matomo-tracking/internal/matomo"
	"github.com/example/wc-matomo-tracking/internal/tracking"
	"github.com/example/wc-matomo-tracking/pkg/logger"
	"go.uber.org/zap"
)

var (
	trackingHandler *tracking.Handler
	log             *zap.Logger
)

func init() {
	ctx := context.Background()

	cfg, _ := config.LoadConfig()
	log = logger.Component(logger.MustNew(cfg.Mode), "lambda-tracker")

	logStore, _, err := app.OpenLogStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open audit log store", zap.Error(err))
	}
	orders, _, err := app.OpenOrderLookup(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open order read model", zap.Error(err))
	}
	provider, _, err := app.NewSettingsProvider(cfg)
	if err != nil {
		log.Fatal("failed to create settings provider", zap.Error(err))
	}

	// Deliveries stay synchronous: the runtime freezes after the handler returns.
	trackingHandler = tracking.NewHandler(provider, orders, matomo.NewClient(),
		auditlog.NewService(logStore, auditlog.WithLogger(logger.Component(log, "auditlog"))),
		tracking.WithHomeURL(cfg.StoreHomeURL),
		tracking.WithLogger(log),
	)

	log.Info("initialized", zap.String("log_store", cfg.LogStore), zap.String("settings_source", cfg.SettingsSource))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.HandleBatch(ctx, kinesisEvent, trackingHandler.HandleEvent, log), nil
}

func main() {
	lambda.Start(handler)
}
