package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/settings"
	"go.uber.org/zap"
)

// Pruner deletes audit entries past a cutoff.
type Pruner interface {
	Cutoff(retentionDays int) time.Time
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver copies entries older than cutoff somewhere durable before they are pruned.
type Archiver interface {
	Archive(ctx context.Context, cutoff time.Time) (key string, archived int, err error)
}

// Result describes one retention pass.
type Result struct {
	RetentionDays int
	Cutoff        time.Time
	ArchiveKey    string
	Archived      int
	Deleted       int64
}

// Janitor applies the configured retention to the audit log.
type Janitor struct {
	settings settings.Provider
	pruner   Pruner
	archiver Archiver
	logger   *zap.Logger
}

// NewJanitor creates a janitor. archiver may be nil.
func NewJanitor(provider settings.Provider, pruner Pruner, archiver Archiver, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{settings: provider, pruner: pruner, archiver: archiver, logger: logger}
}

// RunOnce archives and prunes using the retention in effect right now.
// Nothing is pruned when archiving fails.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	current, err := j.settings.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load settings: %w", err)
	}

	if current.RetentionDays < settings.MinRetentionDays {
		return Result{}, auditlog.ErrInvalidRetention
	}

	res := Result{RetentionDays: current.RetentionDays}
	res.Cutoff = j.pruner.Cutoff(current.RetentionDays)

	if j.archiver != nil {
		res.ArchiveKey, res.Archived, err = j.archiver.Archive(ctx, res.Cutoff)
		if err != nil {
			return res, fmt.Errorf("archive: %w", err)
		}
	}

	res.Deleted, err = j.pruner.PruneBefore(ctx, res.Cutoff)
	if err != nil {
		return res, err
	}

	j.logger.Info("retention pass complete",
		zap.Int("retention_days", res.RetentionDays),
		zap.Time("cutoff", res.Cutoff),
		zap.String("archive_key", res.ArchiveKey),
		zap.Int("archived", res.Archived),
		zap.Int64("deleted", res.Deleted),
	)
	return res, nil
}

// Run calls RunOnce immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("retention pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
