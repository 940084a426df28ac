package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/wc-matomo-tracking/internal/infrastructure/store"
	"github.com/example/wc-matomo-tracking/internal/matomo"
	"github.com/example/wc-matomo-tracking/internal/metrics"
	"go.uber.org/zap"
)

const DefaultPageSize = 20

var (
	ErrStorage          = errors.New("audit log storage failure")
	ErrInvalidRetention = errors.New("retention days must be at least 1")
)

// Page is one page of audit entries, newest first.
type Page struct {
	Entries    []store.LogEntry `json:"entries"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
}

// Service is the audit trail of delivery attempts.
type Service struct {
	store  store.LogStoreInterface
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(st store.LogStoreInterface, opts ...Option) *Service {
	s := &Service{store: st, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry for an attempted delivery and returns its id.
func (s *Service) Record(ctx context.Context, orderID int64, eventType string, payload any, outcome matomo.Outcome) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: encode payload: %v", ErrStorage, err)
	}

	entry := &store.LogEntry{
		OrderID:   orderID,
		EventType: eventType,
		EventData: data,
		Status:    store.LogStatusSuccess,
		CreatedAt: s.now().UTC(),
	}
	if !outcome.Succeeded() {
		msg := outcome.ErrorMessage()
		entry.Status = store.LogStatusError
		entry.ErrorMessage = &msg
	}

	id, err := s.store.Insert(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return id, nil
}

// FetchPage returns page pageNumber (1-based). Out of range values fall back
// to page 1 and DefaultPageSize.
func (s *Service) FetchPage(ctx context.Context, pageNumber, pageSize int) (*Page, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	entries, err := s.store.List(ctx, (pageNumber-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &Page{
		Entries:    entries,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
		Page:       pageNumber,
		PerPage:    pageSize,
	}, nil
}

// OrderLogs returns every entry for one order, newest first.
func (s *Service) OrderLogs(ctx context.Context, orderID int64) ([]store.LogEntry, error) {
	entries, err := s.store.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return entries, nil
}

// Cutoff is the creation time before which entries fall outside retentionDays.
func (s *Service) Cutoff(retentionDays int) time.Time {
	return s.now().UTC().AddDate(0, 0, -retentionDays)
}

// Prune deletes entries created more than retentionDays ago.
func (s *Service) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, ErrInvalidRetention
	}
	return s.PruneBefore(ctx, s.Cutoff(retentionDays))
}

// PruneBefore deletes entries created before cutoff.
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	metrics.AuditPrunedEntriesTotal.Add(float64(deleted))
	s.logger.Info("pruned audit log",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// DecodePayload unmarshals the stored event snapshot into v.
func DecodePayload(entry store.LogEntry, v any) error {
	return json.Unmarshal(entry.EventData, v)
}
