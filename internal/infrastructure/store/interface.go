package store

import (
	"context"
	"encoding/json"
	"time"
)

// LogTable is the audit table name used by the SQL store.
const LogTable = "logs"

const (
	LogStatusSuccess = "success"
	LogStatusError   = "error"
)

// LogEntry is one delivery attempt. Entries are immutable once written.
type LogEntry struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	EventType    string          `json:"event_type"`
	EventData    json.RawMessage `json:"event_data"`
	Status       string          `json:"status"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LogStoreInterface is the append-only storage behind the audit logger.
// List and ListByOrder return newest entries first.
type LogStoreInterface interface {
	// Insert assigns entry.ID and returns it. A zero CreatedAt is set to now.
	Insert(ctx context.Context, entry *LogEntry) (int64, error)

	Count(ctx context.Context) (int, error)

	List(ctx context.Context, offset, limit int) ([]LogEntry, error)

	ListByOrder(ctx context.Context, orderID int64) ([]LogEntry, error)

	// ListBefore returns entries created before cutoff, oldest first.
	// A non-positive limit means no limit.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]LogEntry, error)

	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
