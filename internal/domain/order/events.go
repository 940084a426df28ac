package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventNewOrder      = "new_order"
	EventStatusChanged = "status_change"
)

// Visit is the request context the store captured when the event fired.
type Visit struct {
	PageURL  string `json:"page_url,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
}

// NewOrder is emitted once per newly created order.
type NewOrder struct {
	OrderID int64 `json:"order_id"`
	Visit   Visit `json:"visit"`
}

// StatusChanged is emitted once per status transition.
type StatusChanged struct {
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Visit     Visit  `json:"visit"`
}

// Event is the envelope the store publishes on the order event stream.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	OrderID   int64           `json:"order_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(eventType string, orderID int64, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		OrderID:   orderID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}
