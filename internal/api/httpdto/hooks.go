package httpdto

import "github.com/example/wc-matomo-tracking/internal/domain/order"

// NewOrderRequest is the body of the new order webhook.
type NewOrderRequest struct {
	OrderID int64       `json:"order_id" binding:"required,gt=0"`
	Visit   order.Visit `json:"visit"`
}

// StatusChangeRequest is the body of the status change webhook.
type StatusChangeRequest struct {
	OrderID   int64       `json:"order_id" binding:"required,gt=0"`
	OldStatus string      `json:"old_status"`
	NewStatus string      `json:"new_status" binding:"required"`
	Visit     order.Visit `json:"visit"`
}

// AcceptedResponse reports the id of a published event.
type AcceptedResponse struct {
	EventID string `json:"event_id"`
}

// PruneResponse reports the result of a manual prune.
type PruneResponse struct {
	RetentionDays int   `json:"retention_days"`
	Deleted       int64 `json:"deleted"`
}
