package order

import (
	"context"
	"errors"
)

var ErrOrderNotFound = errors.New("order not found")

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Item is an order line as stored by the shop.
type Item struct {
	ProductID  int64    `json:"product_id" db:"product_id"`
	Name       string   `json:"name" db:"name"`
	Quantity   int      `json:"quantity" db:"quantity"`
	Price      float64  `json:"price" db:"price"`
	Categories []string `json:"categories" db:"-"`
}

// Snapshot is an order as already loaded from the shop's database.
type Snapshot struct {
	ID         int64   `json:"id" db:"id"`
	Total      float64 `json:"total" db:"total"`
	Currency   string  `json:"currency" db:"currency"`
	CustomerID int64   `json:"customer_id" db:"customer_id"`
	Status     Status  `json:"status" db:"status"`
	Items      []Item  `json:"items" db:"-"`
}

// Lookup resolves an order id to a snapshot. Implementations return
// ErrOrderNotFound (possibly wrapped) when the order does not exist.
type Lookup interface {
	Get(ctx context.Context, orderID int64) (*Snapshot, error)
}
