package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/wc-matomo-tracking/internal/domain/order"
	"github.com/jmoiron/sqlx"
)

const (
	OrdersTable     = "wc_orders"
	OrderItemsTable = "wc_order_items"
)

// SQLOrderLookup reads order snapshots from the shop's order read model.
type SQLOrderLookup struct {
	db *sqlx.DB
}

func NewSQLOrderLookup(db *sqlx.DB) *SQLOrderLookup {
	return &SQLOrderLookup{db: db}
}

type orderItemRow struct {
	ProductID  int64          `db:"product_id"`
	Name       string         `db:"name"`
	Quantity   int            `db:"quantity"`
	Price      float64        `db:"price"`
	Categories sql.NullString `db:"categories"`
}

// Get implements order.Lookup.
func (l *SQLOrderLookup) Get(ctx context.Context, orderID int64) (*order.Snapshot, error) {
	var snap order.Snapshot
	err := l.db.GetContext(ctx, &snap, l.db.Rebind(
		`SELECT id, total, currency, customer_id, status FROM `+OrdersTable+` WHERE id = ?`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, order.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}

	var rows []orderItemRow
	err = l.db.SelectContext(ctx, &rows, l.db.Rebind(
		`SELECT product_id, name, quantity, price, categories FROM `+OrderItemsTable+`
		 WHERE order_id = ? ORDER BY id ASC`), orderID)
	if err != nil {
		return nil, fmt.Errorf("get items for order %d: %w", orderID, err)
	}

	snap.Items = make([]order.Item, 0, len(rows))
	for _, r := range rows {
		snap.Items = append(snap.Items, order.Item{
			ProductID:  r.ProductID,
			Name:       r.Name,
			Quantity:   r.Quantity,
			Price:      r.Price,
			Categories: splitCategories(r.Categories.String),
		})
	}
	return &snap, nil
}

// Migrate creates the order read model tables. The shop owns them in
// production; this exists for local SQLite runs and tests.
func (l *SQLOrderLookup) Migrate(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if l.db.DriverName() == DriverPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + OrdersTable + ` (
			id BIGINT PRIMARY KEY,
			total NUMERIC(12, 2) NOT NULL DEFAULT 0,
			currency VARCHAR(3) NOT NULL DEFAULT '',
			customer_id BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL DEFAULT 'pending'
		)`,
		`CREATE TABLE IF NOT EXISTS ` + OrderItemsTable + ` (
			` + idColumn + `,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price NUMERIC(12, 2) NOT NULL,
			categories TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + OrderItemsTable + `_order_id ON ` + OrderItemsTable + ` (order_id)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate order read model: %w", err)
		}
	}
	return nil
}

// categories are stored joined with "|", the way the shop exports them.
func splitCategories(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
