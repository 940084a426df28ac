package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteTimeLayout is fixed width so lexical comparison in SQLite matches time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLLogStore stores audit entries in PostgreSQL or SQLite.
type SQLLogStore struct {
	db *sqlx.DB
}

func NewSQLLogStore(db *sqlx.DB) *SQLLogStore {
	return &SQLLogStore{db: db}
}

type logRow struct {
	ID           int64          `db:"id"`
	OrderID      int64          `db:"order_id"`
	EventType    string         `db:"event_type"`
	EventData    string         `db:"event_data"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    sqlTime        `db:"created_at"`
}

func (r logRow) entry() LogEntry {
	e := LogEntry{
		ID:        r.ID,
		OrderID:   r.OrderID,
		EventType: r.EventType,
		EventData: json.RawMessage(r.EventData),
		Status:    r.Status,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		e.ErrorMessage = &msg
	}
	return e
}

const logColumns = "id, order_id, event_type, event_data, status, error_message, created_at"

// Migrate creates the audit table and its indexes if they do not exist.
func (s *SQLLogStore) Migrate(ctx context.Context) error {
	var ddl string
	switch s.db.DriverName() {
	case DriverPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS ` + LogTable + ` (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			event_data TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	case DriverSQLite:
		ddl = `CREATE TABLE IF NOT EXISTS ` + LogTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TEXT NOT NULL
		)`
	default:
		return fmt.Errorf("unsupported log store driver %q", s.db.DriverName())
	}

	statements := []string{
		ddl,
		`CREATE INDEX IF NOT EXISTS idx_` + LogTable + `_order_id ON ` + LogTable + ` (order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + LogTable + `_event_type ON ` + LogTable + ` (event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_` + LogTable + `_status ON ` + LogTable + ` (status)`,
		`CREATE INDEX IF NOT EXISTS idx_` + LogTable + `_created_at ON ` + LogTable + ` (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", LogTable, err)
		}
	}
	return nil
}

func (s *SQLLogStore) Insert(ctx context.Context, entry *LogEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var errMsg sql.NullString
	if entry.ErrorMessage != nil {
		errMsg = sql.NullString{String: *entry.ErrorMessage, Valid: true}
	}

	query := s.db.Rebind(`INSERT INTO ` + LogTable + ` (order_id, event_type, event_data, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		entry.OrderID,
		entry.EventType,
		string(entry.EventData),
		entry.Status,
		errMsg,
		s.timeArg(entry.CreatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert log entry: %w", err)
	}

	entry.ID = id
	return id, nil
}

func (s *SQLLogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+LogTable); err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return n, nil
}

func (s *SQLLogStore) List(ctx context.Context, offset, limit int) ([]LogEntry, error) {
	query := s.db.Rebind(`SELECT ` + logColumns + ` FROM ` + LogTable + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	return s.selectEntries(ctx, query, limit, offset)
}

func (s *SQLLogStore) ListByOrder(ctx context.Context, orderID int64) ([]LogEntry, error) {
	query := s.db.Rebind(`SELECT ` + logColumns + ` FROM ` + LogTable + `
		WHERE order_id = ?
		ORDER BY created_at DESC, id DESC`)
	return s.selectEntries(ctx, query, orderID)
}

func (s *SQLLogStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		query := s.db.Rebind(`SELECT ` + logColumns + ` FROM ` + LogTable + `
			WHERE created_at < ?
			ORDER BY created_at ASC, id ASC`)
		return s.selectEntries(ctx, query, s.timeArg(cutoff))
	}
	query := s.db.Rebind(`SELECT ` + logColumns + ` FROM ` + LogTable + `
		WHERE created_at < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`)
	return s.selectEntries(ctx, query, s.timeArg(cutoff), limit)
}

func (s *SQLLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM ` + LogTable + ` WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, s.timeArg(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete log entries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLLogStore) selectEntries(ctx context.Context, query string, args ...any) ([]LogEntry, error) {
	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select log entries: %w", err)
	}
	entries := make([]LogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (s *SQLLogStore) timeArg(t time.Time) any {
	if s.db.DriverName() == DriverSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// sqlTime scans timestamps from both drivers: PostgreSQL returns time.Time,
// SQLite returns the text written by timeArg.
type sqlTime struct {
	time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverPostgres, connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectSQLite opens a SQLite database file (or ":memory:"). SQLite allows a
// single writer, so the pool is pinned to one connection.
func ConnectSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
