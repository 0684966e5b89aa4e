package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lobby/internal/model"

	_ "modernc.org/sqlite"
)

var _ OrderStore = (*SQLiteOrderStore)(nil)

// SQLiteOrderStore is the embedded OrderStore used on a single kiosk host.
// Timestamps are stored as UTC unix milliseconds.
type SQLiteOrderStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteOrderStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps AUTOINCREMENT ids in commit order.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	stmts, err := schemaStatements("sqlite.sql")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &SQLiteOrderStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteOrderStore) Create(ctx context.Context, customerName string, createdAt time.Time) (model.Order, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO orders (customer_name, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		customerName, string(model.StatusPreparing), toMillis(createdAt), toMillis(createdAt))
	if err != nil {
		return model.Order{}, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Order{}, fmt.Errorf("read order id: %w", err)
	}
	return model.NewOrder(id, customerName, fromMillis(toMillis(createdAt))), nil
}

func (s *SQLiteOrderStore) Get(ctx context.Context, id int64) (model.Order, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, customer_name, status, created_at, updated_at FROM orders WHERE id = ?`, id)
	ord, err := scanSQLiteOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return ord, nil
}

func (s *SQLiteOrderStore) UpdateStatus(ctx context.Context, id int64, status model.Status, updatedAt time.Time) (model.Order, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = MAX(?, created_at) WHERE id = ?`,
		string(status), toMillis(updatedAt), id)
	if err != nil {
		return model.Order{}, fmt.Errorf("update order %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Order{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLiteOrderStore) Delete(ctx context.Context, id int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteOrderStore) List(ctx context.Context) ([]model.Order, error) {
	return s.query(ctx,
		`SELECT id, customer_name, status, created_at, updated_at FROM orders ORDER BY created_at, id`)
}

func (s *SQLiteOrderStore) ListByStatus(ctx context.Context, status model.Status) ([]model.Order, error) {
	return s.query(ctx,
		`SELECT id, customer_name, status, created_at, updated_at FROM orders WHERE status = ? ORDER BY created_at, id`,
		string(status))
}

func (s *SQLiteOrderStore) Close() {
	if s == nil || s.sqlDB == nil {
		return
	}
	_ = s.sqlDB.Close()
}

func (s *SQLiteOrderStore) query(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		ord, err := scanSQLiteOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanSQLiteOrder(row rowScanner) (model.Order, error) {
	var (
		ord                  model.Order
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&ord.ID, &ord.CustomerName, &status, &createdAt, &updatedAt); err != nil {
		return model.Order{}, err
	}
	ord.Status = model.Status(status)
	ord.CreatedAt = fromMillis(createdAt)
	ord.UpdatedAt = fromMillis(updatedAt)
	return ord, nil
}
