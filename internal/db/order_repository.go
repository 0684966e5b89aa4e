package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"lobby/internal/model"
)

var _ OrderStore = (*OrderRepository)(nil)

// OrderRepository is the Postgres-backed OrderStore.
type OrderRepository struct {
	db *Postgres
}

func NewOrderRepository(db *Postgres) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, customer_name, status, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, customerName string, createdAt time.Time) (model.Order, error) {
	var id int64
	err := r.db.pool.QueryRow(ctx, `
        INSERT INTO orders (customer_name, status, created_at, updated_at)
        VALUES ($1, $2, $3, $3)
        RETURNING id
    `, customerName, string(model.StatusPreparing), createdAt.UTC()).Scan(&id)
	if err != nil {
		return model.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	return model.NewOrder(id, customerName, createdAt), nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (model.Order, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	ord, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return ord, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status model.Status, updatedAt time.Time) (model.Order, error) {
	row := r.db.pool.QueryRow(ctx, `
        UPDATE orders SET status = $2, updated_at = GREATEST($3, created_at)
        WHERE id = $1
        RETURNING `+orderColumns,
		id, string(status), updatedAt.UTC())
	ord, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, fmt.Errorf("failed to update order %d: %w", id, err)
	}
	return ord, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context) ([]model.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status model.Status) ([]model.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at, id`, string(status))
}

func (r *OrderRepository) Close() {
	r.db.Close()
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		ord    model.Order
		status string
	)
	if err := row.Scan(&ord.ID, &ord.CustomerName, &status, &ord.CreatedAt, &ord.UpdatedAt); err != nil {
		return model.Order{}, err
	}
	ord.Status = model.Status(status)
	ord.CreatedAt = ord.CreatedAt.UTC()
	ord.UpdatedAt = ord.UpdatedAt.UTC()
	return ord, nil
}
