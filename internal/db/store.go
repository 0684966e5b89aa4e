package db

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"lobby/internal/model"
)

var ErrNotFound = errors.New("order not found")

//go:embed schema/*.sql
var schemaFS embed.FS

// OrderStore is the secondary relational record of orders. It assigns ids
// and keeps an audit copy; the file cache stays authoritative for the live queue.
type OrderStore interface {
	Create(ctx context.Context, customerName string, createdAt time.Time) (model.Order, error)
	Get(ctx context.Context, id int64) (model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, updatedAt time.Time) (model.Order, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Order, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.Order, error)
	Close()
}

// schemaStatements splits an embedded schema file into single statements.
func schemaStatements(name string) ([]string, error) {
	data, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, err
	}
	var stmts []string
	for _, part := range strings.Split(string(data), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
