package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Customer name bounds, in characters.
const (
	MinCustomerNameLen = 2
	MaxCustomerNameLen = 100
)

type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
)

// ParseStatus accepts the canonical names case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPreparing:
		return StatusPreparing, nil
	case StatusReady:
		return StatusReady, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s Status) Valid() bool {
	return s == StatusPreparing || s == StatusReady
}

// CanTransition reports whether an order may move from s to next.
// READY is terminal; marking a READY order ready again is allowed and changes nothing.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPreparing:
		return next == StatusPreparing || next == StatusReady
	case StatusReady:
		return next == StatusReady
	}
	return false
}

type Order struct {
	ID           int64     `json:"id"`
	CustomerName string    `json:"customerName"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ValidCustomerName applies the request rule to a name read back from storage.
func ValidCustomerName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= MinCustomerNameLen && n <= MaxCustomerNameLen
}

type CreateOrderRequest struct {
	CustomerName string `json:"customerName" validate:"required,min=2,max=100"`
}

// NewOrder builds a freshly accepted order. Timestamps are UTC and equal.
func NewOrder(id int64, customerName string, now time.Time) Order {
	now = now.UTC()
	return Order{
		ID:           id,
		CustomerName: customerName,
		Status:       StatusPreparing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkReady moves the order to READY and bumps UpdatedAt, never below CreatedAt.
func (o *Order) MarkReady(now time.Time) error {
	if !o.Status.CanTransition(StatusReady) {
		return fmt.Errorf("order %d: cannot move from %q to %q", o.ID, o.Status, StatusReady)
	}
	now = now.UTC()
	if now.Before(o.CreatedAt) {
		now = o.CreatedAt
	}
	o.Status = StatusReady
	o.UpdatedAt = now
	return nil
}

// FilterByStatus keeps list order.
func FilterByStatus(orders []Order, status Status) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
