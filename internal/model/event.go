package model

import "time"

const EventOrdersUpdated = "ORDERS_UPDATED"

// Event is what subscribers receive after every successful mutation.
// Timestamp is unix milliseconds.
type Event struct {
	EventType string  `json:"eventType"`
	Payload   []Order `json:"payload"`
	Timestamp int64   `json:"timestamp"`
}

func NewOrdersUpdated(orders []Order, at time.Time) Event {
	payload := make([]Order, len(orders))
	copy(payload, orders)
	return Event{
		EventType: EventOrdersUpdated,
		Payload:   payload,
		Timestamp: at.UnixMilli(),
	}
}
