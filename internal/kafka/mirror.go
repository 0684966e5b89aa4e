package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"lobby/internal/hub"
	"lobby/internal/model"
)

const messageKey = "orders"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror copies every order-list event it receives from the hub to a Kafka topic.
type Mirror struct {
	writer       messageWriter
	logger       *log.Logger
	writeTimeout time.Duration
}

func NewMirror(brokers []string, topic string, logger *log.Logger) *Mirror {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newMirror(writer, logger)
}

func newMirror(w messageWriter, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Mirror{
		writer:       w,
		logger:       logger,
		writeTimeout: 5 * time.Second,
	}
}

// Subscriptions is the part of the hub the mirror needs.
type Subscriptions interface {
	Subscribe() *hub.Subscription
	Unsubscribe(sub *hub.Subscription)
}

// Run forwards events until ctx is cancelled. If the hub drops the mirror
// for falling behind, it subscribes again and carries on with later events.
func (m *Mirror) Run(ctx context.Context, subs Subscriptions) error {
	m.logger.Println("Starting event mirror...")

	sub := subs.Subscribe()
	defer func() { subs.Unsubscribe(sub) }()

	for {
		select {
		case <-ctx.Done():
			m.logger.Println("Stopping event mirror...")
			return nil
		case <-sub.Done():
			if ctx.Err() != nil {
				continue
			}
			m.logger.Printf("Event mirror subscription %v dropped by hub, resubscribing", sub.ID())
			sub = subs.Subscribe()
		case ev := <-sub.Events():
			m.forward(ctx, ev)
		}
	}
}

func (m *Mirror) forward(ctx context.Context, ev model.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		m.logger.Printf("Failed to encode event: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(messageKey),
		Value: value,
		Time:  time.UnixMilli(ev.Timestamp),
	}
	if err := m.writer.WriteMessages(writeCtx, msg); err != nil {
		if ctx.Err() == nil {
			m.logger.Printf("Failed to mirror event (%d orders): %v", len(ev.Payload), err)
		}
		return
	}
	m.logger.Printf("Mirrored event with %d orders", len(ev.Payload))
}

func (m *Mirror) Close() error {
	return m.writer.Close()
}
