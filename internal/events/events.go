// Package events publishes domain events (registrations, note and category changes) to Kafka.
// Publishing is best effort; callers never fail a request because an event was lost.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	skafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/metrics"
)

// Event types.
const (
	UserRegistered  = "user.registered"
	CategoryCreated = "category.created"
	CategoryDeleted = "category.deleted"
	NoteCreated     = "note.created"
	NoteUpdated     = "note.updated"
	NoteDeleted     = "note.deleted"
)

// Event is a single domain event. Payloads carry ids only, never note content.
type Event struct {
	Type       string    `json:"type"`
	OwnerID    uuid.UUID `json:"owner_id"`
	NoteID     string    `json:"note_id,omitempty"`
	CategoryID *int64    `json:"category_id,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher sends domain events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by owner id, so one owner's events stay ordered
// within a partition.
type Kafka struct {
	w   Writer
	log *zap.Logger
}

// NewKafka creates an asynchronous publisher for topic. Delivery failures are logged.
func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []skafka.Message, err error) {
			if err != nil {
				log.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return NewKafkaWithWriter(w, log)
}

// NewKafkaWithWriter allows injecting a writer.
func NewKafkaWithWriter(w Writer, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	return &Kafka{w: w, log: log}
}

// Publish marshals ev and hands it to the writer.
func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := skafka.Message{
		Key:     []byte(ev.OwnerID.String()),
		Value:   b,
		Headers: []skafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error { return k.w.Close() }

// Noop discards events; it is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
