// Package queue provides the durable delivery queue between the ingestion
// gateway and the storage consumer. It defines broker-agnostic interfaces
// backed by NATS JetStream in production and an in-memory queue in tests.
package queue

import (
	"context"
	"time"

	"github.com/logvault-systems/logvault/internal/models"
)

// Envelope is the queued message: the validated entry plus the storage
// backend chosen at ingestion time, so the consumer needs no further
// routing input.
type Envelope struct {
	Backend string          `json:"backend"`
	Entry   models.LogEntry `json:"entry"`
}

// Publisher enqueues accepted log entries for asynchronous delivery.
// PublishEntry returns only after the broker has confirmed the write, so
// a nil error means the entry is durably queued.
type Publisher interface {
	PublishEntry(ctx context.Context, env *Envelope) error
	Close() error
}

// Delivery is a single queued entry handed to the consumer. The consumer
// must settle every delivery exactly one way: Ack on success or Nak to
// request redelivery.
type Delivery interface {
	Data() []byte
	Subject() string

	// Attempt is the 1-based delivery attempt for this message.
	Attempt() int

	Ack() error
	Nak(delay time.Duration) error
}

// Handler processes one delivery. Settling the delivery is the handler's
// responsibility.
type Handler func(ctx context.Context, d Delivery)

// Consumer pulls deliveries from the queue and feeds them to a handler
// until the context is canceled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) (stop func(), err error)
}

// Subject builds the per-project subject an entry is published to, e.g.
// "logs.entry.<projectID>".
func Subject(prefix, projectID string) string {
	return prefix + "." + projectID
}
