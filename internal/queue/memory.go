package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by PublishEntry after Close.
var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue is an in-process queue for tests and development. It
// implements Publisher and Consumer with the same at-least-once settle
// semantics as JetStream, including redelivery on Nak.
type MemoryQueue struct {
	prefix string

	mu       sync.Mutex
	pending  []*memoryDelivery
	handler  Handler
	closed   bool
	FailWith error // when set, PublishEntry returns this error
}

func NewMemoryQueue(prefix string) *MemoryQueue {
	return &MemoryQueue{prefix: prefix}
}

func (q *MemoryQueue) PublishEntry(ctx context.Context, env *Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.FailWith != nil {
		return q.FailWith
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	d := &memoryDelivery{
		queue:   q,
		data:    data,
		subject: Subject(q.prefix, env.Entry.ProjectID),
		attempt: 1,
	}
	if q.handler != nil {
		go q.handler(ctx, d)
	} else {
		q.pending = append(q.pending, d)
	}
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) (func(), error) {
	q.mu.Lock()
	q.handler = handler
	backlog := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, d := range backlog {
		handler(ctx, d)
	}

	return func() {
		q.mu.Lock()
		q.handler = nil
		q.mu.Unlock()
	}, nil
}

// Pending returns the number of unsettled deliveries waiting for a
// consumer.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *MemoryQueue) redeliver(d *memoryDelivery) {
	q.mu.Lock()
	handler := q.handler
	if handler == nil {
		q.pending = append(q.pending, d)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	handler(context.Background(), d)
}

type memoryDelivery struct {
	queue   *MemoryQueue
	data    []byte
	subject string
	attempt int
	settled bool
}

func (d *memoryDelivery) Data() []byte    { return d.data }
func (d *memoryDelivery) Subject() string { return d.subject }
func (d *memoryDelivery) Attempt() int    { return d.attempt }

func (d *memoryDelivery) Ack() error {
	d.settled = true
	return nil
}

func (d *memoryDelivery) Nak(delay time.Duration) error {
	if d.settled {
		return errors.New("delivery already settled")
	}
	d.attempt++
	d.queue.redeliver(d)
	return nil
}
