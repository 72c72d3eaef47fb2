// Package consumer drains the delivery queue and writes entries to their
// chosen storage backend. It is the only component that settles queue
// deliveries.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/metrics"
	"github.com/logvault-systems/logvault/internal/queue"
	"github.com/logvault-systems/logvault/internal/storage"
)

// Dispatcher routes queued envelopes to backends. Transient write
// failures are retried in-process with exponential backoff; exhaustion
// NAKs the delivery back to the queue. Undecodable messages and
// permanent failures are acknowledged and logged so they cannot wedge
// the stream.
type Dispatcher struct {
	backends *storage.Set
	cfg      config.ConsumerConfig
	timeout  time.Duration
	logger   *logging.Logger
}

func NewDispatcher(backends *storage.Set, cfg config.ConsumerConfig, writeTimeout time.Duration, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		backends: backends,
		cfg:      cfg,
		timeout:  writeTimeout,
		logger:   logger.With(logging.Component("consumer")),
	}
}

// Run consumes deliveries until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, consumer queue.Consumer) error {
	stop, err := consumer.Consume(ctx, d.Handle)
	if err != nil {
		return err
	}

	<-ctx.Done()
	stop()
	return nil
}

// Handle processes one delivery and settles it.
func (d *Dispatcher) Handle(ctx context.Context, delivery queue.Delivery) {
	var env queue.Envelope
	if err := json.Unmarshal(delivery.Data(), &env); err != nil {
		d.poison(delivery, "undecodable message", err)
		return
	}

	backend, err := d.backends.Get(env.Backend)
	if err != nil {
		d.poison(delivery, "unknown backend selector", err)
		return
	}

	if err := d.writeWithRetry(ctx, backend, &env); err != nil {
		if !storage.IsTransient(err) {
			metrics.ConsumedTotal.WithLabelValues(env.Backend, "permanent_failure").Inc()
			d.logger.WarnContext(ctx, "dropping entry after permanent backend failure",
				"error", err, "backend", env.Backend, "entry_id", env.Entry.ID)
			if ackErr := delivery.Ack(); ackErr != nil {
				d.logger.ErrorContext(ctx, "ack failed", "error", ackErr)
			}
			return
		}

		metrics.ConsumedTotal.WithLabelValues(env.Backend, "redelivered").Inc()
		d.logger.WarnContext(ctx, "write retries exhausted, requeueing",
			"error", err, "backend", env.Backend, "entry_id", env.Entry.ID,
			"attempt", delivery.Attempt())
		if nakErr := delivery.Nak(d.cfg.RetryBackoff * 4); nakErr != nil {
			d.logger.ErrorContext(ctx, "nak failed", "error", nakErr)
		}
		return
	}

	metrics.ConsumedTotal.WithLabelValues(env.Backend, "stored").Inc()
	if err := delivery.Ack(); err != nil {
		d.logger.ErrorContext(ctx, "ack failed", "error", err, "entry_id", env.Entry.ID)
	}
}

// writeWithRetry attempts the backend write with bounded exponential
// backoff. Permanent failures abort immediately.
func (d *Dispatcher) writeWithRetry(ctx context.Context, backend storage.Backend, env *queue.Envelope) error {
	var lastErr error
	backoff := d.cfg.RetryBackoff

	for attempt := 1; attempt <= d.cfg.RetryAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := backend.Write(writeCtx, &env.Entry)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !storage.IsTransient(err) {
			return err
		}
		if attempt == d.cfg.RetryAttempts {
			break
		}

		metrics.WriteRetries.Inc()
		d.logger.DebugContext(ctx, "backend write failed, retrying",
			"error", err, "backend", env.Backend, "attempt", attempt)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		}
		backoff *= 2
	}

	return lastErr
}

func (d *Dispatcher) poison(delivery queue.Delivery, reason string, err error) {
	metrics.PoisonMessages.Inc()
	d.logger.Warn("dropping poison message",
		"reason", reason, "error", err, "subject", delivery.Subject())
	if ackErr := delivery.Ack(); ackErr != nil {
		d.logger.Error("ack failed for poison message", "error", ackErr)
	}
}
