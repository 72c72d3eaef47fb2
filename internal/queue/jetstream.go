package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/logging"
)

// JetStreamQueue is the production queue. Entries land on a work-queue
// stream so each is delivered to exactly one consumer, acknowledged
// explicitly, and retained until settled or expired.
type JetStreamQueue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	cfg    config.QueueConfig
	cons   config.ConsumerConfig
	logger *logging.Logger
}

// NewJetStream connects to NATS and ensures the log stream exists.
func NewJetStream(cfg config.QueueConfig, cons config.ConsumerConfig, logger *logging.Logger) (*JetStreamQueue, error) {
	opts := []nats.Option{
		nats.Name("logvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("queue disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("queue reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	q := &JetStreamQueue{
		conn:   conn,
		js:     js,
		cfg:    cfg,
		cons:   cons,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return q, nil
}

func (q *JetStreamQueue) ensureStream(ctx context.Context) error {
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      q.cfg.Stream,
		Subjects:  []string{q.cfg.SubjectPrefix + ".>"},
		MaxAge:    q.cfg.MaxAge,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update stream %s: %w", q.cfg.Stream, err)
	}
	return nil
}

// PublishEntry marshals the envelope and publishes it to the project's
// subject, waiting for the broker's acknowledgment.
func (q *JetStreamQueue) PublishEntry(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.PublishTimeout)
	defer cancel()

	if _, err := q.js.Publish(ctx, Subject(q.cfg.SubjectPrefix, env.Entry.ProjectID), data); err != nil {
		return fmt.Errorf("publish entry: %w", err)
	}
	return nil
}

// Consume starts the durable consumer and feeds deliveries to handler
// until the returned stop function is called or ctx is canceled.
func (q *JetStreamQueue) Consume(ctx context.Context, handler Handler) (func(), error) {
	stream, err := q.js.Stream(ctx, q.cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", q.cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          q.cons.Name,
		Durable:       q.cons.Name,
		FilterSubject: q.cfg.SubjectPrefix + ".>",
		AckWait:       q.cfg.AckWait,
		MaxDeliver:    q.cfg.MaxDeliver,
		MaxAckPending: 100,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", q.cons.Name, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(consumeCtx, &jetstreamDelivery{msg: msg})
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}

// Healthy reports whether the broker connection is up.
func (q *JetStreamQueue) Healthy(ctx context.Context) bool {
	return q.conn.IsConnected()
}

// Close drains the connection, letting in-flight messages settle.
func (q *JetStreamQueue) Close() error {
	return q.conn.Drain()
}

type jetstreamDelivery struct {
	msg jetstream.Msg
}

func (d *jetstreamDelivery) Data() []byte    { return d.msg.Data() }
func (d *jetstreamDelivery) Subject() string { return d.msg.Subject() }

func (d *jetstreamDelivery) Attempt() int {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d *jetstreamDelivery) Ack() error { return d.msg.Ack() }

func (d *jetstreamDelivery) Nak(delay time.Duration) error {
	if delay > 0 {
		return d.msg.NakWithDelay(delay)
	}
	return d.msg.Nak()
}
