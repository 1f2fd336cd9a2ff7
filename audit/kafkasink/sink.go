// Package kafkasink publishes streamauth audit events to a Kafka topic.
//
// Events are JSON encoded and keyed by user id so one user's events stay
// ordered within a partition. Publishing happens on the audit dispatcher's
// worker goroutine; a failed write is logged and counted, never retried.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/segmentio/kafka-go"
)

// ErrNoBrokers is returned by [New] when no broker address is given.
var ErrNoBrokers = errors.New("kafkasink: at least one broker is required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures a [Sink].
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Sink implements streamauth.AuditSink.
type Sink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
	failed  atomic.Uint64
}

var _ streamauth.AuditSink = (*Sink)(nil)

// New returns a sink writing to cfg.Topic. Topic defaults to
// "streamauth.audit" and WriteTimeout to 5s.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "streamauth.audit"
	}
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, cfg.WriteTimeout, cfg.Logger), nil
}

func newSink(w messageWriter, timeout time.Duration, logger *slog.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sink{
		writer:  w,
		timeout: timeout,
		logger:  logger.With("module", "kafkasink"),
	}
}

// Emit publishes event. It blocks for at most the configured write timeout.
func (s *Sink) Emit(ctx context.Context, event streamauth.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(ctx, event, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		s.fail(ctx, event, err)
	}
}

// Failed reports how many events could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

// Close flushes pending writes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

func (s *Sink) fail(ctx context.Context, event streamauth.AuditEvent, err error) {
	s.failed.Add(1)
	s.logger.WarnContext(ctx, "audit publish failed",
		"operation", "emit",
		"outcome", "failure",
		"event_type", event.EventType,
		"error", err,
	)
}
