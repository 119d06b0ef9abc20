// Package consumer runs a Kafka consumer group whose handler sees each event
// at most once per inbox, committing offsets only after the event is settled.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/repromitra/telehealth/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox remembers handled event ids.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	// MaxAttempts bounds handler retries for one event; default 3.
	MaxAttempts int
	// RetryBackoff is the pause between attempts, doubled each time; default 1s.
	RetryBackoff time.Duration
}

type Consumer struct {
	reader      *kafka.Reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	c := &Consumer{
		reader:      reader,
		logger:      logger,
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if !c.process(ctx, msg) {
			// Leave the offset uncommitted so the next owner redelivers it.
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// maxInboxWait caps the pause between inbox lookups while the store is down.
const maxInboxWait = 30 * time.Second

// process runs the handler until it succeeds or attempts run out, then
// records the event id. An event that keeps failing is logged and skipped so
// one poison message cannot stall the partition. Inbox lookup failures are
// retried until ctx ends, since skipping them would lose the event. It
// reports whether the offset may be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	seen, err := c.lookup(ctx, span, meta)
	if err != nil {
		return false
	}
	if seen {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return true
	}

	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.handler(ctx, msg)
		if err == nil {
			break
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts {
			span.SetStatus(codes.Error, "handler failed")
			c.logger.Error("event dropped after retries", "err", err, "attempts", attempt, "event_id", meta.EventID, "event_type", meta.EventType)
			return true
		}
		c.logger.Warn("handler error, retrying", "err", err, "attempt", attempt, "event_id", meta.EventID, "event_type", meta.EventType)
		if !sleep(ctx, wait) {
			return false
		}
		wait *= 2
	}

	if _, err := c.inbox.Record(ctx, meta.EventID, meta.EventType); err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
	return true
}

func (c *Consumer) lookup(ctx context.Context, span trace.Span, meta kafkax.EventMeta) (bool, error) {
	wait := c.backoff
	for {
		seen, err := c.inbox.Seen(ctx, meta.EventID)
		if err == nil {
			return seen, nil
		}
		span.RecordError(err)
		c.logger.Error("inbox lookup failed, retrying", "err", err, "event_id", meta.EventID, "wait", wait)
		if !sleep(ctx, wait) {
			return false, ctx.Err()
		}
		wait = min(wait*2, maxInboxWait)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
