package metrics

import (
	"context"
	"log/slog"

	"github.com/repromitra/telehealth/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	Apply(ctx context.Context, d Delta) error
}

type Aggregator struct {
	store  Store
	logger *slog.Logger
}

func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// HandleMessage is the consumer callback; undecodable events are dropped.
func (a *Aggregator) HandleMessage(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	d, err := FromEvent(meta.EventType, msg.Value, msg.Time)
	if err != nil {
		a.logger.Error("invalid event payload", "event_id", meta.EventID, "event_type", meta.EventType, "err", err)
		return nil
	}
	if d.Doctor == nil && d.Channel == nil {
		return nil
	}
	if err := a.store.Apply(ctx, d); err != nil {
		a.logger.Error("failed to update metrics", "event_id", meta.EventID, "err", err)
		return err
	}
	a.logger.Info("metric recorded", "event_type", meta.EventType)
	return nil
}
