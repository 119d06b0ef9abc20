package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	Schedule(ctx context.Context, jobs []Job) error
	Cancel(ctx context.Context, appointmentID string) (int64, error)
}

// Topics are the booking events that plan or cancel reminders.
var Topics = []string{events.AppointmentBooked, events.AppointmentCancelled}

type Handler struct {
	store  Store
	loc    *time.Location
	leads  []time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(store Store, loc *time.Location, leads []time.Duration, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{store: store, loc: loc, leads: leads, logger: logger, now: time.Now}
}

// HandleMessage is the consumer callback. Undecodable events are dropped.
func (h *Handler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	var p events.AppointmentPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.Error("invalid appointment payload", "event_id", meta.EventID, "err", err)
		return nil
	}

	switch meta.EventType {
	case events.AppointmentBooked:
		jobs, err := Plan(p, h.loc, h.leads, h.now())
		if errors.Is(err, ErrInvalidAppointment) {
			h.logger.Error("cannot schedule reminders", "event_id", meta.EventID, "err", err)
			return nil
		}
		if err != nil {
			return err
		}
		if err := h.store.Schedule(ctx, jobs); err != nil {
			return err
		}
		h.logger.Info("reminders scheduled", "appointment_id", p.AppointmentID, "count", len(jobs))
	case events.AppointmentCancelled:
		n, err := h.store.Cancel(ctx, p.AppointmentID)
		if err != nil {
			return err
		}
		h.logger.Info("reminders cancelled", "appointment_id", p.AppointmentID, "count", n)
	}
	return nil
}
