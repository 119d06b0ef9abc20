package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/kafkax"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/sms"
	"github.com/repromitra/telehealth/services/notification-service/internal/email"
	"github.com/repromitra/telehealth/services/notification-service/internal/storage"
	"github.com/repromitra/telehealth/services/notification-service/internal/templates"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	// Record persists n together with its sent/failed outbox event. It
	// returns storage.ErrAlreadyRecorded when the channel was already
	// recorded for the source event.
	Record(ctx context.Context, n storage.Notification, build func(id string) (outbox.Event, error)) (string, error)
	Recorded(ctx context.Context, sourceEventID, channel string) (bool, error)
}

type Service struct {
	sms    sms.Sender
	email  email.Sender
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the delivery channels. A nil email sender disables email.
func NewService(smsSender sms.Sender, emailSender email.Sender, store Store, logger *slog.Logger) *Service {
	return &Service{sms: smsSender, email: emailSender, store: store, logger: logger, now: time.Now}
}

// HandleMessage is the consumer callback. Malformed payloads are logged and
// dropped; only storage failures are returned.
func (s *Service) HandleMessage(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	return s.Handle(ctx, meta.EventID, meta.EventType, msg.Value)
}

func (s *Service) Handle(ctx context.Context, eventID, eventType string, raw []byte) error {
	msgs, err := templates.Render(eventType, raw)
	if err != nil {
		s.logger.Error("invalid event payload", "event_id", eventID, "event_type", eventType, "err", err)
		return nil
	}
	if len(msgs) == 0 {
		s.logger.Info("no recipients for event", "event_id", eventID, "event_type", eventType)
		return nil
	}
	for _, m := range msgs {
		if err := s.deliver(ctx, eventID, eventType, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, eventID, eventType string, m templates.Message) error {
	// A redelivered event skips channels that went out on an earlier attempt.
	done, err := s.store.Recorded(ctx, eventID, m.Channel)
	if err != nil {
		return err
	}
	if done {
		s.logger.Info("notification already delivered", "event_id", eventID, "channel", m.Channel)
		return nil
	}

	status, reason := "sent", ""
	if err := s.send(ctx, m); err != nil {
		status, reason = "failed", err.Error()
		s.logger.Error("notification send failed", "channel", m.Channel, "event_id", eventID, "err", err)
	}

	n := storage.Notification{
		SourceEventID: eventID,
		EventType:     eventType,
		AppointmentID: m.AppointmentID,
		Channel:       m.Channel,
		Recipient:     m.Recipient,
		Body:          m.Body,
		Status:        status,
		Error:         reason,
	}
	topic := events.NotificationSent
	if status == "failed" {
		topic = events.NotificationFailed
	}
	id, err := s.store.Record(ctx, n, func(id string) (outbox.Event, error) {
		return outbox.NewEvent("notification", id, topic, events.NotificationPayload{
			NotificationID: id,
			SourceEventID:  eventID,
			Channel:        m.Channel,
			Recipient:      mask(m.Recipient),
			Error:          reason,
		})
	})
	if errors.Is(err, storage.ErrAlreadyRecorded) {
		s.logger.Warn("notification recorded concurrently", "event_id", eventID, "channel", m.Channel)
		return nil
	}
	if err != nil {
		s.logger.Error("failed to persist notification", "event_id", eventID, "err", err)
		return err
	}
	s.logger.Info("notification processed", "notification_id", id, "event_type", eventType, "channel", m.Channel, "status", status)
	return nil
}

func (s *Service) send(ctx context.Context, m templates.Message) error {
	switch m.Channel {
	case templates.ChannelSMS:
		return s.sms.Send(ctx, m.Recipient, m.Body)
	case templates.ChannelEmail:
		if s.email == nil {
			return errEmailDisabled
		}
		return s.email.Send(m.Recipient, m.Subject, m.Body)
	}
	return errUnsupportedChannel
}

// mask keeps the last four characters of a phone number or the domain of an
// address so downstream consumers never see full contact details.
func mask(recipient string) string {
	if at := strings.LastIndex(recipient, "@"); at > 0 {
		return "***" + recipient[at:]
	}
	if len(recipient) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-4:]
}
