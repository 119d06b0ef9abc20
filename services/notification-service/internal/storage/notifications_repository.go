package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/outbox"
)

type Notification struct {
	SourceEventID string
	EventType     string
	AppointmentID string
	Channel       string
	Recipient     string
	Body          string
	Status        string
	Error         string
}

// ErrAlreadyRecorded means the channel was already delivered for the
// source event.
var ErrAlreadyRecorded = errors.New("notification already recorded")

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// Record inserts n and the event built from its generated id in one transaction.
func (r *Repository) Record(ctx context.Context, n Notification, build func(id string) (outbox.Event, error)) (string, error) {
	var id string
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications (source_event_id, event_type, appointment_id, channel, recipient, body, status, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
			RETURNING id::text
		`, n.SourceEventID, n.EventType, n.AppointmentID, n.Channel, n.Recipient, n.Body, n.Status, n.Error).Scan(&id)
		if err != nil {
			return err
		}
		evt, err := build(id)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if db.IsUniqueViolation(err) {
		return "", ErrAlreadyRecorded
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Recorded reports whether channel was already handled for sourceEventID.
func (r *Repository) Recorded(ctx context.Context, sourceEventID, channel string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications WHERE source_event_id = $1 AND channel = $2
		)
	`, sourceEventID, channel).Scan(&exists)
	return exists, err
}
