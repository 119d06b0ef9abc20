package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/outbox"
)

type SessionRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSessionRepository(pool *db.Pool, outboxRepo *outbox.Repository) *SessionRepository {
	return &SessionRepository{pool: pool, outbox: outboxRepo}
}

// Opened records the first join; later joins leave the row unchanged.
func (r *SessionRepository) Opened(ctx context.Context, appointmentID, room, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consultation_sessions (appointment_id, room_name, opened_by)
		VALUES ($1::uuid, $2, $3::uuid)
		ON CONFLICT (appointment_id) DO NOTHING
	`, appointmentID, room, userID)
	return err
}

func (r *SessionRepository) Closed(ctx context.Context, appointmentID, room, userID string, evt outbox.Event) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO consultation_sessions (appointment_id, room_name, opened_by, closed_by, closed_at)
			VALUES ($1::uuid, $2, $3::uuid, $3::uuid, now())
			ON CONFLICT (appointment_id) DO UPDATE
			SET closed_by = EXCLUDED.closed_by, closed_at = EXCLUDED.closed_at
			WHERE consultation_sessions.closed_at IS NULL
		`, appointmentID, room, userID)
		if err != nil {
			return err
		}
		// Only the first close announces the session end.
		if tag.RowsAffected() != 1 {
			return nil
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}
