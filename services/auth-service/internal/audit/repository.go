package audit

import (
	"context"
	"time"

	"github.com/repromitra/telehealth/libs/db"
)

const (
	ActionOTPStarted   = "otp.started"
	ActionSignIn       = "sign_in"
	ActionSignInFailed = "sign_in.failed"
	ActionTokenRefresh = "token.refresh"
	ActionSignOut      = "sign_out"
)

type Entry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_audit_log (user_id, action, ip, user_agent)
		VALUES (NULLIF($1, '')::uuid, $2, NULLIF($3, ''), NULLIF($4, ''))
	`, e.UserID, e.Action, e.IP, e.UserAgent)
	return err
}

// ListForUser returns the caller's own most recent security events.
func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(user_id::text, ''), action, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		FROM auth_audit_log
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
