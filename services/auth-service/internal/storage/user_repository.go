package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID        string
	Phone     string
	Role      string
	Pseudonym string
	CreatedAt time.Time
}

type UserRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewUserRepository(pool *db.Pool, outboxRepo *outbox.Repository) *UserRepository {
	return &UserRepository{pool: pool, outbox: outboxRepo}
}

// SignIn returns the user for phone, creating a patient on first sign-in.
// Creation and the user.created event commit together.
func (r *UserRepository) SignIn(ctx context.Context, phone string, newPseudonym func() (string, error)) (User, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return User{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx, `
		UPDATE users SET last_sign_in_at = now()
		WHERE phone = $1
		RETURNING id::text, phone, role, pseudonym, created_at
	`, phone))
	if err == nil {
		return user, false, tx.Commit(ctx)
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}

	alias, err := newPseudonym()
	if err != nil {
		return User{}, false, err
	}
	// A concurrent first sign-in for the same phone wins the insert; we then
	// read its row instead of creating a second account.
	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, role, pseudonym, last_sign_in_at)
		VALUES ($1, 'patient', $2, now())
		ON CONFLICT (phone) DO UPDATE SET last_sign_in_at = now()
		RETURNING id::text, phone, role, pseudonym, created_at, (xmax = 0)
	`, phone, alias).Scan(&user.ID, &user.Phone, &user.Role, &user.Pseudonym, &user.CreatedAt, &created)
	if err != nil {
		return User{}, false, err
	}
	if created {
		evt, err := outbox.NewEvent("user", user.ID, events.UserCreated, events.UserCreatedPayload{
			UserID:    user.ID,
			Role:      user.Role,
			Pseudonym: user.Pseudonym,
			CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return User{}, false, err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return User{}, false, err
		}
	}
	return user, created, tx.Commit(ctx)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id::text, phone, role, pseudonym, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Phone, &u.Role, &u.Pseudonym, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}
