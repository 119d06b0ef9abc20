package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/repromitra/telehealth/libs/sms"
	"golang.org/x/crypto/bcrypt"
)

// CodeStore keeps one pending code hash per phone together with the number
// of checks made against it.
type CodeStore interface {
	Save(ctx context.Context, phone, hash string, ttl time.Duration) error
	// Claim atomically counts one check against the pending code and returns
	// its hash with the new count. It returns ErrNoPendingCode when none exists.
	Claim(ctx context.Context, phone string) (hash string, attempts int, err error)
	Delete(ctx context.Context, phone string) error
}

type LocalConfig struct {
	TTL         time.Duration
	MaxAttempts int
	BcryptCost  int
}

// Local issues six digit codes itself and delivers them over SMS. Only the
// bcrypt hash is stored.
type Local struct {
	store  CodeStore
	sender sms.Sender
	cfg    LocalConfig
}

func NewLocal(store CodeStore, sender sms.Sender, cfg LocalConfig) *Local {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{store: store, sender: sender, cfg: cfg}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Start(ctx context.Context, phone string) error {
	code, err := newCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), l.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	if err := l.store.Save(ctx, phone, string(hash), l.cfg.TTL); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	msg := fmt.Sprintf("Your ReproMitra verification code is %s. It expires in %d minutes.", code, int(l.cfg.TTL.Minutes()))
	if err := l.sender.Send(ctx, phone, msg); err != nil {
		_ = l.store.Delete(ctx, phone)
		return fmt.Errorf("deliver code: %w", err)
	}
	return nil
}

func (l *Local) Check(ctx context.Context, phone, code string) (bool, error) {
	// The attempt is counted before the hash is compared so parallel guesses
	// cannot all observe the same count.
	hash, attempts, err := l.store.Claim(ctx, phone)
	if err != nil {
		return false, err
	}
	if attempts > l.cfg.MaxAttempts {
		return false, ErrTooManyAttempts
	}
	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := l.store.Delete(ctx, phone); err != nil {
		return false, err
	}
	return true, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
