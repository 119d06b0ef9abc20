// Package otp verifies phone ownership with one-time codes.
package otp

import (
	"context"
	"errors"
)

var (
	// ErrTooManyAttempts means the code was locked after repeated misses.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrNoPendingCode means no code was started for the phone or it expired.
	ErrNoPendingCode = errors.New("no pending code")
)

type Provider interface {
	// Start sends a fresh code to phone.
	Start(ctx context.Context, phone string) error
	// Check reports whether code matches the pending code for phone.
	Check(ctx context.Context, phone, code string) (bool, error)
	Name() string
}
