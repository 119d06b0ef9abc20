// Package rooms tracks who is inside a consultation room. Presence expires
// on its own, so a crashed client never pins a room open.
package rooms

import (
	"context"
	"sync"
	"time"
)

// Store records participants per room. Join refreshes the room TTL.
type Store interface {
	Join(ctx context.Context, room, participant string, ttl time.Duration) error
	Leave(ctx context.Context, room, participant string) error
	Clear(ctx context.Context, room string) error
	Participants(ctx context.Context, room string) ([]string, error)
}

type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Manager{store: store, ttl: ttl}
}

// Acquire registers participant in room. The returned lease must be
// released or kept; Release is safe to defer unconditionally.
func (m *Manager) Acquire(ctx context.Context, room, participant string) (*Lease, error) {
	if err := m.store.Join(ctx, room, participant, m.ttl); err != nil {
		return nil, err
	}
	return &Lease{store: m.store, room: room, participant: participant}, nil
}

func (m *Manager) Leave(ctx context.Context, room, participant string) error {
	return m.store.Leave(ctx, room, participant)
}

// Close empties the room for everyone.
func (m *Manager) Close(ctx context.Context, room string) error {
	return m.store.Clear(ctx, room)
}

func (m *Manager) Participants(ctx context.Context, room string) ([]string, error) {
	return m.store.Participants(ctx, room)
}

type Lease struct {
	store       Store
	room        string
	participant string

	mu   sync.Mutex
	done bool
}

// Keep hands the presence over to the TTL; a later Release is a no-op.
func (l *Lease) Keep() {
	l.mu.Lock()
	l.done = true
	l.mu.Unlock()
}

// Release removes the participant unless the lease was kept or already
// released.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return nil
	}
	l.done = true
	l.mu.Unlock()
	// Cleanup must run even when the request context is already cancelled.
	return l.store.Leave(context.WithoutCancel(ctx), l.room, l.participant)
}
