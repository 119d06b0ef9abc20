package rooms

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, time.Hour)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "ReproMitra-a1", "patient-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "ReproMitra-a1", "doctor-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := lease.Release(ctx); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	got, _ := m.Participants(ctx, "ReproMitra-a1")
	if !slices.Equal(got, []string{"doctor-1"}) {
		t.Fatalf("unexpected participants: %v", got)
	}
}

func TestKeptLeaseSurvivesRelease(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	lease, _ := m.Acquire(ctx, "r", "p")
	lease.Keep()
	_ = lease.Release(ctx)
	got, _ := m.Participants(ctx, "r")
	if len(got) != 1 {
		t.Fatalf("kept lease was released: %v", got)
	}
}

func TestReleaseAfterCancel(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	lease, _ := m.Acquire(ctx, "r", "p")
	cancel()
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release after cancel: %v", err)
	}
	if got, _ := m.Participants(context.Background(), "r"); len(got) != 0 {
		t.Fatalf("expected empty room, got %v", got)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	m := NewManager(store, 2*time.Hour)

	if _, err := m.Acquire(context.Background(), "r", "p"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if got, _ := m.Participants(context.Background(), "r"); len(got) != 0 {
		t.Fatalf("expected expiry, got %v", got)
	}
}

func TestCloseEmptiesRoom(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	_, _ = m.Acquire(ctx, "r", "a")
	_, _ = m.Acquire(ctx, "r", "b")
	if err := m.Close(ctx, "r"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, _ := m.Participants(ctx, "r"); len(got) != 0 {
		t.Fatalf("expected empty room, got %v", got)
	}
}

func TestNilLeaseRelease(t *testing.T) {
	var l *Lease
	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
