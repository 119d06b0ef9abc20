package rooms

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the single-replica fallback used when Redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
	now   func() time.Time
}

type memoryRoom struct {
	participants map[string]struct{}
	expires      time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: map[string]*memoryRoom{}, now: time.Now}
}

func (s *MemoryStore) live(room string) *memoryRoom {
	r, ok := s.rooms[room]
	if !ok {
		return nil
	}
	if !s.now().Before(r.expires) {
		delete(s.rooms, room)
		return nil
	}
	return r
}

func (s *MemoryStore) Join(_ context.Context, room, participant string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.live(room)
	if r == nil {
		r = &memoryRoom{participants: map[string]struct{}{}}
		s.rooms[room] = r
	}
	r.participants[participant] = struct{}{}
	r.expires = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) Leave(_ context.Context, room, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.live(room); r != nil {
		delete(r.participants, participant)
		if len(r.participants) == 0 {
			delete(s.rooms, room)
		}
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
	return nil
}

func (s *MemoryStore) Participants(_ context.Context, room string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.live(room)
	if r == nil {
		return nil, nil
	}
	out := make([]string, 0, len(r.participants))
	for p := range r.participants {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
