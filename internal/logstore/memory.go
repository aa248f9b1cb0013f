package logstore

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

// MemoryStore is an in-process Store that models the propagation delay of the
// real backend: the first write to a previously unseen category stays hidden
// for firstDelay, later writes for steadyDelay. With both delays zero it
// behaves as an ordinary immediately-consistent store, which is what tests
// want.
type MemoryStore struct {
	firstDelay  time.Duration
	steadyDelay time.Duration

	mu     sync.Mutex
	events map[model.EventCategory][]memRecord

	// now is a clock hook for tests.
	now func() time.Time
}

type memRecord struct {
	ev        model.CanonicalEvent
	visibleAt time.Time
}

func NewMemory(firstDelay, steadyDelay time.Duration) *MemoryStore {
	return &MemoryStore{
		firstDelay:  firstDelay,
		steadyDelay: steadyDelay,
		events:      map[model.EventCategory][]memRecord{},
		now:         time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, ev model.CanonicalEvent) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Op: "append", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.steadyDelay
	if _, seen := s.events[ev.EventCategory]; !seen {
		delay = s.firstDelay
	}
	s.events[ev.EventCategory] = append(s.events[ev.EventCategory], memRecord{
		ev:        ev,
		visibleAt: s.now().Add(delay),
	})
	return nil
}

func (s *MemoryStore) QueryRange(ctx context.Context, cat model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []model.CanonicalEvent
	for _, rec := range s.events[cat] {
		if rec.visibleAt.After(now) {
			continue // not yet visible; absence, not an error
		}
		if rec.ev.Timestamp.Before(from) || !rec.ev.Timestamp.Before(to) {
			continue
		}
		out = append(out, rec.ev)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
