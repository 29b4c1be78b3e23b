package calendar

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

// MemoryBackend keeps events in process. It backs local development
// (CALENDAR_BACKEND=memory) and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	events map[string]map[string]Event
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{events: make(map[string]map[string]Event)}
}

var _ Backend = (*MemoryBackend)(nil)

func (m *MemoryBackend) ListEvents(ctx context.Context, calendarID string, q Query) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Backend("calendar.list", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	span := domain.Window{Start: q.From, End: q.To}
	var out []Event
	for _, ev := range m.events[calendarID] {
		if q.RequesterID != "" && ev.RequesterID != q.RequesterID {
			continue
		}
		if !q.From.IsZero() && !q.To.IsZero() && !ev.Window.Overlaps(span) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out, nil
}

func (m *MemoryBackend) InsertEvent(ctx context.Context, calendarID string, ev Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, domain.Backend("calendar.insert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	byID, ok := m.events[calendarID]
	if !ok {
		byID = make(map[string]Event)
		m.events[calendarID] = byID
	}
	byID[ev.ID] = ev
	return ev, nil
}

func (m *MemoryBackend) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := ctx.Err(); err != nil {
		return domain.Backend("calendar.delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[calendarID][eventID]; !ok {
		return &domain.NotFoundError{Kind: "reservation", ID: eventID}
	}
	delete(m.events[calendarID], eventID)
	return nil
}
