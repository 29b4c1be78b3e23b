package calendar

import (
	"context"
	"time"
)

// timeoutBackend bounds every call on the wrapped backend.
type timeoutBackend struct {
	next    Backend
	timeout time.Duration
}

// WithTimeout wraps b so each call runs under at most d. A non-positive d
// returns b unchanged.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		return b
	}
	return &timeoutBackend{next: b, timeout: d}
}

func (t *timeoutBackend) ListEvents(ctx context.Context, calendarID string, q Query) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ListEvents(ctx, calendarID, q)
}

func (t *timeoutBackend) InsertEvent(ctx context.Context, calendarID string, ev Event) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.InsertEvent(ctx, calendarID, ev)
}

func (t *timeoutBackend) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DeleteEvent(ctx, calendarID, eventID)
}
