package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deadlineRecorder struct {
	Backend
	deadline time.Time
	ok       bool
}

func (d *deadlineRecorder) ListEvents(ctx context.Context, calendarID string, q Query) ([]Event, error) {
	d.deadline, d.ok = ctx.Deadline()
	return nil, nil
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	rec := &deadlineRecorder{Backend: NewMemoryBackend()}
	b := WithTimeout(rec, 50*time.Millisecond)

	before := time.Now()
	_, err := b.ListEvents(context.Background(), "cal-1", Query{})
	require.NoError(t, err)
	require.True(t, rec.ok)
	assert.WithinDuration(t, before.Add(50*time.Millisecond), rec.deadline, 40*time.Millisecond)
}

func TestWithTimeoutDisabled(t *testing.T) {
	mem := NewMemoryBackend()
	assert.Same(t, Backend(mem), WithTimeout(mem, 0))
}
