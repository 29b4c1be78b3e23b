package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var testNow = time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

type stubLister struct {
	list []domain.Reservation
	err  error
}

func (s stubLister) Upcoming(ctx context.Context, from, to time.Time) ([]domain.Reservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Reservation
	for _, r := range s.list {
		if r.Window.Start.After(from) && !r.Window.Start.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []conversation.OutboundReply
	fail    bool
}

func (m *recordingMessenger) SendReply(ctx context.Context, r conversation.OutboundReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("twilio down")
	}
	m.replies = append(m.replies, r)
	return nil
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

func booking(id string, in time.Duration) domain.Reservation {
	return domain.Reservation{
		ExternalID:   id,
		CourtID:      "cancha_1",
		CourtName:    "Cancha 1",
		Window:       domain.NewWindow(testNow.Add(in), time.Hour),
		CustomerName: "Ana",
		RequesterID:  "+52155" + id,
	}
}

func TestRunOnceSendsEachWindowOnce(t *testing.T) {
	lister := stubLister{list: []domain.Reservation{
		booking("soon", 2*time.Hour),
		booking("tomorrow", 20*time.Hour),
		booking("later", 30*time.Hour),
	}}
	messenger := &recordingMessenger{}
	s := NewScheduler(lister, messenger, time.UTC, logging.Default(), WithClock(func() time.Time { return testNow }))

	sent, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, messenger.replies, 2)
	assert.Equal(t, "+52155soon", messenger.replies[0].To)
	assert.Contains(t, messenger.replies[0].Body, "menos de 3 horas")
	assert.Contains(t, messenger.replies[1].Body, "Recordatorio de tu reserva, Ana")
	assert.Contains(t, messenger.replies[1].Body, "🕐 Hora: 09:00")

	sent, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "second scan must not resend")
}

func TestRunOnceSendsShortReminderAfterDayBefore(t *testing.T) {
	now := testNow
	lister := stubLister{list: []domain.Reservation{booking("match", 5*time.Hour)}}
	messenger := &recordingMessenger{}
	s := NewScheduler(lister, messenger, time.UTC, logging.Default(), WithClock(func() time.Time { return now }))

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	now = testNow.Add(3 * time.Hour)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, messenger.replies, 2)
	assert.Contains(t, messenger.replies[1].Body, "menos de 3 horas")
}

func TestRunOnceRetriesAfterSendFailure(t *testing.T) {
	lister := stubLister{list: []domain.Reservation{booking("x", 4*time.Hour)}}
	messenger := &recordingMessenger{fail: true}
	s := NewScheduler(lister, messenger, time.UTC, logging.Default(), WithClock(func() time.Time { return testNow }))

	sent, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)

	messenger.fail = false
	sent, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRunOnceSurfacesListErrors(t *testing.T) {
	s := NewScheduler(stubLister{err: errors.New("calendar down")}, &recordingMessenger{}, time.UTC, logging.Default())
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRedisMarksDedupeAcrossSchedulers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lister := stubLister{list: []domain.Reservation{booking("shared", 10*time.Hour)}}
	messenger := &recordingMessenger{}
	clock := WithClock(func() time.Time { return testNow })
	a := NewScheduler(lister, messenger, time.UTC, logging.Default(), clock, WithMarks(NewRedisMarks(client)))
	b := NewScheduler(lister, messenger, time.UTC, logging.Default(), clock, WithMarks(NewRedisMarks(client)))

	_, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = b.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, messenger.count())
	assert.True(t, mr.Exists("padel:reminder:shared:24h"))
	ttl := mr.TTL("padel:reminder:shared:24h")
	assert.Equal(t, 48*time.Hour, ttl)
}

func TestRedisMarksUnmark(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	marks := NewRedisMarks(client)
	ctx := context.Background()

	fresh, err := marks.Mark(ctx, "k")
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, err = marks.Mark(ctx, "k")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, marks.Unmark(ctx, "k"))
	fresh, err = marks.Mark(ctx, "k")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryMarksExpire(t *testing.T) {
	marks := NewMemoryMarks()
	now := testNow
	marks.now = func() time.Time { return now }
	ctx := context.Background()

	fresh, _ := marks.Mark(ctx, "k")
	assert.True(t, fresh)
	now = now.Add(49 * time.Hour)
	fresh, _ = marks.Mark(ctx, "k")
	assert.True(t, fresh, "expired mark should be reusable")
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	lister := stubLister{list: []domain.Reservation{booking("x", time.Hour)}}
	messenger := &recordingMessenger{}
	s := NewScheduler(lister, messenger, time.UTC, logging.Default(),
		WithClock(func() time.Time { return testNow }), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return messenger.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}
