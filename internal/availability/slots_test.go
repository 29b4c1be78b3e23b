package availability

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/padel-booking-bot/internal/courts"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

func TestFindAvailableSlotsSkipsBookedWindows(t *testing.T) {
	f := newFixture(t, domain.ClosingPolicyStart)
	f.book(t, "cal-1", at(10, 0), time.Hour)

	slots, err := f.oracle.FindAvailableSlots(context.Background(), "cancha_1", testDay)
	require.NoError(t, err)

	assert.Equal(t, "08:00", slots[0])
	assert.Equal(t, "21:00", slots[len(slots)-1])
	for _, taken := range []string{"09:30", "10:00", "10:30"} {
		assert.NotContains(t, slots, taken)
	}
	assert.Contains(t, slots, "09:00")
	assert.Contains(t, slots, "11:00")
	assert.Len(t, slots, 27-3)
	assert.True(t, slices.IsSorted(slots))
}

func TestFindAvailableSlotsIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.ClosingPolicyStart)
	f.book(t, "cal-1", at(13, 0), 90*time.Minute)
	f.book(t, "cal-1", at(20, 0), time.Hour)

	first, err := f.oracle.FindAvailableSlots(context.Background(), "cancha_1", testDay)
	require.NoError(t, err)
	second, err := f.oracle.FindAvailableSlots(context.Background(), "cancha_1", testDay)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindAvailableSlotsOmitsPastStartsToday(t *testing.T) {
	reg, err := courts.NewRegistry([]domain.Court{{ID: "cancha_1", CalendarID: "cal-1"}}, nil)
	require.NoError(t, err)
	f := newFixture(t, domain.ClosingPolicyStart)
	late := NewOracle(reg, f.backend, testHours(domain.ClosingPolicyStart), logging.Default(),
		WithClock(func() time.Time { return at(19, 10) }))

	slots, err := late.FindAvailableSlots(context.Background(), "cancha_1", testDay)
	require.NoError(t, err)
	assert.Equal(t, []string{"19:30", "20:00", "20:30", "21:00"}, slots)
}

func TestFreeWindowsUseDefaultDuration(t *testing.T) {
	f := newFixture(t, domain.ClosingPolicyStart)
	windows, err := f.oracle.FreeWindows(context.Background(), "cancha_2", testDay)
	require.NoError(t, err)
	for _, w := range windows {
		assert.Equal(t, time.Hour, w.Duration())
		assert.False(t, w.End.After(at(22, 0)))
	}
}

func TestFindAvailableSlotsUnknownCourt(t *testing.T) {
	f := newFixture(t, domain.ClosingPolicyStart)
	_, err := f.oracle.FindAvailableSlots(context.Background(), "cancha_7", testDay)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
