package timeutil

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAbsoluteUsesZoneRules(t *testing.T) {
	mx := LoadLocation("America/Mexico_City")
	got := ToAbsolute(civil.DateTime{
		Date: civil.Date{Year: 2025, Month: time.March, Day: 10},
		Time: civil.Time{Hour: 10},
	}, mx)
	assert.Equal(t, time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC), got.UTC())

	ny := LoadLocation("America/New_York")
	winter := ToAbsolute(civil.DateTime{Date: civil.Date{Year: 2025, Month: time.March, Day: 8}, Time: civil.Time{Hour: 10}}, ny)
	summer := ToAbsolute(civil.DateTime{Date: civil.Date{Year: 2025, Month: time.March, Day: 10}, Time: civil.Time{Hour: 10}}, ny)
	assert.Equal(t, 15, winter.UTC().Hour(), "EST is UTC-5")
	assert.Equal(t, 14, summer.UTC().Hour(), "EDT is UTC-4")
}

func TestToLocalRoundTrip(t *testing.T) {
	loc := LoadLocation("America/Mexico_City")
	dt := civil.DateTime{Date: civil.Date{Year: 2025, Month: time.July, Day: 1}, Time: civil.Time{Hour: 21, Minute: 30}}
	assert.Equal(t, dt, ToLocal(ToAbsolute(dt, loc), loc))
	assert.Equal(t, "21:30", ClockOf(ToAbsolute(dt, loc), loc))
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Mars/Olympus_Mons"))
}

func TestEnumerateSlotsBusinessDay(t *testing.T) {
	loc := LoadLocation("America/Mexico_City")
	open := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	closing := time.Date(2025, 3, 10, 22, 0, 0, 0, loc)

	var slots []string
	for w := range EnumerateSlots(open, closing, 30*time.Minute, time.Hour) {
		assert.Equal(t, time.Hour, w.Duration())
		assert.False(t, w.End.After(closing), "slot %v crosses closing", w)
		slots = append(slots, ClockOf(w.Start, loc))
	}
	// 08:00 through 21:00 in half-hour steps.
	require.Len(t, slots, 27)
	assert.Equal(t, "08:00", slots[0])
	assert.Equal(t, "21:00", slots[len(slots)-1])
	assert.LessOrEqual(t, len(slots), int(closing.Sub(open)/(30*time.Minute)))
}

func TestEnumerateSlotsIsRestartableAndStoppable(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	seq := EnumerateSlots(start, start.Add(3*time.Hour), time.Hour, time.Hour)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 3, count())
	assert.Equal(t, 3, count())

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestEnumerateSlotsDegenerateInputs(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	for range EnumerateSlots(start, start.Add(30*time.Minute), 30*time.Minute, time.Hour) {
		t.Fatal("no slot fits")
	}
	for range EnumerateSlots(start, start.Add(time.Hour), 0, time.Hour) {
		t.Fatal("zero step must not loop")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    civil.Time
		wantErr bool
	}{
		{in: "08:00", want: civil.Time{Hour: 8}},
		{in: " 22:30 ", want: civil.Time{Hour: 22, Minute: 30}},
		{in: "7:05", want: civil.Time{Hour: 7, Minute: 5}},
		{in: "24:00", wantErr: true},
		{in: "10:7", wantErr: true},
		{in: "1000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want.Hour*60+tt.want.Minute, MinutesOfDay(got))
	}
	assert.Equal(t, "08:05", FormatClock(civil.Time{Hour: 8, Minute: 5}))
}
