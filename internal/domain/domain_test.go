package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	booked := NewWindow(base, time.Hour)

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"same window", NewWindow(base, time.Hour), true},
		{"starts inside", NewWindow(base.Add(30*time.Minute), time.Hour), true},
		{"ends inside", NewWindow(base.Add(-30*time.Minute), time.Hour), true},
		{"contains", NewWindow(base.Add(-time.Hour), 3*time.Hour), true},
		{"touches end", NewWindow(base.Add(time.Hour), time.Hour), false},
		{"touches start", NewWindow(base.Add(-time.Hour), time.Hour), false},
		{"disjoint", NewWindow(base.Add(5*time.Hour), time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, booked.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(booked), "overlap must be symmetric")
		})
	}
}

func TestWindowComparesInstantsAcrossZones(t *testing.T) {
	mx := time.FixedZone("CST", -6*3600)
	local := NewWindow(time.Date(2025, 3, 10, 10, 0, 0, 0, mx), time.Hour)
	utc := NewWindow(time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC), time.Hour)
	assert.True(t, local.Overlaps(utc))
	assert.Equal(t, time.Hour, local.Duration())
	assert.True(t, local.Valid())
	assert.False(t, Window{Start: local.End, End: local.Start}.Valid())
}

func TestErrorTaxonomy(t *testing.T) {
	conflict := fmt.Errorf("create: %w", &ConflictError{Reason: "La cancha ya está reservada de 10:00 a 11:00"})
	assert.ErrorIs(t, conflict, ErrConflict)
	var ce *ConflictError
	assert.True(t, errors.As(conflict, &ce))
	assert.Contains(t, ce.Error(), "10:00 a 11:00")

	cause := errors.New("googleapi: 503")
	be := Backend("calendar.list", cause)
	assert.ErrorIs(t, be, ErrBackend)
	assert.ErrorIs(t, be, cause)
	assert.Nil(t, Backend("noop", nil))

	nf := &NotFoundError{Kind: "reservation", ID: "evt_1"}
	assert.Same(t, error(nf), Backend("calendar.delete", nf), "classified errors pass through")
	assert.ErrorIs(t, nf, ErrNotFound)

	cfg := &ConfigurationError{Problems: []string{"TWILIO_ACCOUNT_SID is required", "GEMINI_API_KEY is required"}}
	assert.ErrorIs(t, cfg, ErrConfiguration)
	assert.Contains(t, cfg.Error(), "TWILIO_ACCOUNT_SID is required; GEMINI_API_KEY")

	assert.ErrorIs(t, &ValidationError{Field: "fecha", Value: "ayer", Reason: "unknown"}, ErrValidation)
}

func TestReservationRequestEmpty(t *testing.T) {
	assert.True(t, ReservationRequest{}.Empty())
	date := "mañana"
	assert.False(t, ReservationRequest{Date: &date}.Empty())
}
