package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Court is a bookable padel court backed by one external calendar.
type Court struct {
	ID         string
	Name       string
	CalendarID string
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds the window starting at start and lasting d.
func NewWindow(start time.Time, d time.Duration) Window {
	return Window{Start: start, End: start.Add(d)}
}

// Overlaps reports whether the two half-open windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Duration is End minus Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Valid reports End > Start.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Reservation is a committed booking on a court's calendar.
type Reservation struct {
	ExternalID   string
	CourtID      string
	CourtName    string
	Window       Window
	CustomerName string
	RequesterID  string
}

// Availability is the oracle's decision for a single window.
type Availability struct {
	Available bool
	Reason    string
	Conflict  *Window
}

// ReservationRequest is the draft accumulated across conversation turns.
// A nil field has not been supplied yet.
type ReservationRequest struct {
	Court           *string `json:"cancha,omitempty"`
	Date            *string `json:"fecha,omitempty"`
	Time            *string `json:"hora,omitempty"`
	DurationMinutes *int    `json:"duracion,omitempty"`
	CustomerName    *string `json:"nombre_cliente,omitempty"`
}

// Empty reports whether no field has been supplied.
func (r ReservationRequest) Empty() bool {
	return r.Court == nil && r.Date == nil && r.Time == nil && r.DurationMinutes == nil && r.CustomerName == nil
}

// ClosingPolicy selects how business hours bound a reservation.
type ClosingPolicy string

const (
	// ClosingPolicyStart only requires the start to fall within opening hours.
	ClosingPolicyStart ClosingPolicy = "start"
	// ClosingPolicyEnd additionally requires the reservation to end by closing.
	ClosingPolicyEnd ClosingPolicy = "end"
)

// BusinessHours is the establishment-wide schedule.
type BusinessHours struct {
	Open            civil.Time
	Close           civil.Time
	DefaultDuration time.Duration
	SlotStep        time.Duration
	Closing         ClosingPolicy
	Location        *time.Location
}

// OpenOn returns the absolute opening instant for the local date.
func (h BusinessHours) OpenOn(d civil.Date) time.Time {
	return civil.DateTime{Date: d, Time: h.Open}.In(h.location())
}

// CloseOn returns the absolute closing instant for the local date.
func (h BusinessHours) CloseOn(d civil.Date) time.Time {
	return civil.DateTime{Date: d, Time: h.Close}.In(h.location())
}

func (h BusinessHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}
