// Package calendar is the booking store: every court owns one external
// calendar and each reservation is one event on it.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

const (
	summaryPrefix       = "Reserva Padel - "
	defaultCustomer     = "Cliente"
	propRequesterID     = "requester_id"
	propCourtID         = "court_id"
	propCustomerName    = "customer_name"
	emailReminderMins   = 24 * 60
	popupReminderMins   = 60
	maxEventsPerListing = 250
)

// Event is a calendar entry as the booking engine sees it.
type Event struct {
	ID           string
	Summary      string
	Description  string
	Window       domain.Window
	AllDay       bool
	CourtID      string
	RequesterID  string
	CustomerName string
}

// Query selects events overlapping [From, To). A non-empty RequesterID
// restricts the result to that requester's bookings.
type Query struct {
	From        time.Time
	To          time.Time
	RequesterID string
}

// Backend is the calendar collaborator. Implementations return
// *domain.NotFoundError from DeleteEvent for unknown ids and wrap transport
// failures as *domain.BackendError.
type Backend interface {
	ListEvents(ctx context.Context, calendarID string, q Query) ([]Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev Event) (Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// BookingEvent builds the event recorded for a confirmed reservation.
func BookingEvent(court domain.Court, window domain.Window, customerName, requesterID string) Event {
	name := strings.TrimSpace(customerName)
	if name == "" {
		name = defaultCustomer
	}
	return Event{
		Summary:      summaryPrefix + name,
		Description:  fmt.Sprintf("Reserva realizada a través de WhatsApp Bot\nCliente: %s\nTeléfono: %s", name, requesterID),
		Window:       window,
		CourtID:      court.ID,
		RequesterID:  requesterID,
		CustomerName: name,
	}
}

// CustomerFromSummary recovers the customer name from events created before
// extended properties were recorded.
func CustomerFromSummary(summary string) string {
	if name, ok := strings.CutPrefix(summary, summaryPrefix); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return defaultCustomer
}

// ToReservation converts a stored event into a reservation on court.
func ToReservation(court domain.Court, ev Event) domain.Reservation {
	name := ev.CustomerName
	if name == "" {
		name = CustomerFromSummary(ev.Summary)
	}
	return domain.Reservation{
		ExternalID:   ev.ID,
		CourtID:      court.ID,
		CourtName:    court.Name,
		Window:       ev.Window,
		CustomerName: name,
		RequesterID:  ev.RequesterID,
	}
}
