// Package availability decides whether a court window can be booked and lists
// the free slots of a business day.
package availability

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/padel-booking-bot/internal/calendar"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("padel.internal.availability")

// CourtDirectory is the subset of the court registry the oracle needs.
type CourtDirectory interface {
	Get(id string) (domain.Court, error)
	All() []domain.Court
}

// Oracle evaluates business-hours and conflict rules against live calendar
// data. It never writes.
type Oracle struct {
	courts   CourtDirectory
	calendar calendar.Backend
	hours    domain.BusinessHours
	logger   *logging.Logger
	now      func() time.Time
}

// Option customizes an Oracle.
type Option func(*Oracle)

// WithClock overrides the wall clock used to skip slots already in the past.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOracle builds an oracle over the given courts and calendar.
func NewOracle(courts CourtDirectory, backend calendar.Backend, hours domain.BusinessHours, logger *logging.Logger, opts ...Option) *Oracle {
	if courts == nil {
		panic("availability: court directory cannot be nil")
	}
	if backend == nil {
		panic("availability: calendar backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if hours.Location == nil {
		hours.Location = time.UTC
	}
	if hours.SlotStep <= 0 {
		hours.SlotStep = 30 * time.Minute
	}
	if hours.DefaultDuration <= 0 {
		hours.DefaultDuration = time.Hour
	}
	o := &Oracle{
		courts:   courts,
		calendar: backend,
		hours:    hours,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Hours returns the business hours the oracle enforces.
func (o *Oracle) Hours() domain.BusinessHours {
	return o.hours
}

// CheckAvailability decides whether [start, start+duration) is bookable on the
// court. A conflict is reported in the result, not as an error; errors are
// reserved for unknown courts and backend failures.
func (o *Oracle) CheckAvailability(ctx context.Context, courtID string, start time.Time, duration time.Duration) (domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "availability.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.court_id", courtID),
		attribute.String("padel.start", start.Format(time.RFC3339)),
	)

	if duration <= 0 {
		duration = o.hours.DefaultDuration
	}
	court, err := o.courts.Get(courtID)
	if err != nil {
		return domain.Availability{}, err
	}
	requested := domain.NewWindow(start, duration)

	if !o.withinHours(requested) {
		return domain.Availability{Reason: o.outsideHoursReason()}, nil
	}

	day := timeutil.Today(start, o.hours.Location)
	bookings, err := o.bookingsCovering(ctx, court, day, requested)
	if err != nil {
		span.RecordError(err)
		return domain.Availability{}, err
	}

	if conflict, ok := firstConflict(bookings, requested); ok {
		return domain.Availability{
			Reason:   o.conflictReason(conflict),
			Conflict: &conflict,
		}, nil
	}
	return domain.Availability{Available: true}, nil
}

// CourtsAvailableAt returns, in registry order, the courts free for the whole
// window.
func (o *Oracle) CourtsAvailableAt(ctx context.Context, start time.Time, duration time.Duration) ([]domain.Court, error) {
	var free []domain.Court
	for _, court := range o.courts.All() {
		res, err := o.CheckAvailability(ctx, court.ID, start, duration)
		if err != nil {
			return nil, err
		}
		if res.Available {
			free = append(free, court)
		}
	}
	return free, nil
}

// withinHours compares local wall-clock minutes. The start may equal the
// closing time under ClosingPolicyStart.
func (o *Oracle) withinHours(w domain.Window) bool {
	local := timeutil.ToLocal(w.Start, o.hours.Location)
	startMin := timeutil.MinutesOfDay(local.Time)
	if startMin < timeutil.MinutesOfDay(o.hours.Open) || startMin > timeutil.MinutesOfDay(o.hours.Close) {
		return false
	}
	if o.hours.Closing == domain.ClosingPolicyEnd {
		if w.End.After(o.hours.CloseOn(local.Date)) {
			return false
		}
	}
	return true
}

func (o *Oracle) outsideHoursReason() string {
	return fmt.Sprintf("El horario está fuera del rango de operación (%s - %s)",
		timeutil.FormatClock(o.hours.Open), timeutil.FormatClock(o.hours.Close))
}

func (o *Oracle) conflictReason(w domain.Window) string {
	return fmt.Sprintf("La cancha ya está reservada de %s a %s",
		timeutil.ClockOf(w.Start, o.hours.Location), timeutil.ClockOf(w.End, o.hours.Location))
}

// bookingsCovering fetches the court's events for the local day, widened to
// include the requested window when it spills past midnight.
func (o *Oracle) bookingsCovering(ctx context.Context, court domain.Court, day civil.Date, requested domain.Window) ([]domain.Window, error) {
	from := timeutil.ToAbsolute(civil.DateTime{Date: day}, o.hours.Location)
	to := timeutil.ToAbsolute(civil.DateTime{Date: day.AddDays(1)}, o.hours.Location)
	if requested.Start.Before(from) {
		from = requested.Start
	}
	if requested.End.After(to) {
		to = requested.End
	}

	events, err := o.calendar.ListEvents(ctx, court.CalendarID, calendar.Query{From: from, To: to})
	if err != nil {
		o.logger.Error("failed to list court bookings", "court_id", court.ID, "error", err)
		return nil, domain.Backend("availability.list", err)
	}
	windows := make([]domain.Window, 0, len(events))
	for _, ev := range events {
		windows = append(windows, ev.Window)
	}
	return windows, nil
}

func firstConflict(bookings []domain.Window, requested domain.Window) (domain.Window, bool) {
	for _, b := range bookings {
		if timeutil.Overlaps(b, requested) {
			return b, true
		}
	}
	return domain.Window{}, false
}
