package availability

import (
	"context"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
)

// FindAvailableSlots lists the local "HH:MM" starts of every free slot of the
// default duration on date, in chronological order. The day's bookings are
// fetched once and every candidate is tested against that snapshot.
func (o *Oracle) FindAvailableSlots(ctx context.Context, courtID string, date civil.Date) ([]string, error) {
	windows, err := o.FreeWindows(ctx, courtID, date)
	if err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(windows))
	for _, w := range windows {
		slots = append(slots, timeutil.ClockOf(w.Start, o.hours.Location))
	}
	return slots, nil
}

// FreeWindows is FindAvailableSlots returning absolute windows.
func (o *Oracle) FreeWindows(ctx context.Context, courtID string, date civil.Date) ([]domain.Window, error) {
	ctx, span := tracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.court_id", courtID),
		attribute.String("padel.date", date.String()),
	)

	court, err := o.courts.Get(courtID)
	if err != nil {
		return nil, err
	}
	open := o.hours.OpenOn(date)
	closing := o.hours.CloseOn(date)
	bookings, err := o.bookingsCovering(ctx, court, date, domain.Window{Start: open, End: closing})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := o.now()
	var free []domain.Window
	for slot := range timeutil.EnumerateSlots(open, closing, o.hours.SlotStep, o.hours.DefaultDuration) {
		if slot.Start.Before(now) {
			continue
		}
		if _, taken := firstConflict(bookings, slot); taken {
			continue
		}
		free = append(free, slot)
	}
	span.SetAttributes(attribute.Int("padel.slots.free", len(free)))
	return free, nil
}
