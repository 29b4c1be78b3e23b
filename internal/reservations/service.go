// Package reservations owns the booking transaction: availability re-check and
// calendar insert under a per-court lock, plus cancellation and lookup.
package reservations

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/padel-booking-bot/internal/calendar"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("padel.internal.reservations")

const defaultLookupHorizon = 60 * 24 * time.Hour

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, courtID string, start time.Time, duration time.Duration) (domain.Availability, error)
}

type courtDirectory interface {
	Get(id string) (domain.Court, error)
	All() []domain.Court
}

// CreateRequest is a fully normalized reservation request.
type CreateRequest struct {
	CourtID      string
	Start        time.Time
	Duration     time.Duration
	CustomerName string
	RequesterID  string
}

// Service commits and cancels reservations.
type Service struct {
	courts    courtDirectory
	oracle    availabilityChecker
	calendar  calendar.Backend
	locker    Locker
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
	horizon   time.Duration
	txTimeout time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithMetrics records transaction outcomes.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the reference time for upcoming-reservation lookups.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLookupHorizon bounds how far ahead FindByRequester searches.
func WithLookupHorizon(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.horizon = d
		}
	}
}

// WithTransactionTimeout bounds the availability re-check and insert once
// the court lock is held.
func WithTransactionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// NewService wires the transaction over its collaborators.
func NewService(courts courtDirectory, oracle availabilityChecker, backend calendar.Backend, logger *logging.Logger, opts ...Option) *Service {
	if courts == nil || oracle == nil || backend == nil {
		panic("reservations: courts, oracle and calendar are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		courts:   courts,
		oracle:   oracle,
		calendar: backend,
		locker:   NewMemoryLocker(),
		logger:   logger,
		now:      time.Now,
		horizon:  defaultLookupHorizon,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create re-checks availability and inserts the booking while holding the
// court's lock. An unavailable window yields *domain.ConflictError.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.court_id", req.CourtID),
		attribute.String("padel.start", req.Start.Format(time.RFC3339)),
	)

	if req.Duration <= 0 {
		return domain.Reservation{}, &domain.ValidationError{Field: "duracion", Value: req.Duration.String(), Reason: "must be positive"}
	}
	court, err := s.courts.Get(req.CourtID)
	if err != nil {
		return domain.Reservation{}, err
	}

	release, err := s.locker.Lock(ctx, "court:"+court.ID)
	if err != nil {
		s.metrics.ObserveReservation("lock_error")
		return domain.Reservation{}, domain.Backend("reservations.lock", err)
	}
	defer release()
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	avail, err := s.oracle.CheckAvailability(ctx, court.ID, req.Start, req.Duration)
	if err != nil {
		s.metrics.ObserveReservation("backend_error")
		span.RecordError(err)
		return domain.Reservation{}, err
	}
	if !avail.Available {
		s.metrics.ObserveReservation("conflict")
		s.logger.Info("reservation rejected", "court_id", court.ID, "requester", req.RequesterID, "reason", avail.Reason)
		return domain.Reservation{}, &domain.ConflictError{Reason: avail.Reason, Conflict: avail.Conflict}
	}

	window := domain.NewWindow(req.Start, req.Duration)
	created, err := s.calendar.InsertEvent(ctx, court.CalendarID, calendar.BookingEvent(court, window, req.CustomerName, req.RequesterID))
	if err != nil {
		s.metrics.ObserveReservation("backend_error")
		span.RecordError(err)
		return domain.Reservation{}, domain.Backend("reservations.insert", err)
	}

	res := calendar.ToReservation(court, created)
	s.metrics.ObserveReservation("created")
	s.logger.Info("reservation created",
		"court_id", court.ID,
		"external_id", res.ExternalID,
		"requester", req.RequesterID,
		"start", req.Start.Format(time.RFC3339),
	)
	return res, nil
}

// Cancel deletes the booking. Unknown ids yield *domain.NotFoundError.
func (s *Service) Cancel(ctx context.Context, courtID, externalID string) error {
	ctx, span := tracer.Start(ctx, "reservations.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.court_id", courtID),
		attribute.String("padel.external_id", externalID),
	)

	court, err := s.courts.Get(courtID)
	if err != nil {
		return err
	}
	if err := s.calendar.DeleteEvent(ctx, court.CalendarID, externalID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		span.RecordError(err)
		return domain.Backend("reservations.cancel", err)
	}
	s.metrics.ObserveReservation("cancelled")
	s.logger.Info("reservation cancelled", "court_id", courtID, "external_id", externalID)
	return nil
}

// FindByRequester returns the requester's current and upcoming reservations
// across all courts, ordered by start.
func (s *Service) FindByRequester(ctx context.Context, requesterID string) ([]domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.find_by_requester")
	defer span.End()

	if strings.TrimSpace(requesterID) == "" {
		return nil, nil
	}
	now := s.now()
	q := calendar.Query{From: now, To: now.Add(s.horizon), RequesterID: requesterID}

	var out []domain.Reservation
	for _, court := range s.courts.All() {
		events, err := s.calendar.ListEvents(ctx, court.CalendarID, q)
		if err != nil {
			span.RecordError(err)
			return nil, domain.Backend("reservations.lookup", err)
		}
		for _, ev := range events {
			if ev.RequesterID != requesterID {
				continue
			}
			out = append(out, calendar.ToReservation(court, ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out, nil
}

// Upcoming returns every bot-made reservation starting in (from, to] across
// all courts, ordered by start. Events without a requester were not booked
// through the bot and are skipped.
func (s *Service) Upcoming(ctx context.Context, from, to time.Time) ([]domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.upcoming")
	defer span.End()

	var out []domain.Reservation
	for _, court := range s.courts.All() {
		events, err := s.calendar.ListEvents(ctx, court.CalendarID, calendar.Query{From: from, To: to.Add(time.Nanosecond)})
		if err != nil {
			span.RecordError(err)
			return nil, domain.Backend("reservations.upcoming", err)
		}
		for _, ev := range events {
			if ev.RequesterID == "" || ev.AllDay || !ev.Window.Start.After(from) || ev.Window.Start.After(to) {
				continue
			}
			out = append(out, calendar.ToReservation(court, ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out, nil
}

// Filter narrows a cancellation to a court and/or local date. Zero values
// match everything.
type Filter struct {
	CourtID  string
	Date     civil.Date
	Location *time.Location
}

// Selection is the outcome of matching a cancellation request.
type Selection struct {
	Match      *domain.Reservation
	Candidates []domain.Reservation
}

// None reports that nothing matched.
func (s Selection) None() bool {
	return s.Match == nil && len(s.Candidates) == 0
}

// SelectForCancellation applies the filter: exactly one match proceeds,
// several are returned for disambiguation, zero means none found.
func SelectForCancellation(list []domain.Reservation, f Filter) Selection {
	var matched []domain.Reservation
	for _, r := range list {
		if f.CourtID != "" && r.CourtID != f.CourtID {
			continue
		}
		if f.Date.IsValid() && timeutil.ToLocal(r.Window.Start, f.Location).Date != f.Date {
			continue
		}
		matched = append(matched, r)
	}
	if len(matched) == 1 {
		return Selection{Match: &matched[0]}
	}
	return Selection{Candidates: matched}
}
