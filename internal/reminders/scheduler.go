// Package reminders sends WhatsApp reminders ahead of upcoming reservations:
// one the day before and one a few hours before play.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

// Kind names a reminder window.
type Kind string

const (
	KindDayBefore  Kind = "24h"
	KindHoursAhead Kind = "3h"
)

const (
	dayBeforeLead   = 24 * time.Hour
	hoursAheadLead  = 3 * time.Hour
	defaultInterval = 5 * time.Minute
)

type upcomingLister interface {
	Upcoming(ctx context.Context, from, to time.Time) ([]domain.Reservation, error)
}

// Scheduler periodically scans upcoming reservations and reminds each
// requester once per window.
type Scheduler struct {
	reservations upcomingLister
	messenger    conversation.ReplyMessenger
	marks        Marks
	location     *time.Location
	interval     time.Duration
	now          func() time.Time
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger

	wg sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithMarks(m Marks) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.marks = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler builds a scheduler that formats times in loc.
func NewScheduler(reservations upcomingLister, messenger conversation.ReplyMessenger, loc *time.Location, logger *logging.Logger, opts ...Option) *Scheduler {
	if reservations == nil || messenger == nil {
		panic("reminders: reservations and messenger are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		reservations: reservations,
		messenger:    messenger,
		marks:        NewMemoryMarks(),
		location:     loc,
		interval:     defaultInterval,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce sends every reminder due now and returns how many went out.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	upcoming, err := s.reservations.Upcoming(ctx, now, now.Add(dayBeforeLead))
	if err != nil {
		return 0, fmt.Errorf("reminders: list upcoming: %w", err)
	}

	sent := 0
	for _, res := range upcoming {
		kind := kindFor(res.Window.Start, now)
		key := res.ExternalID + ":" + string(kind)

		fresh, err := s.marks.Mark(ctx, key)
		if err != nil {
			s.logger.Error("reminder mark failed", "external_id", res.ExternalID, "error", err)
			continue
		}
		if !fresh {
			continue
		}

		reply := conversation.OutboundReply{To: res.RequesterID, Body: message(kind, res, s.location)}
		if err := s.messenger.SendReply(ctx, reply); err != nil {
			s.logger.Error("reminder send failed", "external_id", res.ExternalID, "kind", kind, "error", err)
			if err := s.marks.Unmark(ctx, key); err != nil {
				s.logger.Warn("reminder unmark failed", "external_id", res.ExternalID, "error", err)
			}
			continue
		}
		s.metrics.ObserveReminder(string(kind))
		s.logger.Info("reminder sent", "external_id", res.ExternalID, "kind", kind, "requester", res.RequesterID)
		sent++
	}
	return sent, nil
}

// Start runs RunOnce immediately and then on every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Wait blocks until the scheduler goroutine exits.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("reminder scan failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.logger.Debug("reminder scan finished", "sent", n)
	}
}

// kindFor assumes start is within the next 24 hours.
func kindFor(start, now time.Time) Kind {
	if start.Sub(now) <= hoursAheadLead {
		return KindHoursAhead
	}
	return KindDayBefore
}

func message(kind Kind, res domain.Reservation, loc *time.Location) string {
	start := res.Window.Start.In(loc)
	details := fmt.Sprintf("📅 Fecha: %s\n🕐 Hora: %s\n🏸 Cancha: %s\n⏱️ Duración: %d minutos",
		start.Format("02/01/2006"), start.Format("15:04"), res.CourtName, int(res.Window.Duration().Minutes()))

	switch kind {
	case KindHoursAhead:
		return "⏰ ¡Tu partido es en menos de 3 horas!\n\n" + details + "\n\n¡Nos vemos en la cancha! 🎾"
	default:
		return fmt.Sprintf("⏰ Recordatorio de tu reserva, %s\n\n", res.CustomerName) + details +
			"\n\nSi no puedes asistir, escríbenos \"cancelar\" para liberar la cancha. 🎾"
	}
}
