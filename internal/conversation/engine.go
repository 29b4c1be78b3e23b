package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/nlu"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/internal/reservations"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

const defaultCustomerName = "Cliente"

// OutcomeKind classifies what a turn did.
type OutcomeKind string

const (
	OutcomeNeedMoreInfo   OutcomeKind = "need_more_info"
	OutcomeConfirmed      OutcomeKind = "confirmed"
	OutcomeConflict       OutcomeKind = "conflict"
	OutcomeCancelled      OutcomeKind = "cancelled"
	OutcomeCancelChoices  OutcomeKind = "cancel_choices"
	OutcomeNoReservations OutcomeKind = "no_reservations"
	OutcomeSchedule       OutcomeKind = "schedule"
	OutcomeCourtList      OutcomeKind = "court_list"
	OutcomeAnswer         OutcomeKind = "answer"
	OutcomeFailed         OutcomeKind = "failed"
)

// Outcome is the result of one turn. Reply is always set.
type Outcome struct {
	Kind         OutcomeKind
	Intent       nlu.Intent
	Reply        string
	Phase        Phase
	Missing      []string
	Reservation  *domain.Reservation
	Alternatives []string
	FreeCourts   []domain.Court
	Candidates   []domain.Reservation
}

type courtResolver interface {
	Resolve(nameOrID string) domain.Court
	Lookup(nameOrID string) (domain.Court, bool)
	All() []domain.Court
}

type availabilityFinder interface {
	FindAvailableSlots(ctx context.Context, courtID string, date civil.Date) ([]string, error)
	CourtsAvailableAt(ctx context.Context, start time.Time, duration time.Duration) ([]domain.Court, error)
}

type reservationService interface {
	Create(ctx context.Context, req reservations.CreateRequest) (domain.Reservation, error)
	Cancel(ctx context.Context, courtID, externalID string) error
	FindByRequester(ctx context.Context, requesterID string) ([]domain.Reservation, error)
}

// Engine runs conversation turns.
type Engine struct {
	store         *Store
	extractor     nlu.Extractor
	courts        courtResolver
	availability  availabilityFinder
	reservations  reservationService
	hours         domain.BusinessHours
	establishment string
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
	now           func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithEngineMetrics(m *metrics.BookingMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEstablishment names the venue in greetings.
func WithEstablishment(name string) EngineOption {
	return func(e *Engine) {
		if strings.TrimSpace(name) != "" {
			e.establishment = name
		}
	}
}

func NewEngine(store *Store, extractor nlu.Extractor, courts courtResolver, availability availabilityFinder, reservations reservationService, hours domain.BusinessHours, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil || extractor == nil || courts == nil || availability == nil || reservations == nil {
		panic("conversation: store, extractor, courts, availability and reservations are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if hours.Location == nil {
		hours.Location = time.UTC
	}
	if hours.DefaultDuration <= 0 {
		hours.DefaultDuration = time.Hour
	}
	e := &Engine{
		store:         store,
		extractor:     extractor,
		courts:        courts,
		availability:  availability,
		reservations:  reservations,
		hours:         hours,
		establishment: "Centro de Padel",
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn processes one inbound message. The returned Outcome always
// carries a reply; a non-nil error means the reply is FallbackMessage and the
// requester's state was left untouched.
func (e *Engine) HandleTurn(ctx context.Context, requester, text string) (Outcome, error) {
	var out Outcome
	err := e.store.Do(ctx, requester, func(st *State) error {
		res, err := e.extractor.Extract(ctx, nlu.Input{
			Text:    text,
			Context: e.situation(ctx),
			History: st.History,
			Prior:   st.Request,
		})
		if err != nil {
			return err
		}

		st.remember(nlu.ChatRoleUser, text)

		// Cancel and query turns read their fields without touching the
		// booking draft.
		switch res.Intent {
		case nlu.IntentReserve:
			st.apply(res.Fields)
			out, err = e.reserve(ctx, st)
		case nlu.IntentCancel:
			out, err = e.cancel(ctx, st, res.Fields)
		case nlu.IntentSchedule:
			out, err = e.schedule(ctx, Merge(st.Request, res.Fields))
		case nlu.IntentCourts:
			out, err = e.freeCourts(ctx, Merge(st.Request, res.Fields))
		default:
			st.apply(res.Fields)
			out = Outcome{Kind: OutcomeAnswer, Reply: res.Reply}
			if strings.TrimSpace(out.Reply) == "" {
				out.Reply = greetingMessage(e.establishment)
			}
		}
		if err != nil {
			return err
		}
		out.Intent = res.Intent
		if out.Phase == "" {
			out.Phase = st.Phase
			st.remember(nlu.ChatRoleAssistant, out.Reply)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("conversation turn failed", "requester", requester, "error", err)
		e.metrics.ObserveTurn("unknown", string(OutcomeFailed))
		return Outcome{Kind: OutcomeFailed, Reply: FallbackMessage}, err
	}
	e.metrics.ObserveTurn(string(out.Intent), string(out.Kind))
	return out, nil
}

func (e *Engine) reserve(ctx context.Context, st *State) (Outcome, error) {
	if missing := Missing(st.Request); len(missing) > 0 {
		supplied := !st.Request.Empty()
		return Outcome{
			Kind:    OutcomeNeedMoreInfo,
			Reply:   askMissing(missing, supplied, e.courts.All()),
			Missing: missing,
		}, nil
	}

	court := e.courts.Resolve(courtReference(*st.Request.Court))
	now := e.now()
	date := e.resolveDate(st.Request.Date, now)
	clock := e.resolveTime(st.Request.Time, now)
	duration := e.resolveDuration(st.Request.DurationMinutes)
	start := timeutil.ToAbsolute(civil.DateTime{Date: date, Time: clock}, e.hours.Location)
	name := defaultCustomerName
	if st.Request.CustomerName != nil && strings.TrimSpace(*st.Request.CustomerName) != "" {
		name = strings.TrimSpace(*st.Request.CustomerName)
	}

	res, err := e.reservations.Create(ctx, reservations.CreateRequest{
		CourtID:      court.ID,
		Start:        start,
		Duration:     duration,
		CustomerName: name,
		RequesterID:  st.Requester,
	})
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		return e.conflictOutcome(ctx, conflict, court, date, start, duration), nil
	case err != nil:
		return Outcome{}, err
	}

	st.clear()
	return Outcome{
		Kind:        OutcomeConfirmed,
		Reply:       confirmationMessage(res, e.hours.Location),
		Phase:       PhaseCompleted,
		Reservation: &res,
	}, nil
}

// conflictOutcome suggests up to eight free slots on the same court and day,
// or else the courts free at the requested window. Lookup failures only cost
// the suggestions.
func (e *Engine) conflictOutcome(ctx context.Context, conflict *domain.ConflictError, court domain.Court, date civil.Date, start time.Time, duration time.Duration) Outcome {
	out := Outcome{Kind: OutcomeConflict}

	slots, err := e.availability.FindAvailableSlots(ctx, court.ID, date)
	if err != nil {
		e.logger.Warn("alternative slots unavailable", "court_id", court.ID, "error", err)
	}
	if len(slots) > maxAlternativeSlots {
		slots = slots[:maxAlternativeSlots]
	}
	out.Alternatives = slots

	if len(slots) == 0 {
		free, err := e.availability.CourtsAvailableAt(ctx, start, duration)
		if err != nil {
			e.logger.Warn("alternative courts unavailable", "error", err)
		}
		out.FreeCourts = free
	}

	out.Reply = conflictMessage(conflict.Reason, court, date, out.Alternatives, out.FreeCourts)
	return out
}

func (e *Engine) cancel(ctx context.Context, st *State, turn domain.ReservationRequest) (Outcome, error) {
	list, err := e.reservations.FindByRequester(ctx, st.Requester)
	if err != nil {
		return Outcome{}, err
	}
	if len(list) == 0 {
		return Outcome{Kind: OutcomeNoReservations, Reply: noReservationsMessage(false)}, nil
	}

	filter := reservations.Filter{Location: e.hours.Location}
	if turn.Court != nil {
		if c, ok := e.courts.Lookup(courtReference(*turn.Court)); ok {
			filter.CourtID = c.ID
		}
	}
	if turn.Date != nil {
		if d, err := ParseDate(*turn.Date, timeutil.Today(e.now(), e.hours.Location)); err == nil {
			filter.Date = d
		}
	}
	filtered := filter.CourtID != "" || filter.Date.IsValid()

	sel := reservations.SelectForCancellation(list, filter)
	switch {
	case sel.None():
		return Outcome{Kind: OutcomeNoReservations, Reply: noReservationsMessage(true)}, nil
	case sel.Match == nil:
		return Outcome{
			Kind:       OutcomeCancelChoices,
			Reply:      cancelChoicesMessage(sel.Candidates, filtered, e.hours.Location),
			Candidates: sel.Candidates,
		}, nil
	}

	target := *sel.Match
	if err := e.reservations.Cancel(ctx, target.CourtID, target.ExternalID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Outcome{Kind: OutcomeNoReservations, Reply: noReservationsMessage(filtered)}, nil
		}
		return Outcome{}, err
	}

	st.clear()
	return Outcome{
		Kind:        OutcomeCancelled,
		Phase:       PhaseEmpty,
		Reply:       cancelledMessage(target, e.hours.Location),
		Reservation: &target,
	}, nil
}

func (e *Engine) schedule(ctx context.Context, req domain.ReservationRequest) (Outcome, error) {
	now := e.now()
	today := timeutil.Today(now, e.hours.Location)

	court := e.courts.Resolve("")
	if req.Court != nil {
		court = e.courts.Resolve(courtReference(*req.Court))
	}
	date := today
	if req.Date != nil {
		date = e.resolveDate(req.Date, now)
	}

	slots, err := e.availability.FindAvailableSlots(ctx, court.ID, date)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:         OutcomeSchedule,
		Reply:        scheduleMessage(court, relativeDate(date, today), slots, e.hours),
		Alternatives: slots,
	}, nil
}

func (e *Engine) freeCourts(ctx context.Context, req domain.ReservationRequest) (Outcome, error) {
	now := e.now()
	local := timeutil.ToLocal(now, e.hours.Location)
	dt := civil.DateTime{Date: local.Date, Time: civil.Time{Hour: local.Time.Hour, Minute: local.Time.Minute}}
	if req.Date != nil {
		dt.Date = e.resolveDate(req.Date, now)
	}
	if req.Time != nil {
		dt.Time = e.resolveTime(req.Time, now)
	}

	free, err := e.availability.CourtsAvailableAt(ctx, timeutil.ToAbsolute(dt, e.hours.Location), e.resolveDuration(req.DurationMinutes))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCourtList, Reply: courtListMessage(free), FreeCourts: free}, nil
}

// situation summarizes the venue right now for the extractor. It is best
// effort; a calendar failure only drops the court line.
func (e *Engine) situation(ctx context.Context) string {
	now := e.now()
	local := timeutil.ToLocal(now, e.hours.Location)
	lines := []string{fmt.Sprintf("Fecha actual: %s (%s)", local.Date, shortDate(local.Date))}

	free, err := e.availability.CourtsAvailableAt(ctx, now.Truncate(time.Minute), e.hours.DefaultDuration)
	switch {
	case err != nil:
		e.logger.Debug("court availability context skipped", "error", err)
	case len(free) == 0:
		lines = append(lines, "Canchas disponibles en este momento: ninguna")
	default:
		lines = append(lines, "Canchas disponibles en este momento: "+strings.Join(courtNames(free), ", "))
	}
	return strings.Join(lines, "\n")
}

// resolveDate falls back to the next day when the value cannot be read.
func (e *Engine) resolveDate(raw *string, now time.Time) civil.Date {
	today := timeutil.Today(now, e.hours.Location)
	if raw == nil {
		return today.AddDays(1)
	}
	d, err := ParseDate(*raw, today)
	if err != nil {
		e.logger.Warn("date fallback applied", "value", *raw, "error", err)
		return today.AddDays(1)
	}
	return d
}

// resolveTime falls back to the top of the next hour.
func (e *Engine) resolveTime(raw *string, now time.Time) civil.Time {
	if raw != nil {
		t, err := ParseTime(*raw)
		if err == nil {
			return t
		}
		e.logger.Warn("time fallback applied", "value", *raw, "error", err)
	}
	next := timeutil.ToLocal(now, e.hours.Location).Time.Hour + 1
	return civil.Time{Hour: next % 24}
}

// resolveDuration falls back to the default outside 30 to 240 minutes.
func (e *Engine) resolveDuration(minutes *int) time.Duration {
	if minutes == nil {
		return e.hours.DefaultDuration
	}
	if err := ValidDuration(*minutes); err != nil {
		e.logger.Warn("duration fallback applied", "error", err)
		return e.hours.DefaultDuration
	}
	return time.Duration(*minutes) * time.Minute
}
