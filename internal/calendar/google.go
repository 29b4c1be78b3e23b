package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("padel.internal.calendar")

// GoogleConfig carries the OAuth client and the long-lived refresh token
// issued for the establishment's Google account.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

// GoogleBackend stores reservations as Google Calendar events.
type GoogleBackend struct {
	svc    *gcal.Service
	loc    *time.Location
	logger *logging.Logger
}

var _ Backend = (*GoogleBackend)(nil)

// NewGoogleBackend authenticates with the refresh-token flow. Extra client
// options are appended last so tests can redirect the endpoint.
func NewGoogleBackend(ctx context.Context, cfg GoogleConfig, loc *time.Location, logger *logging.Logger, opts ...option.ClientOption) (*GoogleBackend, error) {
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, errors.New("calendar: google refresh token is required")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	clientOpts := append([]option.ClientOption{option.WithTokenSource(tokens)}, opts...)
	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: failed to create google service: %w", err)
	}
	return NewGoogleBackendWithService(svc, loc, logger), nil
}

// NewGoogleBackendWithService wraps an already configured service.
func NewGoogleBackendWithService(svc *gcal.Service, loc *time.Location, logger *logging.Logger) *GoogleBackend {
	if svc == nil {
		panic("calendar: google service cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleBackend{svc: svc, loc: loc, logger: logger}
}

func (g *GoogleBackend) ListEvents(ctx context.Context, calendarID string, q Query) ([]Event, error) {
	ctx, span := tracer.Start(ctx, "calendar.google.list")
	defer span.End()
	span.SetAttributes(attribute.String("padel.calendar_id", calendarID))

	call := g.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(maxEventsPerListing)
	if !q.From.IsZero() {
		call = call.TimeMin(q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		call = call.TimeMax(q.To.Format(time.RFC3339))
	}
	if q.RequesterID != "" {
		call = call.PrivateExtendedProperty(propRequesterID + "=" + q.RequesterID)
	}

	var out []Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, ok := g.fromGoogle(item)
			if !ok {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.Backend("calendar.list", err)
	}
	span.SetAttributes(attribute.Int("padel.calendar.events", len(out)))
	return out, nil
}

func (g *GoogleBackend) InsertEvent(ctx context.Context, calendarID string, ev Event) (Event, error) {
	ctx, span := tracer.Start(ctx, "calendar.google.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.calendar_id", calendarID),
		attribute.String("padel.court_id", ev.CourtID),
	)

	created, err := g.svc.Events.Insert(calendarID, g.toGoogle(ev)).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return Event{}, domain.Backend("calendar.insert", err)
	}
	ev.ID = created.Id
	g.logger.Info("calendar event created", "calendar_id", calendarID, "event_id", ev.ID, "court_id", ev.CourtID)
	return ev, nil
}

func (g *GoogleBackend) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, span := tracer.Start(ctx, "calendar.google.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("padel.calendar_id", calendarID),
		attribute.String("padel.event_id", eventID),
	)

	err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return &domain.NotFoundError{Kind: "reservation", ID: eventID}
	}
	span.RecordError(err)
	return domain.Backend("calendar.delete", err)
}

func (g *GoogleBackend) toGoogle(ev Event) *gcal.Event {
	private := map[string]string{}
	if ev.RequesterID != "" {
		private[propRequesterID] = ev.RequesterID
	}
	if ev.CourtID != "" {
		private[propCourtID] = ev.CourtID
	}
	if ev.CustomerName != "" {
		private[propCustomerName] = ev.CustomerName
	}
	return &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Window.Start.In(g.loc).Format(time.RFC3339),
			TimeZone: g.loc.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: ev.Window.End.In(g.loc).Format(time.RFC3339),
			TimeZone: g.loc.String(),
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: emailReminderMins},
				{Method: "popup", Minutes: popupReminderMins},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ExtendedProperties: &gcal.EventExtendedProperties{Private: private},
	}
}

// fromGoogle drops cancelled and malformed events. All-day events block the
// whole local day range they cover.
func (g *GoogleBackend) fromGoogle(item *gcal.Event) (Event, bool) {
	if item == nil || item.Status == "cancelled" || item.Start == nil || item.End == nil {
		return Event{}, false
	}
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
	}
	if item.ExtendedProperties != nil {
		ev.RequesterID = item.ExtendedProperties.Private[propRequesterID]
		ev.CourtID = item.ExtendedProperties.Private[propCourtID]
		ev.CustomerName = item.ExtendedProperties.Private[propCustomerName]
	}

	switch {
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			g.logger.Warn("skipping event with unparsable start", "event_id", item.Id, "error", err)
			return Event{}, false
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			g.logger.Warn("skipping event with unparsable end", "event_id", item.Id, "error", err)
			return Event{}, false
		}
		ev.Window = domain.Window{Start: start, End: end}
	case item.Start.Date != "":
		start, err := time.ParseInLocation(time.DateOnly, item.Start.Date, g.loc)
		if err != nil {
			return Event{}, false
		}
		end, err := time.ParseInLocation(time.DateOnly, item.End.Date, g.loc)
		if err != nil || !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		ev.Window = domain.Window{Start: start, End: end}
		ev.AllDay = true
	default:
		return Event{}, false
	}
	return ev, ev.Window.Valid()
}
