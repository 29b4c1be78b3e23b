package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	httpmiddleware "github.com/wolfman30/padel-booking-bot/internal/http/middleware"
	"github.com/wolfman30/padel-booking-bot/internal/messaging"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []conversation.InboundMessage
}

func (p *recordingPublisher) EnqueueMessage(_ context.Context, msg conversation.InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) (http.Handler, *recordingPublisher) {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	publisher := &recordingPublisher{}
	handler := messaging.NewHandler(publisher, logger, messaging.WithHandlerMetrics(m))

	return New(&Config{
		Logger:           logger,
		MessagingHandler: handler,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookLimiter:   limiter,
	}), publisher
}

func postWebhook(h http.Handler, from, body string) *httptest.ResponseRecorder {
	form := url.Values{"From": {from}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesPublicEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	cases := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/", wantCode: http.StatusOK, contains: "Padel Booking Bot"},
		{path: "/health", wantCode: http.StatusOK, contains: `"status":"ok"`},
		{path: "/webhook", wantCode: http.StatusOK, contains: "Webhook activo"},
		{path: "/nope", wantCode: http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.wantCode {
			t.Fatalf("GET %s: expected %d, got %d", tc.path, tc.wantCode, rec.Code)
		}
		if tc.contains != "" && !strings.Contains(rec.Body.String(), tc.contains) {
			t.Fatalf("GET %s: body %q missing %q", tc.path, rec.Body.String(), tc.contains)
		}
	}
}

func TestRouterWebhookEnqueuesAndCountsMetrics(t *testing.T) {
	h, publisher := newTestRouter(t, nil)

	rec := postWebhook(h, "whatsapp:+5215512345678", "Quiero reservar mañana a las 6pm")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if len(publisher.msgs) != 1 || publisher.msgs[0].From != "+5215512345678" {
		t.Fatalf("expected normalized requester, got %#v", publisher.msgs)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	if !strings.Contains(mrec.Body.String(), `padel_messaging_inbound_webhook_total{status="accepted"} 1`) {
		t.Fatalf("metrics missing accepted webhook:\n%s", mrec.Body.String())
	}
}

func TestRouterRateLimitsWebhookOnly(t *testing.T) {
	h, publisher := newTestRouter(t, httpmiddleware.NewRateLimiter(0.001, 1))

	if rec := postWebhook(h, "+5215512345678", "hola"); rec.Code != http.StatusOK {
		t.Fatalf("first webhook: expected 200, got %d", rec.Code)
	}
	if rec := postWebhook(h, "+5215512345678", "hola otra vez"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second webhook: expected 429, got %d", rec.Code)
	}
	if len(publisher.msgs) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(publisher.msgs))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["version"] != "2.0.0" {
		t.Fatalf("health should not be limited: %d %q", rec.Code, rec.Body.String())
	}
}
