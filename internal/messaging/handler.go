// Package messaging is the WhatsApp edge: the Twilio webhook that accepts
// customer messages and the sender that delivers replies.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var twilioTracer = otel.Tracer("padel.internal.messaging.twilio")

const (
	serviceName    = "Padel Booking Bot"
	serviceVersion = "2.0.0"
	publishTimeout = 3 * time.Second
)

type messagePublisher interface {
	EnqueueMessage(ctx context.Context, msg conversation.InboundMessage) error
}

// SignatureConfig enables X-Twilio-Signature verification. WebhookURL is the
// public URL Twilio posts to; when empty it is rebuilt from the request.
type SignatureConfig struct {
	Enabled    bool
	AuthToken  string
	WebhookURL string
}

// Handler handles messaging webhook requests.
type Handler struct {
	publisher messagePublisher
	signature SignatureConfig
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

func WithSignature(cfg SignatureConfig) HandlerOption {
	return func(h *Handler) { h.signature = cfg }
}

func WithHandlerMetrics(m *metrics.BookingMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a new messaging handler.
func NewHandler(publisher messagePublisher, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	h := &Handler{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Webhook handles POST /webhook. The message is queued and acknowledged
// immediately; the reply goes out asynchronously.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.signature.Enabled {
		webhookURL := h.signature.WebhookURL
		if webhookURL == "" {
			webhookURL = buildAbsoluteURL(r)
		}
		if !ValidateTwilioSignature(r, h.signature.AuthToken, webhookURL) {
			h.logger.Warn("invalid twilio signature", "url", webhookURL)
			h.metrics.ObserveInbound("forbidden")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		h.metrics.ObserveInbound("bad_request")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := NormalizeRequester(webhook.From)
	body := strings.TrimSpace(webhook.Body)
	span.SetAttributes(
		attribute.String("padel.twilio.message_sid", webhook.MessageSid),
		attribute.String("padel.requester", from),
	)

	if from == "" || body == "" {
		err := errors.New("missing From or Body")
		h.logger.Warn("invalid twilio payload", "error", err, "message_sid", webhook.MessageSid)
		h.metrics.ObserveInbound("bad_request")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = h.publisher.EnqueueMessage(publishCtx, conversation.InboundMessage{
		From:       from,
		Body:       body,
		MessageSID: webhook.MessageSid,
		ReceivedAt: h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "requester", from, "message_sid", webhook.MessageSid)
		h.metrics.ObserveInbound("error")
		span.RecordError(err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("twilio webhook accepted", "requester", from, "message_sid", webhook.MessageSid)
	h.metrics.ObserveInbound("accepted")
	writeText(w, http.StatusOK, "OK")
}

// WebhookStatus handles GET /webhook so the URL can be checked from a browser.
func (h *Handler) WebhookStatus(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Webhook activo")
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"service":   serviceName,
		"version":   serviceVersion,
	})
}

// Root handles GET / with a service banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"health":  "GET /health",
			"webhook": "POST /webhook",
			"metrics": "GET /metrics",
		},
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
