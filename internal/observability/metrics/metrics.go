package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flow. All
// methods are safe on a nil receiver.
type BookingMetrics struct {
	inboundTotal      *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	reservationsTotal *prometheus.CounterVec
	remindersTotal    *prometheus.CounterVec
	extractLatency    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padel",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padel",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padel",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by intent and outcome",
		}, []string{"intent", "outcome"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padel",
			Subsystem: "bookings",
			Name:      "reservations_total",
			Help:      "Reservation transactions by outcome",
		}, []string{"outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padel",
			Subsystem: "bookings",
			Name:      "reminders_sent_total",
			Help:      "Booking reminders sent by kind",
		}, []string{"kind"}),
		extractLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "padel",
			Subsystem: "nlu",
			Name:      "extract_latency_seconds",
			Help:      "Latency of LLM extraction calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.turnsTotal, m.reservationsTotal, m.remindersTotal, m.extractLatency)
	return m
}

func (m *BookingMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveTurn(intent, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveReminder(kind string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveExtractLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.extractLatency.WithLabelValues(status).Observe(seconds)
}
