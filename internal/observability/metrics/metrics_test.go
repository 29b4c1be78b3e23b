package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matches(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservation("created")
	m.ObserveReservation("created")
	m.ObserveReservation("conflict")
	m.ObserveTurn("reservar", "confirmed")
	m.ObserveInbound("accepted")
	m.ObserveOutbound("sent")
	m.ObserveReminder("24h")
	m.ObserveExtractLatency("ok", 0.4)

	if got := counterValue(t, reg, "padel_bookings_reservations_total", map[string]string{"outcome": "created"}); got != 2 {
		t.Fatalf("expected 2 created reservations, got %v", got)
	}
	if got := counterValue(t, reg, "padel_conversation_turns_total", map[string]string{"intent": "reservar", "outcome": "confirmed"}); got != 1 {
		t.Fatalf("expected 1 turn, got %v", got)
	}
	if got := counterValue(t, reg, "padel_bookings_reminders_sent_total", map[string]string{"kind": "24h"}); got != 1 {
		t.Fatalf("expected 1 reminder, got %v", got)
	}
}

func TestBookingMetricsDefaultRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewBookingMetrics(nil)
	m.ObserveInbound("rejected")
	if got := counterValue(t, reg, "padel_messaging_inbound_webhook_total", map[string]string{"status": "rejected"}); got != 1 {
		t.Fatalf("expected default registerer to be used, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveInbound("accepted")
	m.ObserveOutbound("sent")
	m.ObserveTurn("cancelar", "cancelled")
	m.ObserveReservation("created")
	m.ObserveReminder("3h")
	m.ObserveExtractLatency("error", 1)
}
