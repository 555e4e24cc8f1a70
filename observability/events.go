package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"supplynet/core/events"
)

type eventMetrics struct {
	notifications *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry counting committed ledger
// notifications. It implements events.Emitter so it can sit alongside the
// notification hub.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "supplynet",
				Subsystem: "events",
				Name:      "notifications_total",
				Help:      "Count of committed ledger notifications segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.notifications)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.notifications.WithLabelValues(evt.EventType()).Inc()
}
