package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleTransitionsTotal *prometheus.CounterVec
	alertSweepSize            prometheus.Gauge
	servicePrimaryPresent     *prometheus.GaugeVec
	resolveTotal              *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Metrics records operational counters for lifecycle and health activity.
// All methods are safe on a nil receiver and before InitMetrics, so
// callers never need to guard the metrics path.
type Metrics struct{}

// NewMetrics creates a Metrics recorder. Counters are only live after
// InitMetrics has run.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics registers all prometheus collectors. Call once at startup
// when metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		lifecycleTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_lifecycle_transitions_total",
				Help: "Total number of key lifecycle transitions applied",
			},
			[]string{"service", "operation"},
		)

		alertSweepSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "keywarden_rotation_alerts",
				Help: "Number of alerts produced by the most recent sweep",
			},
		)

		servicePrimaryPresent = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keywarden_service_primary_present",
				Help: "Whether the service currently has an active primary key (1=yes, 0=no)",
			},
			[]string{"service"},
		)

		resolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keywarden_resolve_total",
				Help: "Total number of secret resolutions by outcome",
			},
			[]string{"service", "outcome"},
		)

		metricsRegistered = true
	})
}

// RecordTransition counts one applied lifecycle transition.
func (m *Metrics) RecordTransition(service, operation string) {
	if m == nil || !metricsRegistered {
		return
	}
	lifecycleTransitionsTotal.WithLabelValues(service, operation).Inc()
}

// RecordAlertSweep records the size of an alert sweep.
func (m *Metrics) RecordAlertSweep(count int) {
	if m == nil || !metricsRegistered {
		return
	}
	alertSweepSize.Set(float64(count))
}

// RecordServiceHealth records whether a service has an active primary.
func (m *Metrics) RecordServiceHealth(service string, primaryPresent bool) {
	if m == nil || !metricsRegistered {
		return
	}
	value := 0.0
	if primaryPresent {
		value = 1.0
	}
	servicePrimaryPresent.WithLabelValues(service).Set(value)
}

// RecordResolve counts one resolution attempt. outcome is "primary",
// "fallback" or "none".
func (m *Metrics) RecordResolve(service, outcome string) {
	if m == nil || !metricsRegistered {
		return
	}
	resolveTotal.WithLabelValues(service, outcome).Inc()
}
