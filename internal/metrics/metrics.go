// Package metrics exposes Prometheus collectors for both daemons.
// All methods are safe on a nil *Metrics, which disables collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard"

// Metrics holds every collector.
type Metrics struct {
	polls               *prometheus.CounterVec
	sampleErrors        *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	measurementTimeouts prometheus.Counter
	distance            prometheus.Gauge
	dispatchAttempts    *prometheus.CounterVec
	dispatchResults     *prometheus.CounterVec
	dispatchLatency     prometheus.Histogram
	journaled           prometheus.Counter
	notifications       *prometheus.CounterVec
	actuatorLevel       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Sensor polls performed by monitor loops.",
		}, []string{"sensor"}),
		sampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_errors_total",
			Help:      "Sensor polls that failed to produce a reading.",
		}, []string{"sensor"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episode_transitions_total",
			Help:      "Hazard episode transitions by kind.",
		}, []string{"sensor", "transition"}),
		measurementTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distance_timeouts_total",
			Help:      "Ultrasonic measurements that timed out waiting for an echo.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_cm",
			Help:      "Last measured distance in centimetres.",
		}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "HTTP attempts made delivering alerts.",
		}, []string{"hazard"}),
		dispatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_results_total",
			Help:      "Alert deliveries by final result.",
		}, []string{"hazard", "result"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time from first attempt to final alert delivery result.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		journaled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journaled_alerts_total",
			Help:      "Undelivered alerts written to the local journal.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Observer notifications by channel and result.",
		}, []string{"channel", "result"}),
		actuatorLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_on",
			Help:      "1 while the output is driven on.",
		}, []string{"output"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.polls, m.sampleErrors, m.transitions, m.measurementTimeouts, m.distance,
			m.dispatchAttempts, m.dispatchResults, m.dispatchLatency, m.journaled,
			m.notifications, m.actuatorLevel,
		)
	}
	return m
}

// Poll counts one poll; failed reports whether the sample errored.
func (m *Metrics) Poll(sensor string, failed bool) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(sensor).Inc()
	if failed {
		m.sampleErrors.WithLabelValues(sensor).Inc()
	}
}

// Transition counts an episode transition.
func (m *Metrics) Transition(sensor, transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(sensor, transition).Inc()
}

// Distance records a measurement, or a timeout when ok is false.
func (m *Metrics) Distance(cm float64, ok bool) {
	if m == nil {
		return
	}
	if !ok {
		m.measurementTimeouts.Inc()
		return
	}
	m.distance.Set(cm)
}

// DispatchAttempts counts HTTP attempts made for one delivery.
func (m *Metrics) DispatchAttempts(hazard string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dispatchAttempts.WithLabelValues(hazard).Add(float64(n))
}

// DispatchResult records the final result of a delivery.
func (m *Metrics) DispatchResult(hazard string, delivered bool, seconds float64) {
	if m == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.dispatchResults.WithLabelValues(hazard, result).Inc()
	m.dispatchLatency.Observe(seconds)
}

// Journaled counts an alert written to the local journal.
func (m *Metrics) Journaled() {
	if m == nil {
		return
	}
	m.journaled.Inc()
}

// Notification counts an observer notification attempt.
func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// Actuator records an output level.
func (m *Metrics) Actuator(output string, on bool) {
	if m == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	m.actuatorLevel.WithLabelValues(output).Set(v)
}
