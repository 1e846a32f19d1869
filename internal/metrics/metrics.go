// Package metrics exposes Prometheus instruments for enrollment, verification
// and the attendance ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "face_attendance"

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enrollments     *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	faces           *prometheus.CounterVec
	ledgerEvents    *prometheus.CounterVec
	ledgerFailures  prometheus.Counter
	mirrorFailures  prometheus.Counter
	matchDistance   prometheus.Histogram
	embedderLatency prometheus.Histogram
	identities      prometheus.Gauge
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment attempts by outcome.",
		}, []string{"outcome"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification requests by direction and outcome.",
		}, []string{"direction", "outcome"}),
		faces: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_total",
			Help:      "Faces seen during verification by result.",
		}, []string{"result"}),
		ledgerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_total",
			Help:      "Attendance events recorded by direction.",
		}, []string{"direction"}),
		ledgerFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_append_failures_total",
			Help:      "Attendance events that could not be recorded.",
		}),
		mirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mirror_failures_total",
			Help:      "Recorded events a ledger mirror failed to store.",
		}),
		matchDistance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Distance to the closest enrolled identity for each detected face.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 15),
		}),
		embedderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedder_duration_seconds",
			Help:      "Latency of detect-and-embed calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		identities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities",
			Help:      "Enrolled identities at the last store read.",
		}),
	}
}

func (m *Metrics) EnrollmentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerificationOutcome(direction, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(direction, outcome).Inc()
}

// Face counts one face result: "recognized" or "unknown".
func (m *Metrics) Face(result string) {
	if m == nil {
		return
	}
	m.faces.WithLabelValues(result).Inc()
}

func (m *Metrics) LedgerEvent(direction string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(direction).Inc()
}

func (m *Metrics) LedgerFailure() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

func (m *Metrics) LedgerMirrorFailure() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

func (m *Metrics) MatchDistance(d float64) {
	if m == nil {
		return
	}
	m.matchDistance.Observe(d)
}

func (m *Metrics) EmbedderDuration(seconds float64) {
	if m == nil {
		return
	}
	m.embedderLatency.Observe(seconds)
}

func (m *Metrics) SetIdentities(n int) {
	if m == nil {
		return
	}
	m.identities.Set(float64(n))
}
