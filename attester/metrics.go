package attester

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "attester"

// Run outcomes reported by the runs counter
const (
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors of the attester
type Metrics struct {
	runs         *prometheus.CounterVec
	duration     prometheus.Histogram
	issued       *prometheus.CounterVec
	revoked      *prometheus.CounterVec
	ranked       *prometheus.GaugeVec
	proxyLookups prometheus.Counter
	lastDate     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Attestation runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of published attestation runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attestations_issued_total",
			Help:      "Delegates that entered a published ranking.",
		}, []string{"pipeline"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attestations_revoked_total",
			Help:      "Delegates that left a published ranking.",
		}, []string{"pipeline"}),
		ranked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ranked_delegates",
			Help:      "Delegates in the last published ranking.",
		}, []string{"pipeline"}),
		proxyLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proxy_lookups_total",
			Help:      "Owner to proxy lookups made against the Alligator contract.",
		}),
		lastDate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_published_date_seconds",
			Help:      "Unix time of the last published data date.",
		}),
	}

	reg.MustRegister(m.runs, m.duration, m.issued, m.revoked, m.ranked, m.proxyLookups, m.lastDate)
	return m
}

func (m *Metrics) observePublished(r Result) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomePublished).Inc()
	m.duration.Observe(r.Duration.Seconds())
	m.proxyLookups.Add(float64(r.ProxyLookups))
	m.lastDate.Set(float64(r.Date.Unix()))
	for _, pa := range r.Pipelines {
		p := pa.Pipeline.String()
		m.issued.WithLabelValues(p).Add(float64(len(pa.Diff.Issue)))
		m.revoked.WithLabelValues(p).Add(float64(len(pa.Diff.Revoke)))
		m.ranked.WithLabelValues(p).Set(float64(len(pa.Ranked)))
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}
