// Package observability owns the process metrics. All series live in the
// "reelscript" namespace on a private registry so tests can instantiate
// metrics without collisions.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelscript"

// DurationBucketsMs are the shared millisecond histogram buckets.
var DurationBucketsMs = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// Metrics bundles every instrument the service exports.
type Metrics struct {
	registry *prometheus.Registry

	Requests *prometheus.CounterVec // endpoint
	Errors   *prometheus.CounterVec // type
	Cache    *prometheus.CounterVec // tier, result
	Feedback *prometheus.CounterVec // polarity

	QueueDepth     prometheus.Gauge
	ActiveJobs     prometheus.Gauge
	ActiveSessions prometheus.Gauge
	BreakerState   *prometheus.GaugeVec // service; CLOSED=0 HALF_OPEN=1 OPEN=2

	IngressDuration   prometheus.Histogram
	JobDuration       prometheus.Histogram
	GeneratorDuration prometheus.Histogram
	AnalysisDuration  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests received, by endpoint.",
		}, []string{"endpoint"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by class.",
		}, []string{"type"}),
		Cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		Feedback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback submissions by polarity.",
		}, []string{"polarity"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs currently queued.",
		}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently processing.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live session records.",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Breaker state per service: 0 closed, 1 half-open, 2 open.",
		}, []string{"service"}),
		IngressDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingress_duration_ms",
			Help:      "Ingress handling latency in milliseconds.",
			Buckets:   DurationBucketsMs,
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_ms",
			Help:      "End to end job latency in milliseconds.",
			Buckets:   DurationBucketsMs,
		}),
		GeneratorDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_duration_ms",
			Help:      "Script generation call latency in milliseconds.",
			Buckets:   DurationBucketsMs,
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_ms",
			Help:      "Analysis call latency in milliseconds.",
			Buckets:   DurationBucketsMs,
		}),
	}
}

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBreakerState records a breaker state by its gauge encoding.
func (m *Metrics) SetBreakerState(service, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	m.BreakerState.WithLabelValues(service).Set(v)
}

// JSONSnapshot flattens the registry into a name -> samples map for the
// debug endpoint.
func (m *Metrics) JSONSnapshot() (map[string]interface{}, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(families))
	for _, mf := range families {
		var samples []map[string]interface{}
		for _, mtr := range mf.GetMetric() {
			sample := map[string]interface{}{}
			for _, lp := range mtr.GetLabel() {
				sample[lp.GetName()] = lp.GetValue()
			}
			switch {
			case mtr.GetCounter() != nil:
				sample["value"] = mtr.GetCounter().GetValue()
			case mtr.GetGauge() != nil:
				sample["value"] = mtr.GetGauge().GetValue()
			case mtr.GetHistogram() != nil:
				sample["count"] = mtr.GetHistogram().GetSampleCount()
				sample["sum"] = mtr.GetHistogram().GetSampleSum()
			}
			samples = append(samples, sample)
		}
		out[mf.GetName()] = samples
	}
	return out, nil
}
