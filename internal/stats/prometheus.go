package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stageq"

type promMetrics struct {
	sent      *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

type promStage struct {
	sent      prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	duration  prometheus.Observer
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_sent_total",
			Help:      "Requests that returned to the worker, by stage.",
		}, []string{"stage"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_completed_total",
			Help:      "Requests classified as completed, by stage.",
		}, []string{"stage"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Requests classified as failed, by stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall-clock duration of each call, by stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.sent, m.completed, m.failed, m.duration)
	return m
}

func (m *promMetrics) forStage(name string) *promStage {
	return &promStage{
		sent:      m.sent.WithLabelValues(name),
		completed: m.completed.WithLabelValues(name),
		failed:    m.failed.WithLabelValues(name),
		duration:  m.duration.WithLabelValues(name),
	}
}
