package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the service's collectors and the registry they live in.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	webhooksCounter       *prometheus.CounterVec
	deploysCounter        *prometheus.CounterVec
	deployDuration        prometheus.Histogram
	deployInProgressGauge prometheus.Gauge
}

// New creates a recorder backed by its own registry, so several recorders
// can coexist in one process.
func New() *Recorder {
	in := &Recorder{registry: prometheus.NewRegistry()}
	factory := promauto.With(in.registry)

	in.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	in.webhooksCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: WebhooksMetricName,
		Help: WebhooksMetricDescription,
	}, []string{WebhooksMetricLabelResult})

	in.deploysCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: DeploysMetricName,
		Help: DeploysMetricDescription,
	}, []string{DeploysMetricLabelStatus})

	in.deployDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    DeployDurationMetricName,
		Help:    DeployDurationMetricDescription,
		Buckets: []float64{5, 15, 30, 60, 120, 180, 240, 300, 600},
	})

	in.deployInProgressGauge = factory.NewGauge(prometheus.GaugeOpts{
		Name: DeployInProgressMetricName,
		Help: DeployInProgressMetricDescription,
	})

	return in
}

func (in *Recorder) Webhook(result string) {
	if in == nil {
		return
	}
	in.webhooksCounter.WithLabelValues(result).Inc()
}

func (in *Recorder) DeployStarted() {
	if in == nil {
		return
	}
	in.deployInProgressGauge.Set(1)
}

func (in *Recorder) DeployFinished(status string, duration time.Duration) {
	if in == nil {
		return
	}
	in.deployInProgressGauge.Set(0)
	in.deploysCounter.WithLabelValues(status).Inc()
	in.deployDuration.Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (in *Recorder) Handler() http.Handler {
	if in == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(in.registry, promhttp.HandlerOpts{Registry: in.registry})
}
