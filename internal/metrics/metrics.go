// Package metrics exposes Prometheus instrumentation for story generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cuentos"

// Metrics holds the collectors for one process. It owns a private registry
// so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	stories          *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	inFlight         prometheus.Gauge
	audioBytes       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stories: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stories_total",
				Help:      "Story generation requests by outcome.",
			},
			[]string{"status"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of outbound provider calls.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"provider", "status"},
		),
		providerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_retries_total",
				Help:      "Retries issued after transient provider errors.",
			},
			[]string{"provider"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stories_in_flight",
				Help:      "Stories currently being generated.",
			},
		),
		audioBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "story_audio_bytes",
				Help:      "Size of returned narration audio.",
				Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 8),
			},
		),
	}
	m.registry.MustRegister(
		m.stories,
		m.providerDuration,
		m.providerRetries,
		m.inFlight,
		m.audioBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) StoryStarted() { m.inFlight.Inc() }

// StoryFinished records the outcome label and, on success, the audio size.
func (m *Metrics) StoryFinished(status string, audioBytes int) {
	m.inFlight.Dec()
	m.stories.WithLabelValues(status).Inc()
	if status == "ok" {
		m.audioBytes.Observe(float64(audioBytes))
	}
}

func (m *Metrics) ProviderCall(provider, status string, elapsed time.Duration) {
	m.providerDuration.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func (m *Metrics) ProviderRetry(provider string) {
	m.providerRetries.WithLabelValues(provider).Inc()
}
