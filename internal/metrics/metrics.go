// Package metrics exposes pipeline counters in the Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Frame pump
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	PreviewsSent    atomic.Uint64

	// Errors
	ReadErrors   atomic.Uint64
	DetectErrors atomic.Uint64
	SinkErrors   atomic.Uint64

	// Events
	Triggers       atomic.Uint64
	ClipsSaved     atomic.Uint64
	ImagesIngested atomic.Uint64

	// State
	RecordingActive atomic.Uint64 // 0 = idle, 1 = recording
	SourceConnected atomic.Uint64
	ViewerClients   atomic.Int64

	inferenceLatency prometheus.Histogram
	triggerLabels    *prometheus.CounterVec
	registry         *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventcam_inference_duration_seconds",
			Help:    "Time spent in the detector per frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		triggerLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventcam_triggers_by_label_total",
			Help: "Recording triggers by label",
		}, []string{"label"}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name, help string
		value      *atomic.Uint64
	}{
		{"eventcam_frames_read_total", "Total frames read from the source", &m.FramesRead},
		{"eventcam_frames_processed_total", "Total frames run through detection", &m.FramesProcessed},
		{"eventcam_previews_sent_total", "Total annotated frames published to viewers", &m.PreviewsSent},
		{"eventcam_read_errors_total", "Total source read failures", &m.ReadErrors},
		{"eventcam_detect_errors_total", "Total detector failures", &m.DetectErrors},
		{"eventcam_sink_errors_total", "Total clip open/write failures", &m.SinkErrors},
		{"eventcam_triggers_total", "Total recording triggers", &m.Triggers},
		{"eventcam_clips_saved_total", "Total clips saved", &m.ClipsSaved},
		{"eventcam_images_ingested_total", "Total externally reported images", &m.ImagesIngested},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "eventcam_recording_active",
			Help: "Whether a clip is being recorded (0 = idle, 1 = recording)",
		},
		func() float64 { return float64(m.RecordingActive.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "eventcam_source_connected",
			Help: "Whether a video source is connected",
		},
		func() float64 { return float64(m.SourceConnected.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "eventcam_viewer_clients",
			Help: "Connected WebSocket viewers",
		},
		func() float64 { return float64(m.ViewerClients.Load()) },
	))

	m.registry.MustRegister(m.inferenceLatency, m.triggerLabels)
}

// ObserveInference records the duration of one detector call.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.inferenceLatency.Observe(d.Seconds())
}

// Trigger counts a recording trigger for label.
func (m *Metrics) Trigger(label string) {
	m.Triggers.Add(1)
	m.triggerLabels.WithLabelValues(label).Inc()
}

// SetRecording updates the recording gauge.
func (m *Metrics) SetRecording(on bool) {
	m.RecordingActive.Store(flag(on))
}

// SetConnected updates the source gauge.
func (m *Metrics) SetConnected(on bool) {
	m.SourceConnected.Store(flag(on))
}

func flag(on bool) uint64 {
	if on {
		return 1
	}
	return 0
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
