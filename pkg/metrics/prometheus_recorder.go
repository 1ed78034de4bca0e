package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "markerservo"

// Detection runs in the low milliseconds on a laptop CPU.
var detectBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	frames         prom.Counter
	detectDuration prom.Histogram
	detectErrors   prom.Counter
	markerPresent  prom.Gauge
	commands       *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		frames: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames read from the camera",
		}),
		detectDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_duration_seconds",
			Help:      "Marker detection latency per frame",
			Buckets:   detectBuckets,
		}),
		detectErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "detect_errors_total",
			Help:      "Frames where marker detection failed",
		}),
		markerPresent: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "marker_present",
			Help:      "1 when the last frame contained at least one marker",
		}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Servo commands emitted by command and delivery result",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(pr.frames, pr.detectDuration, pr.detectErrors, pr.markerPresent, pr.commands)
	return pr
}

func (p *PrometheusRecorder) IncFrames() {
	if p == nil {
		return
	}
	p.frames.Inc()
}

func (p *PrometheusRecorder) ObserveDetectDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.detectDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDetectError() {
	if p == nil {
		return
	}
	p.detectErrors.Inc()
}

func (p *PrometheusRecorder) SetMarkerPresent(present bool) {
	if p == nil {
		return
	}
	if present {
		p.markerPresent.Set(1)
		return
	}
	p.markerPresent.Set(0)
}

func (p *PrometheusRecorder) IncCommand(cmd string, result ResultLabel) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(cmd, string(result)).Inc()
}

// Handler returns an http.Handler that serves the metrics in reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
