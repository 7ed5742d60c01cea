// Package metrics exports booking run and attempt measurements to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "teetime"

// Recorder holds the collectors. It satisfies the booking Recorder interface.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptRetries  prometheus.Counter
	attemptDuration *prometheus.HistogramVec

	runs        *prometheus.CounterVec
	runBooked   prometheus.Gauge
	runTarget   prometheus.Gauge
	runDuration prometheus.Histogram
	lastRunUnix prometheus.Gauge
	lastSuccess prometheus.Gauge
}

type Option func(*options)

type options struct {
	buckets  []float64
	registry *prometheus.Registry
}

func WithBuckets(b []float64) Option { return func(o *options) { o.buckets = b } }

func WithRegistry(r *prometheus.Registry) Option { return func(o *options) { o.registry = r } }

func New(opts ...Option) *Recorder {
	o := options{buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	auto := promauto.With(o.registry)

	return &Recorder{
		registry: o.registry,
		attempts: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "total",
			Help:      "Booking attempts by outcome status and failure reason.",
		}, []string{"status", "reason"}),
		attemptRetries: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "retries_total",
			Help:      "Transport retries spent across all attempts.",
		}),
		attemptDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "duration_seconds",
			Help:      "Wall time of a single booking attempt.",
			Buckets:   o.buckets,
		}, []string{"status"}),
		runs: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Finished runs by terminal status.",
		}, []string{"status"}),
		runBooked: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "booked",
			Help:      "Confirmed bookings in the most recent run.",
		}),
		runTarget: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "target",
			Help:      "Requested bookings in the most recent run.",
		}),
		runDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of a run from first fetch to result.",
			Buckets:   o.buckets,
		}),
		lastRunUnix: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
		lastSuccess: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_complete_timestamp_seconds",
			Help:      "Unix time of the most recent run that met its target.",
		}),
	}
}

func (r *Recorder) AttemptFinished(status booking.OutcomeStatus, reason string, retries int, d time.Duration) {
	r.attempts.WithLabelValues(string(status), reason).Inc()
	if retries > 0 {
		r.attemptRetries.Add(float64(retries))
	}
	r.attemptDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (r *Recorder) RunFinished(res booking.RunResult) {
	r.runs.WithLabelValues(string(res.Status)).Inc()
	r.runBooked.Set(float64(res.Booked))
	r.runTarget.Set(float64(res.Target))
	if !res.StartedAt.IsZero() && res.FinishedAt.After(res.StartedAt) {
		r.runDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}
	if !res.FinishedAt.IsZero() {
		r.lastRunUnix.Set(float64(res.FinishedAt.Unix()))
		if res.Status == booking.RunComplete {
			r.lastSuccess.Set(float64(res.FinishedAt.Unix()))
		}
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry for scraping in server mode.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Pusher sends the registry to a Pushgateway after each run. One-shot runs
// exit before a scrape could happen.
type Pusher struct {
	pusher *push.Pusher
}

func NewPusher(url, job string, r *Recorder) *Pusher {
	return &Pusher{pusher: push.New(url, job).Gatherer(r.registry)}
}

func (p *Pusher) Name() string { return "pushgateway" }

func (p *Pusher) Record(ctx context.Context, res booking.RunResult) error {
	if err := p.pusher.Grouping("portal", portalLabel(res.Portal)).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push run %s: %w", res.RunID, err)
	}
	return nil
}

func portalLabel(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}
