// Package metrics exposes exploration progress as Prometheus series. The
// driver is a batch job, so series are written to a node-exporter textfile
// instead of being served over HTTP.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dse"

// Exploration holds the counters updated by the driver for one run.
type Exploration struct {
	registry  *prometheus.Registry
	space     prometheus.Gauge
	executed  prometheus.Counter
	failed    prometheus.Counter
	skipped   *prometheus.CounterVec
	teardowns prometheus.Counter
	duration  prometheus.Histogram
}

func NewExploration(runID string) *Exploration {
	labels := prometheus.Labels{"run_id": runID}
	e := &Exploration{
		registry: prometheus.NewRegistry(),
		space: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "design_space_points",
			Help:        "Number of design points in the enumerated space.",
			ConstLabels: labels,
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "points_executed_total",
			Help:        "Design points executed against the runtime.",
			ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "points_failed_total",
			Help:        "Executed design points whose run failed.",
			ConstLabels: labels,
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "points_skipped_total",
			Help:        "Design points discarded by the feasibility rules.",
			ConstLabels: labels,
		}, []string{"rule"}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "teardown_failures_total",
			Help:        "Runtime stop calls that returned an error.",
			ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "point_duration_seconds",
			Help:        "Wall time of one executed design point, start to stop.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	e.registry.MustRegister(e.space, e.executed, e.failed, e.skipped, e.teardowns, e.duration)
	return e
}

func (e *Exploration) SetSpace(points uint64) { e.space.Set(float64(points)) }

func (e *Exploration) Skipped(rule string) { e.skipped.WithLabelValues(rule).Inc() }

func (e *Exploration) TeardownFailed() { e.teardowns.Inc() }

// Executed records one finished point.
func (e *Exploration) Executed(failed bool, seconds float64) {
	e.executed.Inc()
	if failed {
		e.failed.Inc()
	}
	e.duration.Observe(seconds)
}

func (e *Exploration) Registry() *prometheus.Registry { return e.registry }

// WriteTextfile atomically replaces path with the current series.
func (e *Exploration) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
