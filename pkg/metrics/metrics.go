package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TaskInsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flower_task_ins_total",
			Help: "Total number of stored task instructions",
		},
	)

	TaskResTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flower_task_res_total",
			Help: "Total number of stored task results",
		},
	)

	NodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flower_nodes_total",
			Help: "Total number of registered nodes",
		},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flower_operations_total",
			Help: "Total number of queue operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flower_operation_duration_seconds",
			Help:    "Queue operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ReaperSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flower_reaper_sweeps_total",
			Help: "Total number of reaper sweep cycles completed",
		},
	)

	ReaperDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flower_reaper_deleted_total",
			Help: "Total number of records deleted by the reaper, by table",
		},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(TaskInsTotal)
	prometheus.MustRegister(TaskResTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(ReaperSweepsTotal)
	prometheus.MustRegister(ReaperDeletedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
