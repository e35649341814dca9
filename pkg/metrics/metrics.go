package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_tasks_total",
			Help: "Number of tasks by status",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_queue_depth",
			Help: "Number of pending tasks waiting for a worker",
		},
	)

	WorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_workers_busy",
			Help: "Number of workers currently running a playbook",
		},
	)

	PlaybookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corral_playbook_duration_seconds",
			Help:    "Playbook run duration in seconds by task type",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"type"},
	)

	TasksCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_tasks_cancelled_total",
			Help: "Total number of cancelled tasks",
		},
	)

	VersionChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_version_changes_total",
			Help: "Total number of recorded version transitions",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corral_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkersBusy)
	prometheus.MustRegister(PlaybookDuration)
	prometheus.MustRegister(TasksCancelled)
	prometheus.MustRegister(VersionChanges)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
