package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsSubmitted counts jobs accepted by the API, labeled by the
	// affinity bucket they were enqueued into.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobservitor_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
		[]string{"gpu_type", "dc", "region"},
	)

	// JobsProcessed counts jobs that reached a terminal status, labeled by
	// the executor that ran them.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobservitor_jobs_processed_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status", "executor"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobservitor_job_duration_seconds",
			Help:    "Wall-clock time from running to a terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15),
		},
		[]string{"status"},
	)

	// QueueDepth is set only through UpdateQueueDepth. Neither the API's
	// GET /jobs handler nor the worker loop calls it, so the gauge carries
	// no values unless some other caller sets them.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobservitor_queue_depth",
			Help: "Current number of pending jobs in an affinity bucket",
		},
		[]string{"gpu_type", "dc", "region"},
	)

	// DequeueCascadeDepth records which of the four cascade steps (§4.3)
	// actually produced a job, 1-indexed, or 0 when the cascade came up
	// empty. Useful for judging how often affinity requests get downgraded.
	DequeueCascadeDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobservitor_dequeue_cascade_depth",
			Help:    "Cascade step (1-4) that produced a dequeued job, 0 if none did",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
		[]string{"executor"},
	)

	WorkerActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobservitor_worker_active",
			Help: "1 while an executor has a job dispatched, 0 while idle",
		},
		[]string{"executor"},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobservitor_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobservitor_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Handler returns the Prometheus metrics handler for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordJobSubmission(gpuType, dc, region string) {
	JobsSubmitted.WithLabelValues(gpuType, dc, region).Inc()
}

func RecordJobProcessed(status, executor string, durationSeconds float64) {
	JobsProcessed.WithLabelValues(status, executor).Inc()
	JobDuration.WithLabelValues(status).Observe(durationSeconds)
}

func UpdateQueueDepth(gpuType, dc, region string, count float64) {
	QueueDepth.WithLabelValues(gpuType, dc, region).Set(count)
}

func RecordDequeueCascadeDepth(executor string, step int) {
	DequeueCascadeDepth.WithLabelValues(executor).Observe(float64(step))
}

func SetWorkerActive(executor string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	WorkerActive.WithLabelValues(executor).Set(v)
}

func RecordAPIRequest(method, endpoint, statusCode string) {
	APIRequests.WithLabelValues(method, endpoint, statusCode).Inc()
}

func RecordAPIRequestDuration(method, endpoint string, duration float64) {
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}
