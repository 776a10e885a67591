// Package metrics holds the Prometheus collectors exported by flowrun.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_jobs_processed_total",
		Help: "Queue jobs handled, by family and outcome.",
	}, []string{"family", "outcome"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowrun_job_duration_seconds",
		Help:    "Time spent in job handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"family"})

	QueueJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowrun_queue_jobs",
		Help: "Jobs held by the queue, by state.",
	}, []string{"state"})

	NodeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_node_runs_total",
		Help: "Finished node runs, by node type and status.",
	}, []string{"node_type", "status"})

	NodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowrun_node_duration_seconds",
		Help:    "Node handler execution time.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"node_type"})

	ExecutionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowrun_executions_started_total",
		Help: "Workflow executions created.",
	})

	ExecutionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_executions_finished_total",
		Help: "Workflow executions that reached a terminal status.",
	}, []string{"status"})
)

// Registry holds every flowrun collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		JobsProcessed,
		JobDuration,
		QueueJobs,
		NodeRuns,
		NodeDuration,
		ExecutionsStarted,
		ExecutionsFinished,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
