package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, labelled by pipeline name (parse, dps_report, wingman)
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evtc_uploader_queue_depth",
			Help: "Number of logs waiting in a pipeline queue",
		},
		[]string{"pipeline"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtc_uploader_jobs_total",
			Help: "Pipeline jobs by final state",
		},
		[]string{"pipeline", "result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evtc_uploader_job_duration_seconds",
			Help:    "Duration of analyzer runs and uploads",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"pipeline"},
	)

	RejectedEnqueues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtc_uploader_rejected_enqueues_total",
			Help: "Enqueue requests refused by a pipeline",
		},
		[]string{"pipeline", "reason"},
	)
)

// Registry metrics
var (
	LogsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtc_uploader_logs_ingested_total",
			Help: "Log files seen by the registry",
		},
		[]string{"result"},
	)

	LogsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evtc_uploader_logs_tracked",
		Help: "Number of records held in memory",
	})
)

// HTTP metrics of the local API
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtc_uploader_http_requests_total",
			Help: "Requests served by the local API",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evtc_uploader_http_request_duration_seconds",
			Help:    "Duration of local API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Encounter sink metrics
var SinkRows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evtc_uploader_sink_rows_total",
		Help: "Encounter rows handed to the analytics sink",
	},
	[]string{"result"},
)
