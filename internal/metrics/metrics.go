package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Report pipeline metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cspreport_reports_total",
			Help: "Total number of report submissions by pipeline outcome",
		},
		[]string{"outcome"},
	)

	ReportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cspreport_report_bytes_total",
			Help: "Total bytes of report bodies received",
		},
	)

	HandleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cspreport_handle_duration_seconds",
			Help:    "Duration of report handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sink metrics
	SinkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cspreport_sink_duration_seconds",
			Help:    "Duration of telemetry sink calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cspreport_sink_errors_total",
			Help: "Total number of failed telemetry sink calls",
		},
		[]string{"sink"},
	)
)
