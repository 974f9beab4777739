package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"})

	PipelineRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rows_total",
		Help: "Rows leaving each pipeline stage",
	}, []string{"stage"})

	DuplicateRowsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_duplicate_rows_removed_total",
		Help: "Exact duplicate rows removed by the cleaner",
	})

	NegativePriceRowsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_negative_price_rows_dropped_total",
		Help: "Rows dropped because of a negative unit price",
	})

	PipelineStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_latency_seconds",
		Help:    "Latency of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})

	ReportFilesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "report_files_written_total",
		Help: "Total number of report files written",
	})

	DashboardCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_requests_total",
		Help: "Dashboard cache lookups by result",
	}, []string{"view", "result"})

	DashboardQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_query_latency_seconds",
		Help:    "Latency of dashboard store queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
