package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ukcp_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	JobsStarted     prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	JobsSkipped     prometheus.Counter
	PipelineRunning prometheus.Gauge

	RecordsWritten *prometheus.CounterVec   // labels: kind={dry_days,month_total,bin_counts,profile}
	StageDuration  *prometheus.HistogramVec // labels: stage={fetch,summarize,load}

	// Download metrics.
	Downloads        *prometheus.CounterVec // labels: outcome={downloaded,reused,retried,error}
	DownloadBytes    prometheus.Counter
	DownloadDuration prometheus.Histogram
	TokenRefreshes   *prometheus.CounterVec // labels: outcome={cached,refreshed,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.JobsStarted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsSkipped,
		m.PipelineRunning,
		m.RecordsWritten,
		m.StageDuration,
		m.Downloads,
		m.DownloadBytes,
		m.DownloadDuration,
		m.TokenRefreshes,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      help("Jobs (month x member x variable) started."),
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      help("Jobs whose records were written to every sink."),
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      help("Jobs that ended with an error."),
		}),
		JobsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_skipped_total",
			Help:      help("Jobs skipped because the ledger already holds them."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a batch is being processed, 0 otherwise."),
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      help("Output rows written by record kind."),
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      help("Duration of each pipeline stage."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      help("NetCDF download attempts by outcome."),
		}, []string{"outcome"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      help("Bytes written to the download directory."),
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      help("Duration of a single successful download."),
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      help("Download token lookups by outcome."),
		}, []string{"outcome"}),
	}
}
