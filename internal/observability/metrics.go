package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_jobs_processed_total",
		Help: "Jobs processed, by terminal status",
	}, []string{"status"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_job_duration_seconds",
		Help:    "Wall time spent processing one job",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
	})
	ScrapeAttemptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_scrape_attempt_failures_total",
		Help: "Failed scrape attempts, including ones that were retried",
	})
	ResultInsertFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_result_insert_failures_total",
		Help: "Registry check rows that could not be written",
	})
	CompaniesCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_companies_collected_total",
		Help: "Companies stored across all registry checks",
	})
	TicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_poller_ticks_skipped_total",
		Help: "Poll ticks skipped because the previous tick was still running",
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_jobs_inflight",
		Help: "Jobs currently being processed (0 or 1)",
	})
)

// Register adds the worker collectors to the default registry. Safe to call repeatedly.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsProcessed,
			JobDuration,
			ScrapeAttemptFailures,
			ResultInsertFailures,
			CompaniesCollected,
			TicksSkipped,
			InFlight,
		)
	})
}

// Handler exposes the /metrics HTTP handler with the worker collectors registered.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
