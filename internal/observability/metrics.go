package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optiview_build_info",
			Help: "Build information of the OptiView server",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optiview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optiview_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "optiview_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Study pipeline metrics
	StudyLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optiview_study_loads_total",
			Help: "Total number of study loads",
		},
		[]string{"status"},
	)

	StudyLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optiview_study_load_duration_seconds",
			Help:    "Duration of study loads in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	StudyRowsLoaded = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optiview_study_rows_loaded",
			Help:    "Number of iteration rows per loaded study",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
	)

	// Pareto front metrics
	ParetoRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optiview_pareto_runs_total",
			Help: "Total number of Pareto front computations",
		},
		[]string{"status"},
	)

	ParetoRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optiview_pareto_run_duration_seconds",
			Help:    "Duration of Pareto front computations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4.1s
		},
	)

	ParetoFrontSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optiview_pareto_front_size",
			Help:    "Number of rows on computed Pareto fronts",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "optiview_sessions_active",
			Help: "Number of live analysis sessions",
		},
	)

	// Snapshot metrics
	SnapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optiview_snapshot_writes_total",
			Help: "Total number of snapshot writes",
		},
		[]string{"status"},
	)

	SnapshotWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optiview_snapshot_write_duration_seconds",
			Help:    "Duration of snapshot writes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	// Export metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optiview_exports_total",
			Help: "Total number of view exports",
		},
		[]string{"format", "status"},
	)
)

// statusRecorder captures the response status for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns an http middleware that records request metrics. The
// path label uses the ServeMux pattern, not the raw URL, so per-session URLs
// do not explode the label space.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// r.Pattern carries the method prefix ("GET /api/v1/..."); the method
		// is already its own label.
		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(rec.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordStudyLoad records metrics for one study load.
func RecordStudyLoad(rows int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StudyLoadsTotal.WithLabelValues(status).Inc()
	if err == nil {
		StudyLoadDuration.Observe(duration.Seconds())
		StudyRowsLoaded.Observe(float64(rows))
	}
}

// RecordParetoRun records metrics for one front computation.
func RecordParetoRun(frontSize int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ParetoRunsTotal.WithLabelValues(status).Inc()
	if err == nil {
		ParetoRunDuration.Observe(duration.Seconds())
		ParetoFrontSize.Observe(float64(frontSize))
	}
}

// RecordSnapshotWrite records metrics for one snapshot write.
func RecordSnapshotWrite(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SnapshotWritesTotal.WithLabelValues(status).Inc()
	if err == nil {
		SnapshotWriteDuration.Observe(duration.Seconds())
	}
}

// RecordExport records one view export.
func RecordExport(format string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExportsTotal.WithLabelValues(format, status).Inc()
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(n int) {
	SessionsActive.Set(float64(n))
}
