package http

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optiview/optiview/internal/catalog"
	"github.com/optiview/optiview/internal/export"
	"github.com/optiview/optiview/internal/observability"
	"github.com/optiview/optiview/internal/server"
	"github.com/optiview/optiview/internal/session"
	"github.com/optiview/optiview/internal/snapshot"
	"github.com/optiview/optiview/internal/study"
)

// RouterConfig collects the dependencies of the HTTP surface. Shutdown is
// optional; when set, API requests are tracked for draining and rejected
// once shutdown begins.
type RouterConfig struct {
	Sessions       *session.Manager
	Loader         *study.Loader
	Writer         *snapshot.Writer
	Catalog        *catalog.Catalog
	Exporter       *export.Exporter
	Usage          *observability.UsageStats
	Shutdown       *server.ShutdownManager
	SnapshotDir    string
	MetricsEnabled bool
	Log            *slog.Logger
}

// NewRouter assembles the service handler: the /api/v1 routes behind the
// middleware chain and request metrics, plus health and metrics endpoints.
func NewRouter(rc RouterConfig) http.Handler {
	sessions := NewSessionHandler(rc.Sessions, rc.Loader, rc.Catalog, rc.Exporter, rc.Usage, rc.Log)
	snapshots := NewSnapshotHandler(rc.Sessions, rc.Writer, rc.Catalog, rc.SnapshotDir, rc.Log)
	stats := NewStatsHandler(rc.Usage, rc.Sessions)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/sessions", sessions.Create)
	api.HandleFunc("GET /api/v1/sessions", sessions.List)
	api.HandleFunc("GET /api/v1/sessions/{id}", sessions.Get)
	api.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.Delete)
	api.HandleFunc("GET /api/v1/sessions/{id}/view", sessions.View)
	api.HandleFunc("GET /api/v1/sessions/{id}/columns", sessions.Columns)
	api.HandleFunc("PUT /api/v1/sessions/{id}/selection", sessions.Selection)
	api.HandleFunc("PUT /api/v1/sessions/{id}/sense", sessions.Sense)
	api.HandleFunc("PUT /api/v1/sessions/{id}/pareto", sessions.Pareto)
	api.HandleFunc("PUT /api/v1/sessions/{id}/highlight", sessions.Highlight)
	api.HandleFunc("DELETE /api/v1/sessions/{id}/highlight", sessions.ClearHighlight)
	api.HandleFunc("GET /api/v1/sessions/{id}/front", sessions.Front)
	api.HandleFunc("POST /api/v1/sessions/{id}/export", sessions.Export)
	api.HandleFunc("POST /api/v1/snapshots", snapshots.Create)
	api.HandleFunc("GET /api/v1/snapshots", snapshots.List)
	api.HandleFunc("GET /api/v1/snapshots/{id}", snapshots.Get)
	api.HandleFunc("DELETE /api/v1/snapshots/{id}", snapshots.Delete)
	api.HandleFunc("GET /api/v1/stats", stats.Stats)

	// The metrics middleware sits innermost so the mux has matched a route
	// pattern by the time the path label is read.
	chain := []func(http.Handler) http.Handler{
		RecoveryMiddleware(rc.Log),
	}
	if rc.Shutdown != nil {
		chain = append(chain, server.ShutdownMiddleware(rc.Shutdown))
	}
	chain = append(chain,
		RequestIDMiddleware,
		CorrelationIDMiddleware,
		RequestLogMiddleware(rc.Log),
		ContentTypeMiddleware,
		observability.Middleware,
	)
	middleware := ChainMiddleware(chain...)

	root := http.NewServeMux()
	root.Handle("/api/", middleware(api))
	root.HandleFunc("GET /healthz", healthHandler(rc.Sessions, rc.Shutdown))
	if rc.MetricsEnabled {
		root.Handle("GET /metrics", promhttp.Handler())
	}
	return root
}

// healthHandler reports liveness and the live session count. During shutdown
// it answers 503 so load balancers stop routing here while requests drain.
func healthHandler(sessions *session.Manager, shutdown *server.ShutdownManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if shutdown != nil && shutdown.IsShuttingDown() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "shutting_down",
				"service":   "optiview",
				"in_flight": shutdown.InFlightCount(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "optiview",
			"sessions": sessions.Count(),
		})
	}
}
