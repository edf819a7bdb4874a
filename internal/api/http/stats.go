package http

import (
	"net/http"
	"strconv"

	"github.com/optiview/optiview/internal/observability"
	"github.com/optiview/optiview/internal/session"
)

// StatsHandler serves the usage summary route.
type StatsHandler struct {
	usage    *observability.UsageStats
	sessions *session.Manager
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(usage *observability.UsageStats, sessions *session.Manager) *StatsHandler {
	return &StatsHandler{usage: usage, sessions: sessions}
}

// StatsResponse is a point-in-time usage summary: which columns sessions
// optimize over and plot, and how many sessions are open.
type StatsResponse struct {
	TopObjectives  []observability.ColumnUsage `json:"top_objectives"`
	TopSelections  []observability.ColumnUsage `json:"top_selections"`
	ActiveSessions int                         `json:"active_sessions"`
}

// Stats returns the usage summary. The top query parameter bounds the list
// lengths, default 10.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer", GetRequestID(r.Context()))
			return
		}
		top = n
	}

	resp := StatsResponse{
		TopObjectives:  h.usage.TopObjectives(top),
		TopSelections:  h.usage.TopSelections(top),
		ActiveSessions: h.sessions.Count(),
	}
	if resp.TopObjectives == nil {
		resp.TopObjectives = []observability.ColumnUsage{}
	}
	if resp.TopSelections == nil {
		resp.TopSelections = []observability.ColumnUsage{}
	}

	writeJSON(w, http.StatusOK, resp)
}
