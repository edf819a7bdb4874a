package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/optiview/optiview/internal/catalog"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/export"
	"github.com/optiview/optiview/internal/observability"
	"github.com/optiview/optiview/internal/pareto"
	"github.com/optiview/optiview/internal/session"
	"github.com/optiview/optiview/internal/snapshot"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

// SessionHandler serves the session lifecycle and view-state routes.
type SessionHandler struct {
	sessions *session.Manager
	loader   *study.Loader
	catalog  *catalog.Catalog
	exporter *export.Exporter
	usage    *observability.UsageStats
	log      *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(
	sessions *session.Manager,
	loader *study.Loader,
	cat *catalog.Catalog,
	exporter *export.Exporter,
	usage *observability.UsageStats,
	log *slog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		loader:   loader,
		catalog:  cat,
		exporter: exporter,
		usage:    usage,
		log:      log,
	}
}

// CreateSessionRequest opens a session, optionally loading a study into it.
// Schema and Table name objects in storage; Snapshot names a cataloged
// snapshot by id or fingerprint prefix.
type CreateSessionRequest struct {
	Schema   string `json:"schema,omitempty"`
	Table    string `json:"table,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
}

// CreateSessionResponse describes the opened session and, when a study was
// loaded, its shape.
type CreateSessionResponse struct {
	SessionID   string       `json:"session_id"`
	CreatedAt   time.Time    `json:"created_at"`
	RowCount    int          `json:"row_count,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Columns     []ColumnInfo `json:"columns,omitempty"`
}

// ColumnInfo describes one dataset column for axis and objective pickers.
type ColumnInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Width      int    `json:"width"`
	Role       string `json:"role,omitempty"`
	Derived    bool   `json:"derived,omitempty"`
	Base       string `json:"base,omitempty"`
	Selectable bool   `json:"selectable"`
}

// SessionListResponse lists the open sessions, oldest first.
type SessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// Create opens a session. A schema/table pair loads a fresh study through
// object storage, a snapshot reference reopens a cataloged snapshot, and an
// empty body opens the session bare. The study is built before the session
// is registered, so a failed load never leaves an empty session behind.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}

	st, err := h.loadStudy(r.Context(), req)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	s, err := h.sessions.Create()
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	observability.SetActiveSessions(h.sessions.Count())

	resp := CreateSessionResponse{
		SessionID: s.ID(),
		CreatedAt: s.CreatedAt(),
	}
	if st != nil {
		s.LoadStudy(st)
		resp.RowCount = st.Data.RowCount()
		resp.Fingerprint = fmt.Sprintf("%016x", st.Fingerprint)
		resp.Columns = columnInfos(st)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// loadStudy builds the study named by the request, or nil for a bare session.
func (h *SessionHandler) loadStudy(ctx context.Context, req CreateSessionRequest) (*study.Study, error) {
	switch {
	case req.Snapshot != "" && (req.Schema != "" || req.Table != ""):
		return nil, errors.New(errors.ErrCategorySelection, errors.CodeBadFormat,
			"specify schema and table or a snapshot, not both")
	case req.Snapshot != "":
		return h.loadFromSnapshot(ctx, req.Snapshot)
	case req.Schema != "" && req.Table != "":
		start := time.Now()
		st, err := h.loader.Load(ctx, req.Schema, req.Table)
		observability.RecordStudyLoad(studyRows(st), time.Since(start), err)
		return st, err
	case req.Schema != "" || req.Table != "":
		return nil, errors.New(errors.ErrCategorySelection, errors.CodeBadFormat,
			"schema and table must be given together")
	default:
		return nil, nil
	}
}

func (h *SessionHandler) loadFromSnapshot(ctx context.Context, ref string) (*study.Study, error) {
	rec, err := h.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	st, _, err := snapshot.Read(ctx, rec.Path)
	observability.RecordStudyLoad(studyRows(st), time.Since(start), err)
	return st, err
}

func studyRows(st *study.Study) int {
	if st == nil {
		return 0
	}
	return st.Data.RowCount()
}

// List returns every open session, oldest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List()
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: infos, Count: len(infos)})
}

// Get returns one session's listing entry.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// Delete closes a session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.PathValue("id")); err != nil {
		writeAPIError(w, r, err)
		return
	}
	observability.SetActiveSessions(h.sessions.Count())
	w.WriteHeader(http.StatusNoContent)
}

// View assembles the session's current rendering payload. With the Pareto
// toggle on this is the recomputation pass: the response reflects every
// mutation made before this call.
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	start := time.Now()
	view, err := s.CurrentView()
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	if view.ShowPareto {
		observability.RecordParetoRun(len(view.ParetoRows), time.Since(start), nil)
		for _, o := range view.Objectives {
			h.usage.RecordObjective(o.Name, string(o.Sense))
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// ColumnsResponse lists the dataset columns of the loaded study.
type ColumnsResponse struct {
	Columns []ColumnInfo `json:"columns"`
	Count   int          `json:"count"`
}

// Columns lists the loaded study's columns with their declared roles. Array
// columns appear with their widths but are not selectable; their derived
// reductions are.
func (h *SessionHandler) Columns(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	st := s.Study()
	if st == nil {
		writeAPIError(w, r, errNoStudy())
		return
	}

	infos := columnInfos(st)
	writeJSON(w, http.StatusOK, ColumnsResponse{Columns: infos, Count: len(infos)})
}

func columnInfos(st *study.Study) []ColumnInfo {
	series := st.Data.Series()
	infos := make([]ColumnInfo, len(series))
	for i, col := range series {
		info := ColumnInfo{
			Name:       col.Name,
			Kind:       string(col.Kind),
			Width:      col.Width,
			Derived:    col.Derived,
			Base:       col.Base,
			Selectable: col.IsScalar(),
		}
		if role, ok := st.RoleOf(col.Name); ok {
			info.Role = string(role)
		}
		infos[i] = info
	}
	return infos
}

// SelectionRequest replaces the selected columns for one role.
type SelectionRequest struct {
	Role  string   `json:"role"`
	Names []string `json:"names"`
}

// SelectionResponse echoes the applied selection.
type SelectionResponse struct {
	Role  string   `json:"role"`
	Names []string `json:"names"`
}

// Selection replaces the selected columns for one role.
func (h *SessionHandler) Selection(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}

	if err := s.SelectVariables(types.Role(req.Role), req.Names); err != nil {
		writeAPIError(w, r, err)
		return
	}
	for _, name := range req.Names {
		h.usage.RecordSelection(name)
	}

	resp := SelectionResponse{Role: req.Role, Names: req.Names}
	if resp.Names == nil {
		resp.Names = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SenseRequest sets the optimization direction for one column.
type SenseRequest struct {
	Name  string `json:"name"`
	Sense string `json:"sense"`
}

// Sense records the optimization direction for one column.
func (h *SessionHandler) Sense(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	var req SenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}

	if err := s.SetObjectiveSense(req.Name, types.Sense(req.Sense)); err != nil {
		writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SenseRequest{Name: req.Name, Sense: req.Sense})
}

// ParetoRequest switches front computation on or off.
type ParetoRequest struct {
	Enabled bool `json:"enabled"`
}

// Pareto switches front computation on or off. An under-specified objective
// selection surfaces on the next view call, not here.
func (h *SessionHandler) Pareto(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	var req ParetoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}

	s.TogglePareto(req.Enabled)
	writeJSON(w, http.StatusOK, ParetoRequest{Enabled: req.Enabled})
}

// HighlightRequest marks one row as highlighted.
type HighlightRequest struct {
	Row *int `json:"row"`
}

// HighlightResponse reports the highlight after the change. Highlighting the
// already highlighted row clears it, so the result can be null.
type HighlightResponse struct {
	HighlightedRow *int `json:"highlighted_row"`
}

// Highlight marks a row as highlighted, or clears it when the row is already
// highlighted.
func (h *SessionHandler) Highlight(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	var req HighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}
	if req.Row == nil {
		writeError(w, http.StatusBadRequest, "row is required", GetRequestID(r.Context()))
		return
	}

	if err := s.SetHighlight(*req.Row); err != nil {
		writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HighlightResponse{HighlightedRow: s.Highlight()})
}

// ClearHighlight removes the highlight, if any.
func (h *SessionHandler) ClearHighlight(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	s.ClearHighlight()
	w.WriteHeader(http.StatusNoContent)
}

// FrontResponse carries one explicit front computation.
type FrontResponse struct {
	Rows       []int             `json:"rows"`
	Objectives []types.Objective `json:"objectives"`
	Count      int               `json:"count"`
}

// Front computes the Pareto front over the session's current objective
// selection, regardless of the view toggle.
func (h *SessionHandler) Front(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	st := s.Study()
	if st == nil {
		writeAPIError(w, r, errNoStudy())
		return
	}

	objectives := s.Objectives()
	start := time.Now()
	rows, err := pareto.Front(st.Data, objectives)
	observability.RecordParetoRun(len(rows), time.Since(start), err)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	for _, o := range objectives {
		h.usage.RecordObjective(o.Name, string(o.Sense))
	}

	if rows == nil {
		rows = []int{}
	}
	writeJSON(w, http.StatusOK, FrontResponse{Rows: rows, Objectives: objectives, Count: len(rows)})
}

// ExportRequest renders the session's working set to a file.
type ExportRequest struct {
	Format      string   `json:"format"`
	Destination string   `json:"destination,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Rows        []int    `json:"rows,omitempty"`
}

// Export renders the session's working set and publishes it to object
// storage. With the Pareto toggle on the export carries front membership and
// the highlight.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	st := s.Study()
	if st == nil {
		writeAPIError(w, r, errNoStudy())
		return
	}

	view, err := s.CurrentView()
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	ereq := export.Request{
		SessionID:   s.ID(),
		Columns:     req.Columns,
		Rows:        req.Rows,
		Format:      format,
		Destination: req.Destination,
		Highlight:   view.HighlightedRow,
	}
	if view.ShowPareto {
		ereq.FrontRows = view.ParetoRows
		if ereq.FrontRows == nil {
			ereq.FrontRows = []int{}
		}
	}

	result, err := h.exporter.Export(r.Context(), st, ereq)
	observability.RecordExport(string(format), err)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func errNoStudy() error {
	return errors.New(errors.ErrCategorySelection, errors.CodeNoStudyLoaded,
		"no study loaded")
}
