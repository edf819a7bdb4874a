package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/optiview/optiview/internal/catalog"
	"github.com/optiview/optiview/internal/observability"
	"github.com/optiview/optiview/internal/session"
	"github.com/optiview/optiview/internal/snapshot"
)

// SnapshotHandler serves the snapshot registry routes.
type SnapshotHandler struct {
	sessions *session.Manager
	writer   *snapshot.Writer
	catalog  *catalog.Catalog
	dir      string
	log      *slog.Logger
}

// NewSnapshotHandler creates a snapshot handler writing files into dir.
func NewSnapshotHandler(
	sessions *session.Manager,
	writer *snapshot.Writer,
	cat *catalog.Catalog,
	dir string,
	log *slog.Logger,
) *SnapshotHandler {
	return &SnapshotHandler{
		sessions: sessions,
		writer:   writer,
		catalog:  cat,
		dir:      dir,
		log:      log,
	}
}

// CreateSnapshotRequest freezes a session's loaded study into a snapshot.
type CreateSnapshotRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
}

// SnapshotListResponse lists the cataloged snapshots, newest first.
type SnapshotListResponse struct {
	Snapshots []*catalog.Record `json:"snapshots"`
	Count     int               `json:"count"`
}

// Create writes the session's loaded study to a snapshot file and registers
// it. Files are named by fingerprint, so snapshotting the same data again
// rewrites the same file and the catalog returns the existing record.
func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", GetRequestID(r.Context()))
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", GetRequestID(r.Context()))
		return
	}

	s, err := h.sessions.Get(req.SessionID)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	st := s.Study()
	if st == nil {
		writeAPIError(w, r, errNoStudy())
		return
	}

	path := filepath.Join(h.dir, fmt.Sprintf("%016x.snapshot", st.Fingerprint))
	start := time.Now()
	info, err := h.writer.Write(r.Context(), path, st)
	observability.RecordSnapshotWrite(time.Since(start), err)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	rec, err := h.catalog.Register(r.Context(), info, req.Name, st.SchemaSource, st.TableSource)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// List returns the cataloged snapshots, newest first.
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.List(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if records == nil {
		records = []*catalog.Record{}
	}
	writeJSON(w, http.StatusOK, SnapshotListResponse{Snapshots: records, Count: len(records)})
}

// Get resolves one snapshot by id or fingerprint prefix.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.catalog.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete removes a snapshot from the catalog and deletes its file. A file
// already gone is not an error; the catalog record is what matters.
func (h *SnapshotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.catalog.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		h.log.Warn("failed to remove snapshot file", "path", rec.Path, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
