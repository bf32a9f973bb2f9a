package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// SnapshotReader returns the current snapshot.
type SnapshotReader interface {
	Read() (models.Snapshot, error)
}

// RunLister returns the most recent cycle runs, newest first.
type RunLister interface {
	RecentRuns(k int) ([]models.CycleRun, error)
}

const defaultRunLimit = 20

type Handler struct {
	snapshots SnapshotReader
	runs      RunLister
}

// NewHandler creates a handler. runs may be nil, which disables /api/runs.
func NewHandler(snapshots SnapshotReader, runs RunLister) *Handler {
	return &Handler{snapshots: snapshots, runs: runs}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListAircraft returns the whole snapshot, optionally narrowed by ?category=.
func (h *Handler) ListAircraft(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Read()
	if err != nil {
		logger.Error("Failed to read snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}

	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filtered := models.Snapshot{}
		for _, m := range snap {
			if strings.EqualFold(m.Category, category) {
				filtered = append(filtered, m)
			}
		}
		snap = filtered
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Read()
	if err != nil {
		logger.Error("Failed to read snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}

	m, ok := snap.Find(chi.URLParam(r, "hex"))
	if !ok {
		writeError(w, http.StatusNotFound, "aircraft not in current snapshot")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListRuns returns recent cycle runs; ?limit= caps the count.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run log not configured")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.RecentRuns(limit)
	if err != nil {
		logger.Error("Failed to list cycle runs: %v", err)
		writeError(w, http.StatusInternalServerError, "run log unavailable")
		return
	}
	if runs == nil {
		runs = []models.CycleRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
