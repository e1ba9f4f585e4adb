package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// RunReader reads persisted runs.
type RunReader interface {
	LoadRun(ctx context.Context, id string) (*models.Run, error)
	ListRecentRuns(ctx context.Context) ([]models.RunSummary, error)
}

// NewHTTPHandler serves the read-only ledger API:
//
//	GET /health      liveness
//	GET /runs        recent run summaries, most recent first (?limit=N)
//	GET /runs/{id}   one full run document
func NewHTTPHandler(runs RunReader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &httpHandler{runs: runs, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /runs", h.listRuns)
	mux.HandleFunc("GET /runs/{id}", h.getRun)

	return RequestLogging(logger)(mux)
}

type httpHandler struct {
	runs   RunReader
	logger *slog.Logger
}

func (h *httpHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := ledger.MaxRecentRuns
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > ledger.MaxRecentRuns {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1-%d", ledger.MaxRecentRuns))
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecentRuns(r.Context())
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs[:min(limit, len(runs))])
}

func (h *httpHandler) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.runs.LoadRun(r.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		h.logger.Error("load run failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
