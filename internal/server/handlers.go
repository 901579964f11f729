package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/shared"
)

// RunLister reads run history.
type RunLister interface {
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]*models.Run, error)
}

// StatusHandler reports that the listener is up.
func StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Online."))
	})
}

// IndexHandler serves the landing page error redirects point at.
func IndexHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Visit /run to start a playlist backup.\n"))
	})
}

// RunsHandler serves run history as JSON on /runs and /runs/{id}.
type RunsHandler struct {
	runs   RunLister
	logger *log.Logger
}

// NewRunsHandler creates a handler reading from runs.
func NewRunsHandler(runs RunLister, logger *log.Logger) *RunsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RunsHandler{runs: runs, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *RunsHandler) Routes() []string {
	return []string{"GET /runs", "GET /runs/{id}"}
}

func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := r.PathValue("id"); id != "" {
		h.show(w, r, id)
		return
	}
	h.list(w, r)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}

	writeJSON(w, http.StatusOK, runs, h.logger)
}

func (h *RunsHandler) show(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.runs.Get(r.Context(), id)
	switch {
	case errors.Is(err, shared.ErrRunNotFound):
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to load run", "run", id, "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *log.Logger) {
	data, err := shared.MarshalJSON(v, "")
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
