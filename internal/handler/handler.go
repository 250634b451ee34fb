package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/livite/outreach-backend/internal/runlock"
	"github.com/livite/outreach-backend/internal/service"
)

// PipelineHandler exposes the orchestrator over HTTP so a scheduler (or a
// human) can trigger runs remotely. Runs are serialized: one at a time in
// process, and the lock file keeps the CLI runner out too.
type PipelineHandler struct {
	Orch *service.Orchestrator
	// LockFile guards against a concurrent CLI run. Empty disables it.
	LockFile string

	busy    atomic.Bool
	mu      sync.Mutex
	lastRun *service.RunSummary
}

func (h *PipelineHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Status)
	r.Get("/health", h.Health)
	r.Post("/cron", h.Run)
	r.Post("/sync", h.Run)
	r.Post("/cron/{step}", h.RunStep)
	return r
}

func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if last := h.last(); last != nil {
		resp["last_run_healthy"] = last.Healthy()
		resp["last_run_finished_at"] = last.FinishedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status is the landing page: what this service is and what its last run
// looked like.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service": "outreach-backend",
		"running": h.busy.Load(),
	}
	if last := h.last(); last != nil {
		resp["last_run"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.runLocked(w, r, "")
}

func (h *PipelineHandler) RunStep(w http.ResponseWriter, r *http.Request) {
	h.runLocked(w, r, chi.URLParam(r, "step"))
}

func (h *PipelineHandler) runLocked(w http.ResponseWriter, r *http.Request, step string) {
	if !h.busy.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run already in progress"})
		return
	}
	defer h.busy.Store(false)

	if h.LockFile != "" {
		lock, err := runlock.Acquire(h.LockFile)
		if errors.Is(err, runlock.ErrHeld) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "run already in progress"})
			return
		}
		if err != nil {
			log.Println("⚠️ Run lock failed:", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run lock failed"})
			return
		}
		defer lock.Release()
	}

	var summary service.RunSummary
	if step == "" {
		summary = h.Orch.Run(r.Context())
	} else {
		var err error
		summary, err = h.Orch.RunStep(r.Context(), step)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	h.mu.Lock()
	h.lastRun = &summary
	h.mu.Unlock()

	status := http.StatusOK
	if !summary.Healthy() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, summary)
}

func (h *PipelineHandler) last() *service.RunSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastRun
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("⚠️ Failed to write response:", err)
	}
}
