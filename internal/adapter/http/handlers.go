package http

import (
	"log/slog"
	"net/http"

	"github.com/code2api/code2api/internal/domain/workflow"
	"github.com/code2api/code2api/internal/invoker"
	"github.com/code2api/code2api/internal/middleware"
	"github.com/code2api/code2api/internal/service"
)

// maxBodySize caps request bodies; repository snapshots can be large.
const maxBodySize = 32 << 20

// Handlers bundles the orchestrator and invoker behind the HTTP surface.
type Handlers struct {
	orch    *service.Orchestrator
	inv     *invoker.Invoker
	limiter *middleware.RateLimiter
	log     *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(orch *service.Orchestrator, inv *invoker.Invoker, log *slog.Logger) *Handlers {
	return &Handlers{orch: orch, inv: inv, log: log}
}

// SetLimiter exposes the rate limiter's occupancy through WorkflowStats.
func (h *Handlers) SetLimiter(rl *middleware.RateLimiter) {
	h.limiter = rl
}

type startWorkflowRequest struct {
	Repo   string               `json:"repo"`
	Branch string               `json:"branch"`
	Files  []workflow.FileInput `json:"files"`
	Wait   bool                 `json:"wait,omitempty"`
}

// StartWorkflow launches a run. The default is asynchronous: 202 with the
// run ID, to be polled via GetWorkflow. With wait=true the response is the
// finished run.
func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[startWorkflowRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	req := workflow.Request{Repo: body.Repo, Branch: body.Branch, Files: body.Files}

	if body.Wait {
		run, err := h.orch.Execute(r.Context(), req)
		if err != nil {
			writeDomainError(w, err, "workflow failed to start")
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	id, err := h.orch.Start(req)
	if err != nil {
		writeDomainError(w, err, "workflow failed to start")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetWorkflow returns the registry record for a run.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	run, err := h.orch.Status(id)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelWorkflow requests cooperative cancellation of a run.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.orch.Cancel(id); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancellation requested"})
}

// WorkflowStats reports run counts by state, plus rate limiter occupancy
// when a limiter is attached.
func (h *Handlers) WorkflowStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"runs": h.orch.Stats()}
	if h.limiter != nil {
		resp["rate_limiter"] = map[string]int{"tracked_clients": h.limiter.Len()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CacheStats reports per-namespace cache statistics.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inv.Stats(r.Context())
	if err != nil {
		h.log.Error("cache stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache drops every entry from every namespace.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.inv.Clear(r.Context()); err != nil {
		h.log.Error("cache clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CleanupCache sweeps expired entries and reports how many were removed.
func (h *Handlers) CleanupCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.inv.CleanupExpired(r.Context())
	if err != nil {
		h.log.Error("cache cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
