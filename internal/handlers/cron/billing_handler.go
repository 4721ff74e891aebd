package cron

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/services/scheduler"
)

// BillingHandler exposes the engine's manual/admin triggers over HTTP.
// These endpoints are called by an external scheduler (Cloud Scheduler, a
// sidecar cron) or by operators; they are authenticated with a shared
// secret.
type BillingHandler struct {
	sched      *scheduler.Scheduler
	processor  scheduler.CycleProcessor
	overage    scheduler.OverageProcessor
	logger     *zap.Logger
	cronSecret string
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	sched *scheduler.Scheduler,
	processor scheduler.CycleProcessor,
	overage scheduler.OverageProcessor,
	logger *zap.Logger,
	cronSecret string,
) *BillingHandler {
	return &BillingHandler{
		sched:      sched,
		processor:  processor,
		overage:    overage,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// ProcessCycleRequest identifies a single cycle to process
type ProcessCycleRequest struct {
	CycleID string `json:"cycle_id"`
}

// ProcessOverageRequest identifies the tenant to bill overages for. When
// TenantID is empty every tenant with pending rows is billed.
type ProcessOverageRequest struct {
	TenantID string `json:"tenant_id"`
}

// PassResponse reports the outcome of one dispatch pass
type PassResponse struct {
	Success     bool   `json:"success"`
	Dispatched  int    `json:"dispatched"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	ProcessedAt string `json:"processed_at"`
}

// ProcessBilling handles POST /cron/process-billing: one full
// discovery+dispatch pass over due billing cycles.
func (h *BillingHandler) ProcessBilling(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("billing pass triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.sched.ProcessBillingCycles(r.Context())
	if err != nil {
		h.logger.Error("billing pass failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := PassResponse{
		Success:     result.Failed == 0,
		Dispatched:  result.Dispatched,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent) // 206 indicates partial success
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// ProcessCycle handles POST /cron/process-cycle: drive a single billing
// cycle by id. Safe to re-invoke; the claim guard makes a concurrent or
// repeated call a no-op.
func (h *BillingHandler) ProcessCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProcessCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CycleID == "" {
		h.respondError(w, http.StatusBadRequest, "cycle_id is required")
		return
	}

	if err := h.processor.Process(r.Context(), req.CycleID); err != nil {
		h.logger.Error("cycle processing failed",
			zap.String("cycle_id", req.CycleID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"cycle_id": req.CycleID,
	})
}

// ProcessOverage handles POST /cron/process-overage: bill pending usage
// overages for one tenant, or for all tenants when no tenant_id is given.
func (h *BillingHandler) ProcessOverage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProcessOverageRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var err error
	if req.TenantID != "" {
		err = h.overage.ProcessTenant(r.Context(), req.TenantID)
	} else {
		err = h.overage.ProcessAll(r.Context())
	}
	if err != nil {
		h.logger.Error("overage processing failed",
			zap.String("tenant_id", req.TenantID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"tenant_id": req.TenantID,
	})
}

// Cleanup handles POST /cron/cleanup: purge terminal cycles outside the
// retention window.
func (h *BillingHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	purged, err := h.sched.RunCleanup(r.Context())
	if err != nil {
		h.logger.Error("cleanup failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"purged_rows":  purged,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status handles GET /cron/status for monitoring the scheduler loop
func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.respondJSON(w, http.StatusOK, h.sched.GetStatus())
}

// HealthCheck handles GET /cron/health for liveness probes
func (h *BillingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// authenticateRequest verifies the cron request is authorized
func (h *BillingHandler) authenticateRequest(r *http.Request) bool {
	// Check X-Cron-Secret header
	if secret := r.Header.Get("X-Cron-Secret"); secret != "" && secret == h.cronSecret {
		return true
	}

	// Check Authorization header (Bearer token)
	if r.Header.Get("Authorization") == "Bearer "+h.cronSecret {
		return true
	}

	return false
}

func (h *BillingHandler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *BillingHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
