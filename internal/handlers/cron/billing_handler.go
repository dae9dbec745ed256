package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/resilience"
	"github.com/kevin07696/billing-service/pkg/shutdown"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

const maxBatchSize = 1000

// BillingHandler handles cron job endpoints for subscription billing
type BillingHandler struct {
	subscriptionService ports.SubscriptionService
	logger              *zap.Logger
	cronSecret          string // Secret token for authenticating cron requests
	defaultBatchSize    int
	timeouts            *resilience.TimeoutConfig
	inflight            *shutdown.InFlightTracker
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	subscriptionService ports.SubscriptionService,
	logger *zap.Logger,
	cronSecret string,
	defaultBatchSize int,
) *BillingHandler {
	if defaultBatchSize <= 0 {
		defaultBatchSize = 100
	}
	return &BillingHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
		cronSecret:          cronSecret,
		defaultBatchSize:    defaultBatchSize,
		timeouts:            resilience.DefaultTimeoutConfig(),
		inflight:            shutdown.NewInFlightTracker("cron", logger),
	}
}

// Register mounts the cron routes on mux
func (h *BillingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /cron/process-billing", h.ProcessBilling)
	mux.HandleFunc("POST /cron/expiring-trials", h.NotifyExpiringTrials)
	mux.HandleFunc("GET /cron/health", h.HealthCheck)
}

// Shutdown stops accepting runs and waits for the current one
func (h *BillingHandler) Shutdown(ctx context.Context) error {
	return h.inflight.Shutdown(ctx)
}

// ProcessBillingRequest represents the request body for manual billing processing
type ProcessBillingRequest struct {
	AsOfDate  *string `json:"as_of_date"` // Optional: ISO date string, defaults to today
	BatchSize *int    `json:"batch_size"`
}

// BatchError is one failed subscription in a run
type BatchError struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
	Reconciliation bool   `json:"reconciliation_required,omitempty"`
}

// ProcessBillingResponse represents the response from billing processing
type ProcessBillingResponse struct {
	Success             bool         `json:"success"`
	AsOf                string       `json:"as_of"`
	Processed           int          `json:"processed"`
	SuccessCount        int          `json:"success_count"`
	FailureCount        int          `json:"failure_count"`
	SkippedCount        int          `json:"skipped_count"`
	ReconciliationCount int          `json:"reconciliation_count"`
	Errors              []BatchError `json:"errors,omitempty"`
	ProcessedAt         string       `json:"processed_at"`
}

// ExpiringTrialsResponse reports a trial reminder run
type ExpiringTrialsResponse struct {
	Success     bool         `json:"success"`
	Found       int          `json:"found"`
	Notified    int          `json:"notified"`
	FailedCount int          `json:"failure_count"`
	Errors      []BatchError `json:"errors,omitempty"`
	ProcessedAt string       `json:"processed_at"`
}

// ProcessBilling handles POST /cron/process-billing
func (h *BillingHandler) ProcessBilling(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Billing cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProcessBillingRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	// Zero means today in the service's clock
	var asOf time.Time
	if req.AsOfDate != nil {
		parsed, err := timeutil.ParseDate(*req.AsOfDate)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of_date format: %v", err))
			return
		}
		asOf = parsed
	}

	batchSize := h.defaultBatchSize
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > maxBatchSize {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("batch_size must be between 1 and %d", maxBatchSize))
			return
		}
		batchSize = *req.BatchSize
	}

	if !h.inflight.Add() {
		h.respondError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	defer h.inflight.Done()

	// The run outlives a dropped scheduler connection
	ctx, cancel := h.timeouts.CronContext(context.WithoutCancel(r.Context()))
	defer cancel()

	result, err := h.subscriptionService.ProcessDueBilling(ctx, asOf, batchSize)
	if err != nil {
		h.logger.Error("Billing processing failed", zap.Error(err))
		if result == nil {
			h.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	resp := ProcessBillingResponse{
		Success:             err == nil && result.FailedCount == 0,
		AsOf:                result.AsOf.Format(timeutil.DateLayout),
		Processed:           result.ProcessedCount,
		SuccessCount:        result.SuccessCount,
		FailureCount:        result.FailedCount,
		SkippedCount:        result.SkippedCount,
		ReconciliationCount: result.ReconciliationCount,
		Errors:              toBatchErrors(result.Errors),
		ProcessedAt:         time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Info("Billing processing completed",
		zap.Int("processed", resp.Processed),
		zap.Int("success", resp.SuccessCount),
		zap.Int("failed", resp.FailureCount),
		zap.Int("skipped", resp.SkippedCount),
		zap.Int("reconciliation", resp.ReconciliationCount),
	)

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent // 206 indicates partial success
	}
	h.respondJSON(w, status, resp)
}

// NotifyExpiringTrials handles POST /cron/expiring-trials
func (h *BillingHandler) NotifyExpiringTrials(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.inflight.Add() {
		h.respondError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	defer h.inflight.Done()

	ctx, cancel := h.timeouts.CronContext(context.WithoutCancel(r.Context()))
	defer cancel()

	result, err := h.subscriptionService.NotifyExpiringTrials(ctx)
	if err != nil {
		h.logger.Error("Trial reminders failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ExpiringTrialsResponse{
		Success:     result.FailedCount == 0,
		Found:       result.Found,
		Notified:    result.Notified,
		FailedCount: result.FailedCount,
		Errors:      toBatchErrors(result.Errors),
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent
	}
	h.respondJSON(w, status, resp)
}

// HealthCheck handles GET /cron/health for monitoring
func (h *BillingHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// authenticateRequest accepts the secret as X-Cron-Secret or a bearer token
func (h *BillingHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		// Development mode: no secret configured
		return true
	}
	if secretMatches(r.Header.Get("X-Cron-Secret"), h.cronSecret) {
		return true
	}
	return secretMatches(r.Header.Get("Authorization"), "Bearer "+h.cronSecret)
}

func secretMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func toBatchErrors(errs []ports.BillingError) []BatchError {
	return lo.Map(errs, func(e ports.BillingError, _ int) BatchError {
		return BatchError{
			SubscriptionID: e.SubscriptionID,
			Error:          e.Error,
			Reconciliation: e.Reconciliation,
		}
	})
}

func (h *BillingHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response
func (h *BillingHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
