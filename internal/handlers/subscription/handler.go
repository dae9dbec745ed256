package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
	"github.com/kevin07696/billing-service/pkg/resilience"
)

const maxBodyBytes = 1 << 20

// Handler exposes subscription operations as a JSON API
type Handler struct {
	service  ports.SubscriptionService
	logger   *zap.Logger
	validate *validator.Validate
	timeouts *resilience.TimeoutConfig
}

// NewHandler creates a new subscription handler
func NewHandler(service ports.SubscriptionService, logger *zap.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		service:  service,
		logger:   logger,
		validate: v,
		timeouts: resilience.DefaultTimeoutConfig(),
	}
}

// billingContext outlives a client disconnect. Once a card operation
// reaches the gateway it must run to a known outcome.
func (h *Handler) billingContext(r *http.Request) (context.Context, context.CancelFunc) {
	return h.timeouts.ServiceContext(context.WithoutCancel(r.Context()))
}

// Register mounts the API routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/subscriptions", h.Create)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/subscriptions/{id}", h.Destroy)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/card", h.StoreCard)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/plan", h.SwitchPlan)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/discount", h.ChangeDiscount)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/amount", h.OverrideAmount)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/refresh-pricing", h.RefreshPricing)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/charge", h.Charge)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}/payments", h.Payments)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}/payment-info", h.NeedsPaymentInfo)
}

// CreateRequest is the body of POST /api/v1/subscriptions
type CreateRequest struct {
	NextRenewalAt *time.Time `json:"next_renewal_at"`
	DiscountID    *string    `json:"discount_id"`
	AffiliateID   *string    `json:"affiliate_id"`
	SubscriberID  string     `json:"subscriber_id" validate:"required"`
	PlanID        string     `json:"plan_id" validate:"required"`
}

// SwitchPlanRequest is the body of POST .../plan
type SwitchPlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// ChangeDiscountRequest is the body of POST .../discount. A null
// discount_id removes the account discount.
type ChangeDiscountRequest struct {
	DiscountID *string `json:"discount_id"`
}

// OverrideAmountRequest is the body of POST .../amount
type OverrideAmountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

// OutcomeResponse reports the result of a card store or charge
type OutcomeResponse struct {
	Subscription *domain.Subscription  `json:"subscription"`
	Payment      *domain.PaymentRecord `json:"payment,omitempty"`
	Charged      bool                  `json:"charged"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error                  string `json:"error"`
	Code                   string `json:"code,omitempty"`
	Field                  string `json:"field,omitempty"`
	ReconciliationRequired bool   `json:"reconciliation_required,omitempty"`
}

// Create handles POST /api/v1/subscriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.logger.Info("CreateSubscription request received",
		zap.String("subscriber_id", req.SubscriberID),
		zap.String("plan_id", req.PlanID),
	)

	sub, err := h.service.Create(r.Context(), ports.CreateSubscriptionRequest{
		NextRenewalAt: req.NextRenewalAt,
		DiscountID:    req.DiscountID,
		AffiliateID:   req.AffiliateID,
		SubscriberID:  req.SubscriberID,
		PlanID:        req.PlanID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sub)
}

// Get handles GET /api/v1/subscriptions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// Destroy handles DELETE /api/v1/subscriptions/{id}
func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.logger.Info("DestroySubscription request received", zap.String("subscription_id", id))

	if err := h.service.Destroy(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StoreCard handles POST /api/v1/subscriptions/{id}/card
func (h *Handler) StoreCard(w http.ResponseWriter, r *http.Request) {
	var card domain.Card
	if !h.decode(w, r, &card) {
		return
	}

	id := r.PathValue("id")
	h.logger.Info("StoreCard request received",
		zap.String("subscription_id", id),
		zap.String("last_four", card.LastFour()),
	)

	ctx, cancel := h.billingContext(r)
	defer cancel()

	outcome, err := h.service.StoreCard(ctx, id, &card)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// SwitchPlan handles POST /api/v1/subscriptions/{id}/plan
func (h *Handler) SwitchPlan(w http.ResponseWriter, r *http.Request) {
	var req SwitchPlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub, err := h.service.SwitchPlan(r.Context(), r.PathValue("id"), req.PlanID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// ChangeDiscount handles POST /api/v1/subscriptions/{id}/discount
func (h *Handler) ChangeDiscount(w http.ResponseWriter, r *http.Request) {
	var req ChangeDiscountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DiscountID != nil && *req.DiscountID == "" {
		req.DiscountID = nil
	}
	sub, err := h.service.ChangeDiscount(r.Context(), r.PathValue("id"), req.DiscountID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// OverrideAmount handles POST /api/v1/subscriptions/{id}/amount
func (h *Handler) OverrideAmount(w http.ResponseWriter, r *http.Request) {
	var req OverrideAmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub, err := h.service.OverrideAmount(r.Context(), r.PathValue("id"), *req.Amount)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// RefreshPricing handles POST /api/v1/subscriptions/{id}/refresh-pricing
func (h *Handler) RefreshPricing(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.RefreshPricing(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sub)
}

// Charge handles POST /api/v1/subscriptions/{id}/charge
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.logger.Info("Charge request received", zap.String("subscription_id", id))

	ctx, cancel := h.billingContext(r)
	defer cancel()

	outcome, err := h.service.Charge(ctx, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// Payments handles GET /api/v1/subscriptions/{id}/payments
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.Payments(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = []*domain.PaymentRecord{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// NeedsPaymentInfo handles GET /api/v1/subscriptions/{id}/payment-info
func (h *Handler) NeedsPaymentInfo(w http.ResponseWriter, r *http.Request) {
	needs, err := h.service.NeedsPaymentInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"needs_payment_info": needs})
}

// decode reads and validates a JSON body. It writes the error response
// and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondValidation(w, toValidationError(err))
		return false
	}
	return true
}

// toValidationError reports the first failing field
func toValidationError(err error) *pkgerrors.ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return pkgerrors.NewValidationError("", err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return pkgerrors.NewValidationError(field, field+" is required.")
	case "luhn_checksum", "numeric", "min", "max":
		if fe.StructField() == "Number" {
			return pkgerrors.NewValidationError(field, "Card number is invalid.")
		}
		return pkgerrors.NewValidationError(field, field+" is out of range.")
	default:
		return pkgerrors.NewValidationError(field, field+" is invalid.")
	}
}

func (h *Handler) respondOutcome(w http.ResponseWriter, outcome *ports.BillingOutcome) {
	h.respondJSON(w, http.StatusOK, OutcomeResponse{
		Subscription: outcome.Subscription,
		Payment:      outcome.Payment,
		Charged:      outcome.Charged,
	})
}

func (h *Handler) respondValidation(w http.ResponseWriter, v *pkgerrors.ValidationError) {
	h.respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error: v.Error(),
		Code:  string(domain.ErrorCodeValidationFailed),
		Field: v.Field,
	})
}

// handleServiceError maps service errors to HTTP statuses
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *pkgerrors.ValidationError
		paymentErr    *pkgerrors.PaymentError
	)
	switch {
	case pkgerrors.IsReconciliation(err):
		h.logger.Error("Reconciliation required",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:                  pkgerrors.UserMessage(err),
			ReconciliationRequired: true,
		})
	case errors.As(err, &paymentErr):
		h.respondJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error: paymentErr.Error(),
			Code:  paymentErr.Code,
		})
	case errors.As(err, &validationErr):
		h.respondValidation(w, validationErr)
	case domain.IsNotFoundError(err):
		h.respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  string(domain.GetErrorCode(err)),
		})
	case errors.Is(err, domain.ErrSubscriptionBusy),
		errors.Is(err, domain.ErrSubscriptionExists),
		errors.Is(err, domain.ErrSubscriptionStale):
		h.respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  string(domain.GetErrorCode(err)),
		})
	case domain.IsValidationError(err):
		h.respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  string(domain.GetErrorCode(err)),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.respondJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "request canceled"})
	default:
		// Log internal errors but don't expose details to client
		h.logger.Error("Subscription request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
