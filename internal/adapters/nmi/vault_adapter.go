// Package nmi implements ports.CardVault over the NMI customer vault
// direct post API.
package nmi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
	"github.com/kevin07696/billing-service/pkg/httpclient"
	"github.com/kevin07696/billing-service/pkg/resilience"
)

// VaultAdapter implements the CardVault port
type VaultAdapter struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *gobreaker.CircuitBreaker[*response]
	backoff    resilience.BackoffStrategy
}

var _ ports.CardVault = (*VaultAdapter)(nil)

// NewVaultAdapter creates a new NMI customer vault adapter
func NewVaultAdapter(config *Config, logger *zap.Logger) *VaultAdapter {
	clientCfg := httpclient.GatewayConfig()
	clientCfg.InsecureSkipVerify = config.InsecureSkipVerify
	return NewVaultAdapterWithClient(config, httpclient.New(clientCfg, config.Timeout), logger)
}

// NewVaultAdapterWithClient creates an adapter using the given HTTP client
func NewVaultAdapterWithClient(config *Config, client *http.Client, logger *zap.Logger) *VaultAdapter {
	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "nmi",
		MaxRequests: config.BreakerMaxRequests,
		Timeout:     config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Gateway circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Declines prove the gateway is healthy
		IsSuccessful: func(err error) bool {
			var paymentErr *pkgerrors.PaymentError
			return err == nil || errors.As(err, &paymentErr)
		},
	})

	return &VaultAdapter{
		config:     config,
		httpClient: client,
		logger:     logger,
		breaker:    breaker,
		backoff:    resilience.DefaultExponentialBackoff(),
	}
}

// WithBackoff replaces the unstore retry backoff
func (a *VaultAdapter) WithBackoff(b resilience.BackoffStrategy) *VaultAdapter {
	a.backoff = b
	return a
}

// Store adds a card to the customer vault
func (a *VaultAdapter) Store(ctx context.Context, card *domain.Card, opts ports.VaultOptions) (*ports.StoreResult, error) {
	form := a.cardForm(card, opts)
	form.Set("customer_vault", "add_customer")

	resp, err := a.post(ctx, "store", form)
	if err != nil {
		return nil, err
	}
	if resp.CustomerVaultID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "gateway returned no customer vault id")
	}

	return &ports.StoreResult{
		BillingID: resp.CustomerVaultID,
		Token:     tokenOf(resp),
		Message:   resp.ResponseText,
	}, nil
}

// Update replaces the card stored under billingID
func (a *VaultAdapter) Update(ctx context.Context, billingID string, card *domain.Card, opts ports.VaultOptions) (*ports.StoreResult, error) {
	form := a.cardForm(card, opts)
	form.Set("customer_vault", "update_customer")
	form.Set("customer_vault_id", billingID)

	resp, err := a.post(ctx, "update", form)
	if err != nil {
		return nil, err
	}

	return &ports.StoreResult{
		BillingID: billingID,
		Token:     tokenOf(resp),
		Message:   resp.ResponseText,
	}, nil
}

// Unstore deletes the vault record. Transport failures are retried with
// backoff; deleting a record twice is harmless.
func (a *VaultAdapter) Unstore(ctx context.Context, billingID string) error {
	form := url.Values{}
	form.Set("customer_vault", "delete_customer")
	form.Set("customer_vault_id", billingID)

	return resilience.Retry(ctx, a.config.MaxRetries, a.backoff, isRetryable,
		func(attempt int, delay time.Duration) {
			a.logger.Info("Retrying unstore",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", a.config.MaxRetries),
				zap.Duration("backoff_delay", delay),
			)
		},
		func(ctx context.Context) error {
			_, err := a.post(ctx, "unstore", form)
			return err
		})
}

// Purchase charges the stored card once. A transport failure or timeout
// is returned as a GATEWAY_* domain error; the charge may have posted.
func (a *VaultAdapter) Purchase(ctx context.Context, req ports.PurchaseRequest) (*domain.ChargeResult, error) {
	amount := decimal.New(req.AmountCents, -2)

	form := url.Values{}
	form.Set("type", "sale")
	form.Set("customer_vault_id", req.BillingID)
	form.Set("amount", amount.StringFixed(2))
	if req.OrderID != "" {
		form.Set("orderid", req.OrderID)
	}
	if req.Description != "" {
		form.Set("order_description", req.Description)
	}

	resp, err := a.post(ctx, "purchase", form)
	if err != nil {
		return nil, err
	}

	return &domain.ChargeResult{
		Authorization:    resp.TransactionID,
		AuthorizedAmount: amount,
		Message:          resp.ResponseText,
		Metadata: map[string]string{
			"authcode":      resp.AuthCode,
			"response_code": resp.ResponseCode,
			"avsresponse":   resp.AVSResponse,
			"cvvresponse":   resp.CVVResponse,
			"orderid":       req.OrderID,
		},
	}, nil
}

// post sends one request through the circuit breaker
func (a *VaultAdapter) post(ctx context.Context, op string, form url.Values) (*response, error) {
	form.Set("security_key", a.config.SecurityKey)

	startTime := time.Now()
	resp, err := a.breaker.Execute(func() (*response, error) {
		return a.send(ctx, form)
	})
	elapsed := time.Since(startTime)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		a.logger.Warn("Circuit breaker is open, rejecting gateway request",
			zap.String("operation", op),
			zap.String("circuit_state", a.breaker.State().String()),
		)
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnavailable, "payment gateway unavailable", err)
	}

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("order_id", form.Get("orderid")),
		zap.String("amount", form.Get("amount")),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		a.logger.Warn("Gateway request failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	a.logger.Info("Gateway request completed", append(fields,
		zap.String("transaction_id", resp.TransactionID),
		zap.String("response_code", resp.ResponseCode),
	)...)
	return resp, nil
}

// send performs the HTTP exchange. Declines come back as *PaymentError.
func (a *VaultAdapter) send(ctx context.Context, form url.Values) (*response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayTimeout, "payment gateway timed out", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "failed to send request", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.WrapError(domain.ErrorCodeGatewayTimeout, "payment gateway timed out", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "failed to read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError,
			fmt.Sprintf("gateway returned HTTP %d", httpResp.StatusCode))
	}

	resp, err := parseResponse(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "invalid gateway response", err)
	}
	if !resp.approved() {
		return resp, resp.paymentError()
	}
	return resp, nil
}

// cardForm builds the vault fields for a card. Card data is never logged.
func (a *VaultAdapter) cardForm(card *domain.Card, opts ports.VaultOptions) url.Values {
	form := url.Values{}
	form.Set("ccnumber", strings.TrimSpace(card.Number))
	form.Set("ccexp", fmt.Sprintf("%02d%02d", card.ExpirationMonth, card.ExpirationYear%100))
	if card.CVV != "" {
		form.Set("cvv", card.CVV)
	}
	form.Set("first_name", card.FirstName)
	form.Set("last_name", card.LastName)

	addr := opts.BillingAddress
	if addr == nil {
		addr = card.BillingAddress
	}
	if addr != nil {
		setIf(form, "address1", addr.Address1)
		setIf(form, "address2", addr.Address2)
		setIf(form, "city", addr.City)
		setIf(form, "state", addr.State)
		setIf(form, "zip", addr.Zip)
		setIf(form, "country", addr.Country)
		setIf(form, "phone", addr.Phone)
	}
	setIf(form, "email", opts.Email)
	setIf(form, "merchant_defined_field_1", opts.SubscriberID)
	return form
}

func setIf(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}

func tokenOf(resp *response) string {
	if resp.TransactionID != "" {
		return resp.TransactionID
	}
	return resp.CustomerVaultID
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryable reports transport failures; declines and an open breaker are final
func isRetryable(err error) bool {
	return domain.IsDomainError(err, domain.ErrorCodeGatewayError) ||
		domain.IsDomainError(err, domain.ErrorCodeGatewayTimeout)
}
