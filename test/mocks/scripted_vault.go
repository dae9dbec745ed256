package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
)

// Vault operations
const (
	OpStore    = "store"
	OpUpdate   = "update"
	OpUnstore  = "unstore"
	OpPurchase = "purchase"
)

// Step is one scripted vault response
type Step struct {
	// Err is returned instead of a result when set.
	Err error
	// Latency delays the response; a context deadline during the delay
	// yields a GATEWAY_TIMEOUT error.
	Latency time.Duration
	// BillingID overrides the generated vault id for store.
	BillingID string
	// Authorization overrides the generated authorization for purchase.
	Authorization string
}

// Approve returns a successful step
func Approve() Step { return Step{} }

// Decline returns a step failing with the gateway's message
func Decline(message string) Step {
	return Step{Err: pkgerrors.NewGatewayError("300", message, pkgerrors.CategoryDeclined)}
}

// Timeout returns a step that outlasts any reasonable charge deadline
func Timeout() Step {
	return Step{Latency: time.Hour}
}

// Unavailable returns a step failing before the request is sent
func Unavailable() Step {
	return Step{Err: domain.WrapError(domain.ErrorCodeGatewayUnavailable, "circuit open", fmt.Errorf("breaker open"))}
}

// VaultCall records one call to the vault
type VaultCall struct {
	Op          string
	BillingID   string
	OrderID     string
	Card        *domain.Card
	AmountCents int64
}

// ScriptedVault is a deterministic ports.CardVault. Each operation plays
// back its queued steps in order and approves once the queue is empty.
type ScriptedVault struct {
	mu      sync.Mutex
	scripts map[string][]Step
	calls   []VaultCall
	nextID  int
}

var _ ports.CardVault = (*ScriptedVault)(nil)

// NewScriptedVault creates a vault that approves everything until scripted
func NewScriptedVault() *ScriptedVault {
	return &ScriptedVault{scripts: make(map[string][]Step)}
}

// Script queues steps for op
func (v *ScriptedVault) Script(op string, steps ...Step) *ScriptedVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts[op] = append(v.scripts[op], steps...)
	return v
}

// Calls returns every call made so far
func (v *ScriptedVault) Calls() []VaultCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]VaultCall, len(v.calls))
	copy(out, v.calls)
	return out
}

// CallsFor returns the calls made to op
func (v *ScriptedVault) CallsFor(op string) []VaultCall {
	var out []VaultCall
	for _, c := range v.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Store implements ports.CardVault
func (v *ScriptedVault) Store(ctx context.Context, card *domain.Card, _ ports.VaultOptions) (*ports.StoreResult, error) {
	step, seq := v.begin(VaultCall{Op: OpStore, Card: card})
	if err := v.play(ctx, step); err != nil {
		return nil, err
	}
	id := step.BillingID
	if id == "" {
		id = fmt.Sprintf("vault-%d", seq)
	}
	return &ports.StoreResult{BillingID: id, Token: id, Message: "Customer Added"}, nil
}

// Update implements ports.CardVault
func (v *ScriptedVault) Update(ctx context.Context, billingID string, card *domain.Card, _ ports.VaultOptions) (*ports.StoreResult, error) {
	step, _ := v.begin(VaultCall{Op: OpUpdate, BillingID: billingID, Card: card})
	if err := v.play(ctx, step); err != nil {
		return nil, err
	}
	return &ports.StoreResult{BillingID: billingID, Token: billingID, Message: "Customer Update Successful"}, nil
}

// Unstore implements ports.CardVault
func (v *ScriptedVault) Unstore(ctx context.Context, billingID string) error {
	step, _ := v.begin(VaultCall{Op: OpUnstore, BillingID: billingID})
	return v.play(ctx, step)
}

// Purchase implements ports.CardVault
func (v *ScriptedVault) Purchase(ctx context.Context, req ports.PurchaseRequest) (*domain.ChargeResult, error) {
	step, seq := v.begin(VaultCall{Op: OpPurchase, BillingID: req.BillingID, OrderID: req.OrderID, AmountCents: req.AmountCents})
	if err := v.play(ctx, step); err != nil {
		return nil, err
	}
	auth := step.Authorization
	if auth == "" {
		auth = fmt.Sprintf("auth-%d", seq)
	}
	return &domain.ChargeResult{
		Authorization:    auth,
		AuthorizedAmount: decimal.New(req.AmountCents, -2),
		Message:          "SUCCESS",
	}, nil
}

func (v *ScriptedVault) begin(call VaultCall) (Step, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, call)
	v.nextID++

	var step Step
	if queue := v.scripts[call.Op]; len(queue) > 0 {
		step = queue[0]
		v.scripts[call.Op] = queue[1:]
	}
	return step, v.nextID
}

func (v *ScriptedVault) play(ctx context.Context, step Step) error {
	if step.Latency > 0 {
		timer := time.NewTimer(step.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.WrapError(domain.ErrorCodeGatewayTimeout, "gateway request timed out", ctx.Err())
		}
	}
	return step.Err
}
