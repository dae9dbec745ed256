package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_ErrorFormat(t *testing.T) {
	err := WrapError(ErrorCodeDatabaseError, "load subscription", errors.New("conn refused"))
	assert.Equal(t, "INTERNAL_DATABASE_ERROR: load subscription: conn refused", err.Error())

	plain := NewDomainError(ErrorCodePlanNotFound, "plan not found")
	assert.Equal(t, "CATALOG_PLAN_NOT_FOUND: plan not found", plain.Error())
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("get subscription: %w", ErrSubscriptionNotFound.WithDetail("subscription_id", "abc"))

	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
	assert.False(t, errors.Is(err, ErrPlanNotFound))
	assert.True(t, IsNotFoundError(err))
	assert.Equal(t, ErrorCodeSubscriptionNotFound, GetErrorCode(err))
}

func TestDomainError_WithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrPlanNotFound.WithDetail("plan_id", "gold")
	assert.Empty(t, ErrPlanNotFound.Details)
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := WrapError(ErrorCodeGatewayTimeout, "purchase", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsGatewayError(err))
	assert.False(t, IsValidationError(err))
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"subscription", ErrSubscriptionNotFound, true},
		{"plan", ErrPlanNotFound, true},
		{"discount", ErrDiscountNotFound, true},
		{"affiliate", ErrAffiliateNotFound, true},
		{"subscriber", ErrSubscriberNotFound, true},
		{"database", ErrDatabaseError, false},
		{"plain error", errors.New("not found"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}
