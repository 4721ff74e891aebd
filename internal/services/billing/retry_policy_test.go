package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/services/billing"
)

func TestRetryPolicy_DefaultSchedule(t *testing.T) {
	p := billing.DefaultRetryPolicy()
	require.Equal(t, 3, p.MaxRetries())

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, 24 * time.Hour},
		{2, 72 * time.Hour},
		{3, 168 * time.Hour},
	}
	for _, tt := range tests {
		got, err := p.Delay(tt.retryCount)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "retry %d", tt.retryCount)
	}
}

func TestRetryPolicy_Exhaustion(t *testing.T) {
	p := billing.DefaultRetryPolicy()

	assert.False(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))

	_, err := p.Delay(4)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeRetriesExhausted, domain.GetErrorCode(err))
}

func TestRetryPolicy_ShortTableClampsToLastDelay(t *testing.T) {
	// More retries than table entries: attempts past the table reuse its
	// last delay.
	p, err := billing.NewRetryPolicy([]time.Duration{time.Hour, 2 * time.Hour}, 5)
	require.NoError(t, err)

	got, err := p.Delay(4)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, got)
}

func TestRetryPolicy_RejectsInvalidTables(t *testing.T) {
	_, err := billing.NewRetryPolicy(nil, 3)
	assert.Error(t, err)

	// Decreasing table contradicts escalation
	_, err = billing.NewRetryPolicy([]time.Duration{3 * time.Hour, time.Hour}, 3)
	assert.Error(t, err)

	_, err = billing.NewRetryPolicy([]time.Duration{time.Hour}, -1)
	assert.Error(t, err)
}

func TestRetryPolicy_RejectsZeroRetryCount(t *testing.T) {
	p := billing.DefaultRetryPolicy()
	_, err := p.Delay(0)
	assert.Error(t, err)
}
