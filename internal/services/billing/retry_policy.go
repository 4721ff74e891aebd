package billing

import (
	"fmt"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
)

// RetryPolicy maps a retry attempt number to the delay before the next
// payment attempt, using a fixed escalating table. The table is indexed by
// attempt (1-based); attempts beyond the table reuse its last entry, and
// the policy reports exhaustion once the count passes the retry budget.
//
// Default sequence with [24h, 72h, 168h] and maxRetries=3:
//   - failure 1: retry in 24h
//   - failure 2: retry in 72h
//   - failure 3: retry in 168h
//   - failure 4: exhausted
type RetryPolicy struct {
	delays     []time.Duration
	maxRetries int
}

// NewRetryPolicy creates a retry policy from an escalating delay table.
// The table must be non-empty and non-decreasing.
func NewRetryPolicy(delays []time.Duration, maxRetries int) (*RetryPolicy, error) {
	if len(delays) == 0 {
		return nil, fmt.Errorf("retry policy needs at least one delay")
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("maxRetries must not be negative, got %d", maxRetries)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			return nil, fmt.Errorf("delay table must be non-decreasing, got %v", delays)
		}
	}

	table := make([]time.Duration, len(delays))
	copy(table, delays)
	return &RetryPolicy{delays: table, maxRetries: maxRetries}, nil
}

// DefaultRetryPolicy returns the standard dunning schedule: 1 day, 3 days,
// 7 days, three retries total.
func DefaultRetryPolicy() *RetryPolicy {
	p, _ := NewRetryPolicy([]time.Duration{24 * time.Hour, 72 * time.Hour, 168 * time.Hour}, 3)
	return p
}

// Delay returns the wait before the given retry attempt (1-based). It
// returns ErrRetriesExhausted once the attempt exceeds the retry budget.
func (p *RetryPolicy) Delay(retryCount int) (time.Duration, error) {
	if retryCount < 1 {
		return 0, fmt.Errorf("retryCount must be at least 1, got %d", retryCount)
	}
	if p.Exhausted(retryCount) {
		return 0, domain.ErrRetriesExhausted
	}
	idx := retryCount - 1
	if idx >= len(p.delays) {
		idx = len(p.delays) - 1
	}
	return p.delays[idx], nil
}

// Exhausted reports whether the retry budget is spent
func (p *RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount > p.maxRetries
}

// MaxRetries returns the retry budget
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}
