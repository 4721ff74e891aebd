package models

import (
	"time"
)

// BillingCycleStatus represents the current state of a billing cycle
type BillingCycleStatus string

const (
	CycleStatusScheduled     BillingCycleStatus = "scheduled"
	CycleStatusInProgress    BillingCycleStatus = "in_progress"
	CycleStatusSucceeded     BillingCycleStatus = "succeeded"
	CycleStatusAwaitingRetry BillingCycleStatus = "awaiting_retry"
	CycleStatusExhausted     BillingCycleStatus = "exhausted"
)

// IsTerminal reports whether the cycle can never transition again.
// Only terminal cycles are eligible for cleanup.
func (s BillingCycleStatus) IsTerminal() bool {
	return s == CycleStatusSucceeded || s == CycleStatusExhausted
}

// ArchiveState maps a terminal status to the archive state used by cleanup
// reporting. Non-terminal statuses have no archive state.
func (s BillingCycleStatus) ArchiveState() string {
	switch s {
	case CycleStatusSucceeded:
		return "completed"
	case CycleStatusExhausted:
		return "failed"
	default:
		return ""
	}
}

// BillingCycle is one time-bounded recurring billing unit for a subscription.
// At most one cycle per subscription may be active (scheduled-and-due,
// in progress, or awaiting retry) at a time.
type BillingCycle struct {
	ID             string
	TenantID       string
	SubscriptionID string
	CycleStart     time.Time
	CycleEnd       time.Time
	Status         BillingCycleStatus
	InvoiceID      string
	PaymentID      string
	RetryCount     int
	NextRetryAt    *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
