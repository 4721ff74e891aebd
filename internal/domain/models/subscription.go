package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingInterval represents how often a subscription is billed
type BillingInterval string

const (
	IntervalWeekly  BillingInterval = "weekly"
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// SubscriptionStatus represents the current state of a subscription
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusSuspended SubscriptionStatus = "suspended"
	SubStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the engine's read model of a tenant subscription. The
// subscription itself is owned by an external provider; the engine only
// reads it and requests suspension after exhausted retries.
type Subscription struct {
	ID               string
	TenantID         string
	CustomerID       string
	PlanAmount       decimal.Decimal
	Currency         string
	BillingInterval  BillingInterval
	Status           SubscriptionStatus
	PaymentProvider  string
	CurrentPeriodEnd time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NextCycleEnd computes the exclusive-ish period end for a cycle starting at
// start: monthly is +1 month -1 day, yearly +1 year -1 day, weekly +6 days,
// so consecutive cycles share no days.
func (s *Subscription) NextCycleEnd(start time.Time) time.Time {
	switch s.BillingInterval {
	case IntervalWeekly:
		return start.AddDate(0, 0, 6)
	case IntervalYearly:
		return start.AddDate(1, 0, 0).AddDate(0, 0, -1)
	default:
		return start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	}
}
