package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverageStatus represents the billing state of a usage overage row
type OverageStatus string

const (
	OverageStatusPending OverageStatus = "pending"
	OverageStatusBilled  OverageStatus = "billed"
)

// OverageBilling is usage beyond a subscription's plan quota, created by
// usage tracking and billed via a supplemental invoice. Rows carry no retry
// counter: a failed supplemental payment leaves them Pending and they are
// re-discovered on the next scheduler pass.
type OverageBilling struct {
	ID            string
	TenantID      string
	ResourceType  string
	QuotaLimit    int64
	ActualUsage   int64
	OverageAmount int64
	UnitPrice     decimal.Decimal
	Status        OverageStatus
	InvoiceID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
