package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the current state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// LineItem is a single priced line on an invoice
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is owned by the billing cycle (or overage run) that created it.
// Once Paid or Uncollectible it is immutable except for read.
type Invoice struct {
	ID          string
	TenantID    string
	LineItems   []LineItem
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	AmountPaid  decimal.Decimal
	AmountDue   decimal.Decimal
	Currency    string
	Status      InvoiceStatus
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueDate     time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MarkPaid settles the invoice in full
func (i *Invoice) MarkPaid(at time.Time) {
	i.Status = InvoiceStatusPaid
	i.AmountPaid = i.Total
	i.AmountDue = decimal.Zero
	i.PaidAt = &at
	i.UpdatedAt = at
}
