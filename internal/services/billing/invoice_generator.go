package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// PlanInvoiceGenerator builds the draft invoice for a recurring billing
// period from the subscription's plan price. Plan prices are tax-inclusive,
// so recurring invoices carry no separate tax line (overage invoices do).
type PlanInvoiceGenerator struct {
	provider ports.SubscriptionProvider
	now      func() time.Time
}

// NewPlanInvoiceGenerator creates a new plan-priced invoice generator
func NewPlanInvoiceGenerator(provider ports.SubscriptionProvider) *PlanInvoiceGenerator {
	return &PlanInvoiceGenerator{provider: provider, now: timeutil.Now}
}

// Generate produces an Open invoice covering [periodStart, periodEnd]
func (g *PlanInvoiceGenerator) Generate(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	sub, err := g.provider.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	amount := sub.PlanAmount

	return &models.Invoice{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		LineItems: []models.LineItem{{
			Description: fmt.Sprintf("%s subscription %s to %s",
				sub.BillingInterval,
				periodStart.Format("2006-01-02"),
				periodEnd.Format("2006-01-02")),
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: amount,
			Amount:    amount,
		}},
		Subtotal:    amount,
		Tax:         decimal.Zero,
		Total:       amount,
		AmountPaid:  decimal.Zero,
		AmountDue:   amount,
		Currency:    sub.Currency,
		Status:      models.InvoiceStatusOpen,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		DueDate:     now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
