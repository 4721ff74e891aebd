package ports

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// InvoiceGenerator produces a draft (Open) invoice for a billing period.
// The generated invoice is owned by the cycle that requested it.
type InvoiceGenerator interface {
	Generate(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) (*models.Invoice, error)
}
