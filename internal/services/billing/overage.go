package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// OverageBiller aggregates a tenant's pending usage overages into one
// supplemental invoice and collects it through the same idempotent payment
// discipline as the main cycle. Overage rows carry no retry counter: a
// failed collection leaves them Pending with their invoice attached, and
// the next scheduler pass retries that invoice under the same idempotency
// key.
type OverageBiller struct {
	db       ports.DBPort
	overages ports.OverageRepository
	invoices ports.InvoiceRepository
	provider ports.SubscriptionProvider
	executor *PaymentExecutor
	notifier *NotificationScheduler
	taxRate  decimal.Decimal
	dueIn    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewOverageBiller creates a new overage biller
func NewOverageBiller(
	db ports.DBPort,
	overages ports.OverageRepository,
	invoices ports.InvoiceRepository,
	provider ports.SubscriptionProvider,
	executor *PaymentExecutor,
	notifier *NotificationScheduler,
	taxRate decimal.Decimal,
	dueIn time.Duration,
	logger *zap.Logger,
) *OverageBiller {
	return &OverageBiller{
		db:       db,
		overages: overages,
		invoices: invoices,
		provider: provider,
		executor: executor,
		notifier: notifier,
		taxRate:  taxRate,
		dueIn:    dueIn,
		logger:   logger,
		now:      timeutil.Now,
	}
}

// ProcessTenant bills all pending overage rows for one tenant. No pending
// rows is a no-op.
func (b *OverageBiller) ProcessTenant(ctx context.Context, tenantID string) error {
	rows, err := b.overages.ListPendingByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list pending overages for tenant %s: %w", tenantID, err)
	}
	if len(rows) == 0 {
		return nil
	}

	sub, err := b.provider.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve subscription for tenant %s: %w", tenantID, err)
	}

	invoice, rows, err := b.resolveInvoice(ctx, sub, rows)
	if err != nil {
		return fmt.Errorf("resolve overage invoice for tenant %s: %w", tenantID, err)
	}

	paymentID, payErr := b.executor.Charge(ctx, invoice, sub.CustomerID, map[string]string{
		"kind":      "overage",
		"tenant_id": tenantID,
	})
	if payErr != nil {
		// Rows stay Pending with the open invoice attached, so the next
		// pass retries the same invoice under the same idempotency key.
		// This is a deliberately weaker guarantee than the main cycle's
		// escalating backoff.
		overageInvoicesTotal.WithLabelValues("failed").Inc()
		b.logger.Warn("overage collection failed, rows remain pending",
			zap.String("tenant_id", tenantID),
			zap.String("invoice_id", invoice.ID),
			zap.Int("pending_rows", len(rows)),
			zap.Error(payErr),
		)
		return payErr
	}

	now := b.now()
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	err = b.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		invoice.MarkPaid(now)
		if err := b.invoices.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := b.overages.MarkBilled(ctx, tx, ids, invoice.ID); err != nil {
			return err
		}
		return b.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationPaymentSucceeded,
			TenantID:       tenantID,
			SubscriptionID: sub.ID,
			InvoiceID:      invoice.ID,
			PaymentID:      paymentID,
			ScheduledFor:   now,
			Metadata: map[string]string{
				"kind":     "overage",
				"amount":   invoice.Total.String(),
				"currency": invoice.Currency,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("settle overage invoice for tenant %s: %w", tenantID, err)
	}

	overageInvoicesTotal.WithLabelValues("paid").Inc()
	b.logger.Info("overage billed",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", invoice.ID),
		zap.Int("rows_billed", len(rows)),
		zap.String("total", invoice.Total.String()),
	)
	return nil
}

// resolveInvoice returns the still-open supplemental invoice already
// attached to pending rows, so repeated collection attempts keep the same
// invoice ID and thus the same idempotency key. When no open invoice is
// attached it generates a fresh one, attaches it, and queues the invoice
// notification. The returned rows are the ones the invoice covers: rows
// that arrived after a failed pass wait until the attached invoice
// settles.
func (b *OverageBiller) resolveInvoice(ctx context.Context, sub *models.Subscription, rows []*models.OverageBilling) (*models.Invoice, []*models.OverageBilling, error) {
	var attachedID string
	for _, row := range rows {
		if row.InvoiceID != "" {
			attachedID = row.InvoiceID
			break
		}
	}

	if attachedID != "" {
		invoice, err := b.invoices.GetByID(ctx, nil, attachedID)
		if err != nil {
			return nil, nil, err
		}
		if invoice.Status == models.InvoiceStatusOpen {
			covered := make([]*models.OverageBilling, 0, len(rows))
			for _, row := range rows {
				if row.InvoiceID == attachedID {
					covered = append(covered, row)
				}
			}
			return invoice, covered, nil
		}
		// Settled invoice on still-pending rows should not happen;
		// regenerate over the full pending set.
		b.logger.Warn("pending overage rows referenced settled invoice, regenerating",
			zap.String("tenant_id", sub.TenantID),
			zap.String("invoice_id", attachedID),
			zap.String("invoice_status", string(invoice.Status)),
		)
	}

	invoice := b.buildInvoice(sub.TenantID, sub.Currency, rows)
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	err := b.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := b.invoices.Create(ctx, tx, invoice); err != nil {
			return err
		}
		if err := b.overages.AttachInvoice(ctx, tx, ids, invoice.ID); err != nil {
			return err
		}
		return b.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationInvoiceGenerated,
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			InvoiceID:      invoice.ID,
			ScheduledFor:   b.now(),
			Metadata: map[string]string{
				"kind":     "overage",
				"total":    invoice.Total.String(),
				"currency": invoice.Currency,
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return invoice, rows, nil
}

// ProcessAll bills every tenant with pending overage rows. Tenant failures
// are isolated: one tenant's error never blocks the rest.
func (b *OverageBiller) ProcessAll(ctx context.Context) error {
	tenants, err := b.overages.ListTenantsWithPending(ctx)
	if err != nil {
		return fmt.Errorf("list tenants with pending overages: %w", err)
	}

	var failures int
	for _, tenantID := range tenants {
		if err := b.ProcessTenant(ctx, tenantID); err != nil {
			failures++
			b.logger.Error("overage billing failed for tenant",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
	}

	if failures > 0 {
		b.logger.Warn("overage billing pass completed with failures",
			zap.Int("tenants", len(tenants)),
			zap.Int("failures", failures),
		)
	}
	return nil
}

// buildInvoice prices the pending rows: quantity × unit price per resource,
// flat tax on the subtotal, short due date.
func (b *OverageBiller) buildInvoice(tenantID, currency string, rows []*models.OverageBilling) *models.Invoice {
	now := b.now()

	lineItems := make([]models.LineItem, len(rows))
	subtotal := decimal.Zero
	for i, row := range rows {
		qty := decimal.NewFromInt(row.OverageAmount)
		amount := qty.Mul(row.UnitPrice)
		lineItems[i] = models.LineItem{
			Description: fmt.Sprintf("%s overage: %d units above quota of %d",
				row.ResourceType, row.OverageAmount, row.QuotaLimit),
			Quantity:  qty,
			UnitPrice: row.UnitPrice,
			Amount:    amount,
		}
		subtotal = subtotal.Add(amount)
	}

	tax := subtotal.Mul(b.taxRate)
	total := subtotal.Add(tax)

	return &models.Invoice{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		LineItems:   lineItems,
		Subtotal:    subtotal,
		Tax:         tax,
		Total:       total,
		AmountPaid:  decimal.Zero,
		AmountDue:   total,
		Currency:    currency,
		Status:      models.InvoiceStatusOpen,
		PeriodStart: now,
		PeriodEnd:   now,
		DueDate:     now.Add(b.dueIn),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
