package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// Processor drives one billing cycle through its state machine:
//
//	scheduled -> in_progress -> succeeded
//	                         -> awaiting_retry (recoverable failure, budget left)
//	                         -> exhausted      (budget spent, or unrecoverable)
//	awaiting_retry -> in_progress (re-claimed at or after next_retry_at)
//
// The in_progress transition is an atomic conditional claim at the storage
// layer, so concurrent invocations on one cycle produce exactly one payment
// attempt.
type Processor struct {
	db         ports.DBPort
	cycles     ports.BillingCycleRepository
	invoices   ports.InvoiceRepository
	provider   ports.SubscriptionProvider
	invoiceGen ports.InvoiceGenerator
	executor   *PaymentExecutor
	retry      *RetryPolicy
	notifier   *NotificationScheduler
	suspender  *SuspensionHandler
	logger     *zap.Logger
	now        func() time.Time
}

// NewProcessor creates a new billing cycle processor
func NewProcessor(
	db ports.DBPort,
	cycles ports.BillingCycleRepository,
	invoices ports.InvoiceRepository,
	provider ports.SubscriptionProvider,
	invoiceGen ports.InvoiceGenerator,
	executor *PaymentExecutor,
	retry *RetryPolicy,
	notifier *NotificationScheduler,
	suspender *SuspensionHandler,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:         db,
		cycles:     cycles,
		invoices:   invoices,
		provider:   provider,
		invoiceGen: invoiceGen,
		executor:   executor,
		retry:      retry,
		notifier:   notifier,
		suspender:  suspender,
		logger:     logger,
		now:        timeutil.Now,
	}
}

// Process drives one billing cycle to a terminal or retry outcome. Safe to
// re-invoke: losing the claim to a concurrent worker is expected contention
// and returns nil.
func (p *Processor) Process(ctx context.Context, cycleID string) error {
	claimed, err := p.cycles.ClaimForProcessing(ctx, cycleID, []models.BillingCycleStatus{
		models.CycleStatusScheduled,
		models.CycleStatusAwaitingRetry,
	})
	if err != nil {
		return fmt.Errorf("claim cycle %s: %w", cycleID, err)
	}
	if !claimed {
		// Another worker holds this cycle, or it already reached a
		// terminal state. Not an error.
		p.logger.Debug("lost billing cycle claim", zap.String("cycle_id", cycleID))
		return nil
	}

	cycle, err := p.cycles.GetByID(ctx, nil, cycleID)
	if err != nil {
		return fmt.Errorf("load claimed cycle %s: %w", cycleID, err)
	}

	p.logger.Info("processing billing cycle",
		zap.String("cycle_id", cycle.ID),
		zap.String("tenant_id", cycle.TenantID),
		zap.String("subscription_id", cycle.SubscriptionID),
		zap.Int("retry_count", cycle.RetryCount),
	)

	sub, err := p.provider.Get(ctx, cycle.TenantID)
	if err != nil {
		if domain.IsDataIntegrityFailure(err) {
			// Missing configuration cannot be fixed by retrying: fail
			// fast without consuming the retry budget.
			return p.failFast(ctx, cycle, err)
		}
		return fmt.Errorf("resolve subscription for tenant %s: %w", cycle.TenantID, err)
	}

	invoice, err := p.resolveInvoice(ctx, cycle)
	if err != nil {
		return fmt.Errorf("resolve invoice for cycle %s: %w", cycle.ID, err)
	}

	paymentID, payErr := p.executor.Charge(ctx, invoice, sub.CustomerID, map[string]string{
		"billing_cycle_id": cycle.ID,
		"subscription_id":  cycle.SubscriptionID,
		"tenant_id":        cycle.TenantID,
		"period_start":     cycle.CycleStart.Format("2006-01-02"),
		"period_end":       cycle.CycleEnd.Format("2006-01-02"),
	})
	if payErr != nil {
		return p.handlePaymentFailure(ctx, cycle, invoice, payErr)
	}

	return p.handlePaymentSuccess(ctx, cycle, invoice, sub, paymentID)
}

// resolveInvoice returns the cycle's still-open invoice when one exists, so
// repeated attempts keep the same invoice ID (and thus the same idempotency
// key). Otherwise it generates and persists a fresh draft.
func (p *Processor) resolveInvoice(ctx context.Context, cycle *models.BillingCycle) (*models.Invoice, error) {
	if cycle.InvoiceID != "" {
		invoice, err := p.invoices.GetByID(ctx, nil, cycle.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.Status == models.InvoiceStatusOpen {
			return invoice, nil
		}
		// Settled invoice on a retryable cycle should not happen; fall
		// through and generate a fresh one.
		p.logger.Warn("cycle referenced settled invoice, regenerating",
			zap.String("cycle_id", cycle.ID),
			zap.String("invoice_id", invoice.ID),
			zap.String("invoice_status", string(invoice.Status)),
		)
	}

	invoice, err := p.invoiceGen.Generate(ctx, cycle.TenantID, cycle.CycleStart, cycle.CycleEnd)
	if err != nil {
		return nil, err
	}

	err = p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := p.invoices.Create(ctx, tx, invoice); err != nil {
			return err
		}
		cycle.InvoiceID = invoice.ID
		cycle.UpdatedAt = p.now()
		if err := p.cycles.Update(ctx, tx, cycle); err != nil {
			return err
		}
		return p.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationInvoiceGenerated,
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			InvoiceID:      invoice.ID,
			ScheduledFor:   p.now(),
			Metadata: map[string]string{
				"total":    invoice.Total.String(),
				"currency": invoice.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// handlePaymentSuccess settles the invoice, completes the cycle, schedules
// the subscription's next cycle, and queues the success notification in a
// single transaction, so a crash cannot leave a succeeded cycle without a
// successor.
func (p *Processor) handlePaymentSuccess(ctx context.Context, cycle *models.BillingCycle, invoice *models.Invoice, sub *models.Subscription, paymentID string) error {
	now := p.now()

	nextStart := timeutil.StartOfDay(cycle.CycleEnd).AddDate(0, 0, 1)
	next := &models.BillingCycle{
		ID:             uuid.New().String(),
		TenantID:       cycle.TenantID,
		SubscriptionID: cycle.SubscriptionID,
		CycleStart:     nextStart,
		CycleEnd:       sub.NextCycleEnd(nextStart),
		Status:         models.CycleStatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		invoice.MarkPaid(now)
		if err := p.invoices.Update(ctx, tx, invoice); err != nil {
			return err
		}

		cycle.Status = models.CycleStatusSucceeded
		cycle.PaymentID = paymentID
		cycle.FailureReason = ""
		cycle.NextRetryAt = nil
		cycle.UpdatedAt = now
		if err := p.cycles.Update(ctx, tx, cycle); err != nil {
			return err
		}

		if err := p.cycles.Create(ctx, tx, next); err != nil {
			return err
		}

		return p.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationPaymentSucceeded,
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			InvoiceID:      invoice.ID,
			PaymentID:      paymentID,
			ScheduledFor:   now,
			Metadata: map[string]string{
				"amount":   invoice.Total.String(),
				"currency": invoice.Currency,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("finalize succeeded cycle %s: %w", cycle.ID, err)
	}

	cycleTransitionsTotal.WithLabelValues(string(models.CycleStatusSucceeded)).Inc()
	p.logger.Info("billing cycle succeeded",
		zap.String("cycle_id", cycle.ID),
		zap.String("payment_id", paymentID),
		zap.String("next_cycle_id", next.ID),
		zap.Time("next_cycle_start", next.CycleStart),
	)
	return nil
}

// handlePaymentFailure books one consumed retry slot and either schedules
// the next attempt or exhausts the cycle.
func (p *Processor) handlePaymentFailure(ctx context.Context, cycle *models.BillingCycle, invoice *models.Invoice, payErr error) error {
	if domain.IsDataIntegrityFailure(payErr) {
		return p.failFast(ctx, cycle, payErr)
	}

	newRetryCount := cycle.RetryCount + 1
	if p.retry.Exhausted(newRetryCount) {
		return p.exhaust(ctx, cycle, invoice, newRetryCount, payErr)
	}

	delay, err := p.retry.Delay(newRetryCount)
	if err != nil {
		return fmt.Errorf("retry delay for cycle %s: %w", cycle.ID, err)
	}

	now := p.now()
	nextRetryAt := now.Add(delay)

	txErr := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		cycle.Status = models.CycleStatusAwaitingRetry
		cycle.RetryCount = newRetryCount
		cycle.NextRetryAt = &nextRetryAt
		cycle.FailureReason = payErr.Error()
		cycle.UpdatedAt = now
		if err := p.cycles.Update(ctx, tx, cycle); err != nil {
			return err
		}

		return p.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationPaymentFailed,
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			InvoiceID:      cycle.InvoiceID,
			ScheduledFor:   now,
			Metadata: map[string]string{
				"retry_count":   strconv.Itoa(newRetryCount),
				"next_retry_at": nextRetryAt.Format(time.RFC3339),
				"reason":        payErr.Error(),
			},
		})
	})
	if txErr != nil {
		return fmt.Errorf("book retry for cycle %s: %w", cycle.ID, txErr)
	}

	cycleTransitionsTotal.WithLabelValues(string(models.CycleStatusAwaitingRetry)).Inc()
	p.logger.Warn("billing cycle awaiting retry",
		zap.String("cycle_id", cycle.ID),
		zap.Int("retry_count", newRetryCount),
		zap.Time("next_retry_at", nextRetryAt),
		zap.String("reason", payErr.Error()),
	)
	return nil
}

// exhaust finishes a cycle whose retry budget is spent: the invoice becomes
// uncollectible, the subscription is suspended, and an escalation
// notification (distinct from the per-retry failure notice) goes out.
func (p *Processor) exhaust(ctx context.Context, cycle *models.BillingCycle, invoice *models.Invoice, newRetryCount int, cause error) error {
	now := p.now()

	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if invoice != nil && invoice.Status == models.InvoiceStatusOpen {
			invoice.Status = models.InvoiceStatusUncollectible
			invoice.UpdatedAt = now
			if err := p.invoices.Update(ctx, tx, invoice); err != nil {
				return err
			}
		}

		cycle.Status = models.CycleStatusExhausted
		cycle.RetryCount = newRetryCount
		cycle.NextRetryAt = nil
		cycle.FailureReason = cause.Error()
		cycle.UpdatedAt = now
		if err := p.cycles.Update(ctx, tx, cycle); err != nil {
			return err
		}

		return p.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationPaymentFailed,
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			InvoiceID:      cycle.InvoiceID,
			ScheduledFor:   now,
			Metadata: map[string]string{
				"escalation":  "true",
				"retry_count": strconv.Itoa(newRetryCount),
				"reason":      cause.Error(),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("exhaust cycle %s: %w", cycle.ID, err)
	}

	cycleTransitionsTotal.WithLabelValues(string(models.CycleStatusExhausted)).Inc()
	p.logger.Error("billing cycle exhausted",
		zap.String("cycle_id", cycle.ID),
		zap.Int("retry_count", newRetryCount),
		zap.String("reason", cause.Error()),
	)

	if err := p.suspender.Suspend(ctx, cycle.TenantID, cycle.SubscriptionID, "billing retries exhausted"); err != nil {
		// The cycle is already terminal; suspension will be retried by
		// operators via the admin trigger if it failed here.
		p.logger.Error("suspension after exhaustion failed",
			zap.String("subscription_id", cycle.SubscriptionID),
			zap.Error(err),
		)
	}
	return nil
}

// failFast terminates a cycle whose failure cannot be fixed by retrying
// (missing subscription or plan). No retry slot is consumed; the retry
// count keeps its last value and the cycle goes straight to exhausted.
func (p *Processor) failFast(ctx context.Context, cycle *models.BillingCycle, cause error) error {
	now := p.now()

	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if cycle.InvoiceID != "" {
			invoice, err := p.invoices.GetByID(ctx, tx, cycle.InvoiceID)
			if err == nil && invoice.Status == models.InvoiceStatusOpen {
				invoice.Status = models.InvoiceStatusUncollectible
				invoice.UpdatedAt = now
				if err := p.invoices.Update(ctx, tx, invoice); err != nil {
					return err
				}
			}
		}

		cycle.Status = models.CycleStatusExhausted
		cycle.NextRetryAt = nil
		cycle.FailureReason = cause.Error()
		cycle.UpdatedAt = now
		if err := p.cycles.Update(ctx, tx, cycle); err != nil {
			return err
		}

		return p.notifier.Schedule(ctx, tx, &models.ScheduledNotification{
			Type:           models.NotificationPaymentFailed,
			TenantID:       cycle.TenantID,
			SubscriptionID: cycle.SubscriptionID,
			InvoiceID:      cycle.InvoiceID,
			ScheduledFor:   now,
			Metadata: map[string]string{
				"escalation": "true",
				"cause":      "data_integrity",
				"reason":     cause.Error(),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("fail-fast cycle %s: %w", cycle.ID, err)
	}

	cycleTransitionsTotal.WithLabelValues(string(models.CycleStatusExhausted)).Inc()
	p.logger.Error("billing cycle failed fast on data integrity",
		zap.String("cycle_id", cycle.ID),
		zap.String("tenant_id", cycle.TenantID),
		zap.String("reason", cause.Error()),
	)

	if err := p.suspender.Suspend(ctx, cycle.TenantID, cycle.SubscriptionID, "billing configuration missing"); err != nil {
		p.logger.Error("suspension after fail-fast failed",
			zap.String("subscription_id", cycle.SubscriptionID),
			zap.Error(err),
		)
	}
	return nil
}
