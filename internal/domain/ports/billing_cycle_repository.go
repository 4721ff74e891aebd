package ports

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// BillingCycleRepository persists billing cycles. Claim semantics: the
// status transition into in_progress must be a single atomic conditional
// update at the storage layer, not a read-then-write pair. Zero rows
// affected means "lost the race", not an error.
type BillingCycleRepository interface {
	Create(ctx context.Context, tx DBTX, cycle *models.BillingCycle) error
	GetByID(ctx context.Context, tx DBTX, id string) (*models.BillingCycle, error)
	Update(ctx context.Context, tx DBTX, cycle *models.BillingCycle) error

	// ClaimForProcessing atomically transitions the cycle from one of
	// fromStatuses to in_progress and reports whether this caller won the
	// claim.
	ClaimForProcessing(ctx context.Context, id string, fromStatuses []models.BillingCycleStatus) (bool, error)

	// ListDue returns cycles ready for processing as of now: scheduled
	// cycles whose period has ended, plus awaiting_retry cycles whose
	// next_retry_at has passed. An awaiting_retry cycle with
	// retry_count == maxRetries is still due: its next attempt is the one
	// that exhausts it.
	ListDue(ctx context.Context, now time.Time, maxRetries int, limit int32) ([]*models.BillingCycle, error)

	// ReleaseStaleClaims returns in_progress cycles not touched since
	// olderThan to their source status (awaiting_retry when a retry was
	// already booked, scheduled otherwise), so a worker that died mid-claim
	// cannot wedge a cycle forever. Reports the number of released rows.
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)

	// ListActiveBySubscription returns cycles in scheduled/in_progress/
	// awaiting_retry for one subscription.
	ListActiveBySubscription(ctx context.Context, tx DBTX, subscriptionID string) ([]*models.BillingCycle, error)

	// ExistsForPeriod reports whether the subscription already has a cycle
	// starting at periodStart. Used to keep self-healing idempotent.
	ExistsForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (bool, error)

	// PurgeTerminalOlderThan deletes succeeded/exhausted cycles whose period
	// ended before cutoff and returns the number of rows removed. Cycles in
	// any non-terminal status are never purged.
	PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvoiceRepository persists invoices produced for billing cycles and
// overage runs.
type InvoiceRepository interface {
	Create(ctx context.Context, tx DBTX, invoice *models.Invoice) error
	GetByID(ctx context.Context, tx DBTX, id string) (*models.Invoice, error)
	Update(ctx context.Context, tx DBTX, invoice *models.Invoice) error
}

// OverageRepository persists usage overage rows
type OverageRepository interface {
	Create(ctx context.Context, tx DBTX, overage *models.OverageBilling) error
	ListPendingByTenant(ctx context.Context, tenantID string) ([]*models.OverageBilling, error)
	ListTenantsWithPending(ctx context.Context) ([]string, error)

	// AttachInvoice stamps the open supplemental invoice onto pending rows
	// before collection, so a failed pass can find and reuse it instead of
	// generating a fresh invoice (and a fresh idempotency key).
	AttachInvoice(ctx context.Context, tx DBTX, ids []string, invoiceID string) error

	// MarkBilled flips the given rows from pending to billed and stamps the
	// invoice that settled them.
	MarkBilled(ctx context.Context, tx DBTX, ids []string, invoiceID string) error
}

// NotificationRepository is the outbox store for notification intents
type NotificationRepository interface {
	Create(ctx context.Context, tx DBTX, notification *models.ScheduledNotification) error
	ListUnsent(ctx context.Context, limit int32) ([]*models.ScheduledNotification, error)
}
