package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// BillingCycleRepository implements ports.BillingCycleRepository on pgx
type BillingCycleRepository struct {
	db ports.DBPort
}

// NewBillingCycleRepository creates a new billing cycle repository
func NewBillingCycleRepository(db ports.DBPort) *BillingCycleRepository {
	return &BillingCycleRepository{db: db}
}

func (r *BillingCycleRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const cycleColumns = `id, tenant_id, subscription_id, cycle_start, cycle_end, status,
	invoice_id, payment_id, retry_count, next_retry_at, failure_reason, created_at, updated_at`

// Create inserts a new billing cycle
func (r *BillingCycleRepository) Create(ctx context.Context, tx ports.DBTX, cycle *models.BillingCycle) error {
	_, err := r.executor(tx).Exec(ctx, `
		INSERT INTO billing_cycles (
			id, tenant_id, subscription_id, cycle_start, cycle_end, status,
			invoice_id, payment_id, retry_count, next_retry_at, failure_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		cycle.ID, cycle.TenantID, cycle.SubscriptionID,
		cycle.CycleStart, cycle.CycleEnd, string(cycle.Status),
		nullText(cycle.InvoiceID), nullText(cycle.PaymentID),
		cycle.RetryCount, nullTimestamptz(cycle.NextRetryAt), nullText(cycle.FailureReason),
		cycle.CreatedAt, cycle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create billing cycle: %w", err)
	}
	return nil
}

// GetByID retrieves a billing cycle by its ID
func (r *BillingCycleRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.BillingCycle, error) {
	row := r.executor(tx).QueryRow(ctx,
		`SELECT `+cycleColumns+` FROM billing_cycles WHERE id = $1`, id)

	cycle, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCycleNotFound.WithDetail("cycle_id", id)
		}
		return nil, fmt.Errorf("get billing cycle by id: %w", err)
	}
	return cycle, nil
}

// Update updates mutable billing cycle fields
func (r *BillingCycleRepository) Update(ctx context.Context, tx ports.DBTX, cycle *models.BillingCycle) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE billing_cycles SET
			status = $2,
			invoice_id = $3,
			payment_id = $4,
			retry_count = $5,
			next_retry_at = $6,
			failure_reason = $7,
			updated_at = $8
		WHERE id = $1`,
		cycle.ID, string(cycle.Status),
		nullText(cycle.InvoiceID), nullText(cycle.PaymentID),
		cycle.RetryCount, nullTimestamptz(cycle.NextRetryAt), nullText(cycle.FailureReason),
		cycle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update billing cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCycleNotFound.WithDetail("cycle_id", cycle.ID)
	}
	return nil
}

// ClaimForProcessing atomically transitions the cycle into in_progress.
// The WHERE clause carries the expected source statuses so two workers
// reading the same cycle cannot both win: exactly one UPDATE matches.
func (r *BillingCycleRepository) ClaimForProcessing(ctx context.Context, id string, fromStatuses []models.BillingCycleStatus) (bool, error) {
	statuses := make([]string, len(fromStatuses))
	for i, s := range fromStatuses {
		statuses[i] = string(s)
	}

	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE billing_cycles
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`,
		id, string(models.CycleStatusInProgress), statuses,
	)
	if err != nil {
		return false, fmt.Errorf("claim billing cycle: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns cycles ready for processing as of now
func (r *BillingCycleRepository) ListDue(ctx context.Context, now time.Time, maxRetries int, limit int32) ([]*models.BillingCycle, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT `+cycleColumns+`
		FROM billing_cycles
		WHERE (status = $1 AND cycle_end <= $3)
		   OR (status = $2 AND next_retry_at <= $3 AND retry_count <= $4)
		ORDER BY cycle_end
		LIMIT $5`,
		string(models.CycleStatusScheduled), string(models.CycleStatusAwaitingRetry),
		now, maxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due billing cycles: %w", err)
	}
	defer rows.Close()

	return collectCycles(rows)
}

// ReleaseStaleClaims returns long-held in_progress claims to their source
// status. A claim goes stale when the worker holding it died between the
// claim and the first transactional transition; nothing else selects
// in_progress rows, so without this sweep they would be stuck forever.
func (r *BillingCycleRepository) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE billing_cycles
		SET status = CASE WHEN retry_count > 0 THEN $2 ELSE $3 END,
		    updated_at = NOW()
		WHERE status = $1 AND updated_at < $4`,
		string(models.CycleStatusInProgress),
		string(models.CycleStatusAwaitingRetry),
		string(models.CycleStatusScheduled),
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("release stale cycle claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActiveBySubscription returns non-terminal cycles for one subscription
func (r *BillingCycleRepository) ListActiveBySubscription(ctx context.Context, tx ports.DBTX, subscriptionID string) ([]*models.BillingCycle, error) {
	rows, err := r.executor(tx).Query(ctx, `
		SELECT `+cycleColumns+`
		FROM billing_cycles
		WHERE subscription_id = $1 AND status = ANY($2)
		ORDER BY cycle_start`,
		subscriptionID,
		[]string{
			string(models.CycleStatusScheduled),
			string(models.CycleStatusInProgress),
			string(models.CycleStatusAwaitingRetry),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("list active cycles by subscription: %w", err)
	}
	defer rows.Close()

	return collectCycles(rows)
}

// ExistsForPeriod reports whether a cycle already starts at periodStart
func (r *BillingCycleRepository) ExistsForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (bool, error) {
	var exists bool
	err := r.db.GetDB().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM billing_cycles
			WHERE subscription_id = $1 AND cycle_start = $2
		)`,
		subscriptionID, periodStart,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cycle for period: %w", err)
	}
	return exists, nil
}

// PurgeTerminalOlderThan deletes terminal cycles whose period ended before
// cutoff. The status filter is part of the statement so non-terminal cycles
// can never be removed regardless of age.
func (r *BillingCycleRepository) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.GetDB().Exec(ctx, `
		DELETE FROM billing_cycles
		WHERE status = ANY($1) AND cycle_end < $2`,
		[]string{
			string(models.CycleStatusSucceeded),
			string(models.CycleStatusExhausted),
		},
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge terminal billing cycles: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectCycles(rows pgx.Rows) ([]*models.BillingCycle, error) {
	var cycles []*models.BillingCycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan billing cycle: %w", err)
		}
		cycles = append(cycles, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing cycles: %w", err)
	}
	return cycles, nil
}

func scanCycle(row pgx.Row) (*models.BillingCycle, error) {
	var (
		cycle         models.BillingCycle
		status        string
		invoiceID     *string
		paymentID     *string
		nextRetryAt   *time.Time
		failureReason *string
	)

	err := row.Scan(
		&cycle.ID, &cycle.TenantID, &cycle.SubscriptionID,
		&cycle.CycleStart, &cycle.CycleEnd, &status,
		&invoiceID, &paymentID, &cycle.RetryCount,
		&nextRetryAt, &failureReason,
		&cycle.CreatedAt, &cycle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cycle.Status = models.BillingCycleStatus(status)
	if invoiceID != nil {
		cycle.InvoiceID = *invoiceID
	}
	if paymentID != nil {
		cycle.PaymentID = *paymentID
	}
	cycle.NextRetryAt = nextRetryAt
	if failureReason != nil {
		cycle.FailureReason = *failureReason
	}
	return &cycle, nil
}
