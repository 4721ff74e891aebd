package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// SubscriptionProvider implements ports.SubscriptionProvider against the
// back-office subscriptions table. The table is owned by the surrounding
// application; this adapter only reads it and flips status on suspension.
type SubscriptionProvider struct {
	db ports.DBPort
}

// NewSubscriptionProvider creates a new subscription provider adapter
func NewSubscriptionProvider(db ports.DBPort) *SubscriptionProvider {
	return &SubscriptionProvider{db: db}
}

const subscriptionColumns = `id, tenant_id, customer_id, plan_amount, currency,
	billing_interval, status, payment_provider, current_period_end, created_at, updated_at`

// Get returns the subscription for a tenant
func (p *SubscriptionProvider) Get(ctx context.Context, tenantID string) (*models.Subscription, error) {
	row := p.db.GetDB().QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1`, tenantID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound.WithDetail("tenant_id", tenantID)
		}
		return nil, fmt.Errorf("get subscription by tenant: %w", err)
	}
	return sub, nil
}

// GetByID returns a subscription by its ID
func (p *SubscriptionProvider) GetByID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	row := p.db.GetDB().QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, subscriptionID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound.WithDetail("subscription_id", subscriptionID)
		}
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}
	return sub, nil
}

// ListActive returns all active subscriptions
func (p *SubscriptionProvider) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	rows, err := p.db.GetDB().Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = $1 ORDER BY id`,
		string(models.SubStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// Suspend flips the subscription to suspended. The status guard makes the
// call idempotent: an already-suspended subscription matches no rows and
// that is not an error.
func (p *SubscriptionProvider) Suspend(ctx context.Context, subscriptionID string) error {
	tag, err := p.db.GetDB().Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		subscriptionID, string(models.SubStatusSuspended),
	)
	if err != nil {
		return fmt.Errorf("suspend subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already suspended, or unknown id. Verify existence so data
		// integrity faults still surface.
		var exists bool
		err := p.db.GetDB().QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, subscriptionID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("verify subscription: %w", err)
		}
		if !exists {
			return domain.ErrSubscriptionNotFound.WithDetail("subscription_id", subscriptionID)
		}
	}
	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		sub        models.Subscription
		planAmount pgtype.Numeric
		interval   string
		status     string
		periodEnd  time.Time
	)

	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.CustomerID,
		&planAmount, &sub.Currency, &interval, &status,
		&sub.PaymentProvider, &periodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.PlanAmount, err = numericToDecimal(planAmount); err != nil {
		return nil, err
	}
	sub.BillingInterval = models.BillingInterval(interval)
	sub.Status = models.SubscriptionStatus(status)
	sub.CurrentPeriodEnd = periodEnd
	return &sub, nil
}
