package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// SubscriptionProvider is the external owner of subscription records. The
// engine reads them to price cycles and requests suspension once retries are
// exhausted. Suspend is idempotent: suspending an already-suspended
// subscription is a no-op.
type SubscriptionProvider interface {
	Get(ctx context.Context, tenantID string) (*models.Subscription, error)
	GetByID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	Suspend(ctx context.Context, subscriptionID string) error
}
