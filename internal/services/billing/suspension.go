package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// SuspensionHandler suspends a subscription once its retry budget is
// exhausted. Suspension is idempotent (the provider treats an
// already-suspended subscription as a no-op) and always records a
// subscription_cancelled notification carrying the triggering reason.
type SuspensionHandler struct {
	provider ports.SubscriptionProvider
	notifier *NotificationScheduler
	logger   *zap.Logger
	now      func() time.Time
}

// NewSuspensionHandler creates a new suspension handler
func NewSuspensionHandler(provider ports.SubscriptionProvider, notifier *NotificationScheduler, logger *zap.Logger) *SuspensionHandler {
	return &SuspensionHandler{
		provider: provider,
		notifier: notifier,
		logger:   logger,
		now:      timeutil.Now,
	}
}

// Suspend suspends the subscription and enqueues the cancellation notice
func (h *SuspensionHandler) Suspend(ctx context.Context, tenantID, subscriptionID, reason string) error {
	if err := h.provider.Suspend(ctx, subscriptionID); err != nil {
		return fmt.Errorf("suspend subscription %s: %w", subscriptionID, err)
	}

	suspensionsTotal.Inc()
	h.logger.Warn("subscription suspended",
		zap.String("subscription_id", subscriptionID),
		zap.String("tenant_id", tenantID),
		zap.String("reason", reason),
	)

	return h.notifier.Schedule(ctx, nil, &models.ScheduledNotification{
		Type:           models.NotificationSubscriptionCancelled,
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		ScheduledFor:   h.now(),
		Metadata: map[string]string{
			"reason": reason,
		},
	})
}
