package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// NotificationScheduler writes notification intents to the outbox. It never
// sends anything: an external delivery worker consumes the rows and marks
// them sent. Scheduling is at-least-once; deduplication is the worker's
// responsibility.
type NotificationScheduler struct {
	repo   ports.NotificationRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationScheduler creates a new notification scheduler
func NewNotificationScheduler(repo ports.NotificationRepository, logger *zap.Logger) *NotificationScheduler {
	return &NotificationScheduler{
		repo:   repo,
		logger: logger,
		now:    timeutil.Now,
	}
}

// Schedule persists one notification intent. When tx is non-nil the intent
// joins the caller's transaction, so a state transition and its notification
// commit or roll back together.
func (s *NotificationScheduler) Schedule(ctx context.Context, tx ports.DBTX, n *models.ScheduledNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := s.now()
	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = now
	}
	n.CreatedAt = now

	if err := s.repo.Create(ctx, tx, n); err != nil {
		return fmt.Errorf("schedule %s notification: %w", n.Type, err)
	}

	notificationsScheduledTotal.WithLabelValues(string(n.Type)).Inc()
	s.logger.Debug("notification scheduled",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("tenant_id", n.TenantID),
	)
	return nil
}
