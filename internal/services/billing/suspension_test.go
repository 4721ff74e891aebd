package billing_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/services/billing"
)

func TestSuspensionHandler_SuspendsAndNotifies(t *testing.T) {
	provider := new(MockSubscriptionProvider)
	notificationRepo := new(MockNotificationRepository)

	var scheduled []*models.ScheduledNotification
	notificationRepo.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			scheduled = append(scheduled, args.Get(2).(*models.ScheduledNotification))
		}).Return(nil)

	logger := zap.NewNop()
	handler := billing.NewSuspensionHandler(provider, billing.NewNotificationScheduler(notificationRepo, logger), logger)

	subscriptionID := uuid.New().String()
	provider.On("Suspend", mock.Anything, subscriptionID).Return(nil)

	err := handler.Suspend(context.Background(), "tenant-001", subscriptionID, "billing retries exhausted")
	require.NoError(t, err)

	provider.AssertCalled(t, "Suspend", mock.Anything, subscriptionID)
	require.Len(t, scheduled, 1)
	assert.Equal(t, models.NotificationSubscriptionCancelled, scheduled[0].Type)
	assert.Equal(t, "tenant-001", scheduled[0].TenantID)
	assert.Equal(t, subscriptionID, scheduled[0].SubscriptionID)
	assert.Equal(t, "billing retries exhausted", scheduled[0].Metadata["reason"])
}

func TestSuspensionHandler_ProviderFailurePropagates(t *testing.T) {
	provider := new(MockSubscriptionProvider)
	notificationRepo := new(MockNotificationRepository)

	logger := zap.NewNop()
	handler := billing.NewSuspensionHandler(provider, billing.NewNotificationScheduler(notificationRepo, logger), logger)

	subscriptionID := uuid.New().String()
	provider.On("Suspend", mock.Anything, subscriptionID).Return(domain.ErrSubscriptionNotFound)

	err := handler.Suspend(context.Background(), "tenant-001", subscriptionID, "test")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeSubscriptionNotFound, domain.GetErrorCode(err))

	// No cancellation notice without a successful suspension
	notificationRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}
