package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/internal/services/billing"
	"github.com/kevin07696/billing-service/test/mocks"
)

type overageFixture struct {
	db           *MockDBPort
	overages     *MockOverageRepository
	invoices     *MockInvoiceRepository
	provider     *MockSubscriptionProvider
	gateway      *mocks.MockPaymentGateway
	notification *MockNotificationRepository
	biller       *billing.OverageBiller

	createdInvoices []*models.Invoice
	scheduled       []*models.ScheduledNotification
}

func newOverageFixture(t *testing.T) *overageFixture {
	t.Helper()

	f := &overageFixture{
		db:           new(MockDBPort),
		overages:     new(MockOverageRepository),
		invoices:     new(MockInvoiceRepository),
		provider:     new(MockSubscriptionProvider),
		gateway:      mocks.NewMockPaymentGateway(),
		notification: new(MockNotificationRepository),
	}

	f.invoices.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			f.createdInvoices = append(f.createdInvoices, args.Get(2).(*models.Invoice))
		}).Return(nil)
	f.notification.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			f.scheduled = append(f.scheduled, args.Get(2).(*models.ScheduledNotification))
		}).Return(nil)

	logger := zap.NewNop()
	notifier := billing.NewNotificationScheduler(f.notification, logger)
	executor := billing.NewPaymentExecutor(f.gateway, logger)

	f.biller = billing.NewOverageBiller(
		f.db, f.overages, f.invoices, f.provider, executor, notifier,
		decimal.NewFromFloat(0.10), 7*24*time.Hour, logger,
	)
	return f
}

func pendingOverage(tenantID string, amount int64, unitPrice float64) *models.OverageBilling {
	return &models.OverageBilling{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ResourceType:  "api_calls",
		QuotaLimit:    10000,
		ActualUsage:   10000 + amount,
		OverageAmount: amount,
		UnitPrice:     decimal.NewFromFloat(unitPrice),
		Status:        models.OverageStatusPending,
	}
}

func TestOverageBiller_NoPendingRowsIsNoOp(t *testing.T) {
	f := newOverageFixture(t)

	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-001").Return([]*models.OverageBilling{}, nil)

	require.NoError(t, f.biller.ProcessTenant(context.Background(), "tenant-001"))

	assert.Zero(t, f.gateway.AttemptCalls)
	assert.Empty(t, f.createdInvoices)
	f.provider.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestOverageBiller_BillsAndSettles(t *testing.T) {
	f := newOverageFixture(t)
	ctx := context.Background()

	sub := activeSubscription(uuid.New().String())
	row := pendingOverage("tenant-001", 500, 0.01)

	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-001").Return([]*models.OverageBilling{row}, nil)
	f.provider.On("Get", mock.Anything, "tenant-001").Return(sub, nil)
	f.invoices.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("AttachInvoice", mock.Anything, mock.Anything, []string{row.ID}, mock.Anything).Return(nil)
	f.overages.On("MarkBilled", mock.Anything, mock.Anything, []string{row.ID}, mock.Anything).Return(nil)

	f.gateway.SetAttemptResponse(&ports.PaymentAttemptResult{Success: true, PaymentID: "pay-ovg"}, nil)

	require.NoError(t, f.biller.ProcessTenant(ctx, "tenant-001"))

	// 500 units at 0.01 plus 10% tax: 5.00 + 0.50 = 5.50
	require.Len(t, f.createdInvoices, 1)
	invoice := f.createdInvoices[0]
	assert.True(t, decimal.NewFromFloat(5.00).Equal(invoice.Subtotal), "subtotal %s", invoice.Subtotal)
	assert.True(t, decimal.NewFromFloat(0.50).Equal(invoice.Tax), "tax %s", invoice.Tax)
	assert.True(t, decimal.NewFromFloat(5.50).Equal(invoice.Total), "total %s", invoice.Total)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
	require.Len(t, invoice.LineItems, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(invoice.LineItems[0].Quantity))

	// Due date gives the tenant a week
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), invoice.DueDate, time.Minute)

	f.overages.AssertCalled(t, "MarkBilled", mock.Anything, mock.Anything, []string{row.ID}, invoice.ID)

	var types []models.NotificationType
	for _, n := range f.scheduled {
		types = append(types, n.Type)
	}
	assert.Contains(t, types, models.NotificationInvoiceGenerated)
	assert.Contains(t, types, models.NotificationPaymentSucceeded)
}

func TestOverageBiller_FailedCollectionLeavesRowsPending(t *testing.T) {
	f := newOverageFixture(t)
	ctx := context.Background()

	sub := activeSubscription(uuid.New().String())
	row := pendingOverage("tenant-001", 500, 0.01)

	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-001").Return([]*models.OverageBilling{row}, nil)
	f.provider.On("Get", mock.Anything, "tenant-001").Return(sub, nil)
	f.overages.On("AttachInvoice", mock.Anything, mock.Anything, []string{row.ID}, mock.Anything).Return(nil)

	f.gateway.SetAttemptResponse(&ports.PaymentAttemptResult{
		Success:      false,
		ResponseCode: "card_declined",
	}, nil)

	err := f.biller.ProcessTenant(ctx, "tenant-001")
	require.Error(t, err)

	// Rows are never flipped on failure; the next pass re-discovers them
	f.overages.AssertNotCalled(t, "MarkBilled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, models.OverageStatusPending, row.Status)
	f.invoices.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestOverageBiller_ReusesOpenInvoiceAcrossPasses(t *testing.T) {
	f := newOverageFixture(t)
	ctx := context.Background()

	sub := activeSubscription(uuid.New().String())
	row := pendingOverage("tenant-001", 500, 0.01)

	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-001").Return([]*models.OverageBilling{row}, nil)
	f.provider.On("Get", mock.Anything, "tenant-001").Return(sub, nil)
	f.invoices.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("AttachInvoice", mock.Anything, mock.Anything, []string{row.ID}, mock.Anything).
		Run(func(args mock.Arguments) {
			row.InvoiceID = args.String(3)
		}).Return(nil)
	f.overages.On("MarkBilled", mock.Anything, mock.Anything, []string{row.ID}, mock.Anything).Return(nil)

	// First pass fails; the second collects the same invoice
	f.gateway.QueueAttemptResponse(&ports.PaymentAttemptResult{Success: false, ResponseCode: "card_declined"}, nil)
	f.gateway.QueueAttemptResponse(&ports.PaymentAttemptResult{Success: true, PaymentID: "pay-ovg"}, nil)

	require.Error(t, f.biller.ProcessTenant(ctx, "tenant-001"))
	require.Len(t, f.createdInvoices, 1)
	first := f.createdInvoices[0]

	f.invoices.On("GetByID", mock.Anything, mock.Anything, first.ID).Return(first, nil)

	require.NoError(t, f.biller.ProcessTenant(ctx, "tenant-001"))

	// No second invoice, and both attempts carried the same idempotency key
	assert.Len(t, f.createdInvoices, 1)
	require.Len(t, f.gateway.IdempotencyKeys, 2)
	assert.Equal(t, f.gateway.IdempotencyKeys[0], f.gateway.IdempotencyKeys[1])
	f.overages.AssertCalled(t, "MarkBilled", mock.Anything, mock.Anything, []string{row.ID}, first.ID)
}

func TestOverageBiller_AggregatesMultipleResources(t *testing.T) {
	f := newOverageFixture(t)
	ctx := context.Background()

	sub := activeSubscription(uuid.New().String())
	apiRow := pendingOverage("tenant-001", 500, 0.01)
	storageRow := pendingOverage("tenant-001", 20, 0.50)
	storageRow.ResourceType = "storage_gb"

	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-001").
		Return([]*models.OverageBilling{apiRow, storageRow}, nil)
	f.provider.On("Get", mock.Anything, "tenant-001").Return(sub, nil)
	f.invoices.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("AttachInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("MarkBilled", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.gateway.SetAttemptResponse(&ports.PaymentAttemptResult{Success: true, PaymentID: "pay-ovg"}, nil)

	require.NoError(t, f.biller.ProcessTenant(ctx, "tenant-001"))

	// One invoice, one payment, two lines: (5.00 + 10.00) * 1.10 = 16.50
	require.Len(t, f.createdInvoices, 1)
	invoice := f.createdInvoices[0]
	require.Len(t, invoice.LineItems, 2)
	assert.True(t, decimal.NewFromFloat(16.50).Equal(invoice.Total), "total %s", invoice.Total)
	assert.Equal(t, 1, f.gateway.AttemptCalls)
	f.overages.AssertCalled(t, "MarkBilled", mock.Anything, mock.Anything,
		[]string{apiRow.ID, storageRow.ID}, invoice.ID)
}

func TestOverageBiller_ProcessAllIsolatesTenantFailures(t *testing.T) {
	f := newOverageFixture(t)
	ctx := context.Background()

	subA := activeSubscription(uuid.New().String())
	subB := activeSubscription(uuid.New().String())
	subB.TenantID = "tenant-b"

	f.overages.On("ListTenantsWithPending", mock.Anything).Return([]string{"tenant-a", "tenant-b"}, nil)
	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-a").
		Return([]*models.OverageBilling{pendingOverage("tenant-a", 100, 0.01)}, nil)
	f.overages.On("ListPendingByTenant", mock.Anything, "tenant-b").
		Return([]*models.OverageBilling{pendingOverage("tenant-b", 200, 0.01)}, nil)
	f.provider.On("Get", mock.Anything, "tenant-a").Return(subA, nil)
	f.provider.On("Get", mock.Anything, "tenant-b").Return(subB, nil)
	f.invoices.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("AttachInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.overages.On("MarkBilled", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// First tenant declines, second approves
	f.gateway.QueueAttemptResponse(&ports.PaymentAttemptResult{Success: false, ResponseCode: "card_declined"}, nil)
	f.gateway.QueueAttemptResponse(&ports.PaymentAttemptResult{Success: true, PaymentID: "pay-b"}, nil)

	require.NoError(t, f.biller.ProcessAll(ctx))

	// Both tenants were attempted despite the first one failing
	assert.Equal(t, 2, f.gateway.AttemptCalls)
	f.overages.AssertNumberOfCalls(t, "MarkBilled", 1)
}
