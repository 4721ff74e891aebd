package billing_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// MockDBPort mocks the database port
type MockDBPort struct {
	mock.Mock
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	// Execute the function with a nil transaction for testing
	return fn(ctx, nil)
}

// MockBillingCycleRepository mocks the billing cycle repository
type MockBillingCycleRepository struct {
	mock.Mock
}

func (m *MockBillingCycleRepository) Create(ctx context.Context, tx ports.DBTX, cycle *models.BillingCycle) error {
	args := m.Called(ctx, tx, cycle)
	return args.Error(0)
}

func (m *MockBillingCycleRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.BillingCycle, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BillingCycle), args.Error(1)
}

func (m *MockBillingCycleRepository) Update(ctx context.Context, tx ports.DBTX, cycle *models.BillingCycle) error {
	args := m.Called(ctx, tx, cycle)
	return args.Error(0)
}

func (m *MockBillingCycleRepository) ClaimForProcessing(ctx context.Context, id string, fromStatuses []models.BillingCycleStatus) (bool, error) {
	args := m.Called(ctx, id, fromStatuses)
	return args.Bool(0), args.Error(1)
}

func (m *MockBillingCycleRepository) ListDue(ctx context.Context, now time.Time, maxRetries int, limit int32) ([]*models.BillingCycle, error) {
	args := m.Called(ctx, now, maxRetries, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BillingCycle), args.Error(1)
}

func (m *MockBillingCycleRepository) ListActiveBySubscription(ctx context.Context, tx ports.DBTX, subscriptionID string) ([]*models.BillingCycle, error) {
	args := m.Called(ctx, tx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BillingCycle), args.Error(1)
}

func (m *MockBillingCycleRepository) ExistsForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (bool, error) {
	args := m.Called(ctx, subscriptionID, periodStart)
	return args.Bool(0), args.Error(1)
}

func (m *MockBillingCycleRepository) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBillingCycleRepository) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockInvoiceRepository mocks the invoice repository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	args := m.Called(ctx, tx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.Invoice, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Update(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	args := m.Called(ctx, tx, invoice)
	return args.Error(0)
}

// MockOverageRepository mocks the overage repository
type MockOverageRepository struct {
	mock.Mock
}

func (m *MockOverageRepository) Create(ctx context.Context, tx ports.DBTX, overage *models.OverageBilling) error {
	args := m.Called(ctx, tx, overage)
	return args.Error(0)
}

func (m *MockOverageRepository) ListPendingByTenant(ctx context.Context, tenantID string) ([]*models.OverageBilling, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OverageBilling), args.Error(1)
}

func (m *MockOverageRepository) ListTenantsWithPending(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockOverageRepository) AttachInvoice(ctx context.Context, tx ports.DBTX, ids []string, invoiceID string) error {
	args := m.Called(ctx, tx, ids, invoiceID)
	return args.Error(0)
}

func (m *MockOverageRepository) MarkBilled(ctx context.Context, tx ports.DBTX, ids []string, invoiceID string) error {
	args := m.Called(ctx, tx, ids, invoiceID)
	return args.Error(0)
}

// MockNotificationRepository mocks the notification outbox repository
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, tx ports.DBTX, notification *models.ScheduledNotification) error {
	args := m.Called(ctx, tx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListUnsent(ctx context.Context, limit int32) ([]*models.ScheduledNotification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScheduledNotification), args.Error(1)
}

// MockSubscriptionProvider mocks the subscription provider
type MockSubscriptionProvider struct {
	mock.Mock
}

func (m *MockSubscriptionProvider) Get(ctx context.Context, tenantID string) (*models.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionProvider) GetByID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionProvider) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionProvider) Suspend(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

// MockInvoiceGenerator mocks the invoice generator
type MockInvoiceGenerator struct {
	mock.Mock
}

func (m *MockInvoiceGenerator) Generate(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
