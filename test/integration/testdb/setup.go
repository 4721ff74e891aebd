package testdb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDBConfig holds test database configuration
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// GetTestDBConfig returns test database configuration from environment or defaults
func GetTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnv("TEST_DB_PORT", "5434"),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "billing_service_test"),
	}
}

// SetupTestDB creates a test database connection pool and runs migrations
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	cfg := GetTestDBConfig()

	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		t.Fatalf("Failed to parse database config: %v", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Test database unreachable, skipping: %v", err)
	}

	if err := runMigrations(pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Clean all tables for fresh test state
	CleanDatabase(t, pool)

	t.Logf("Test database setup complete: %s", cfg.Database)

	return pool
}

// CleanDatabase truncates all tables for a fresh test state
func CleanDatabase(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()

	tables := []string{"billing_cycles", "invoices", "overage_billings", "scheduled_notifications", "subscriptions"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// TeardownTestDB closes the database connection pool
func TeardownTestDB(t *testing.T, pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
		t.Log("Test database connection closed")
	}
}

// runMigrations runs all database migrations
func runMigrations(pool *pgxpool.Pool) error {
	ctx := context.Background()

	migrationSQL := `
-- Subscriptions table. Owned by the surrounding application in production;
-- the billing engine reads it and flips status on suspension.
CREATE TABLE IF NOT EXISTS subscriptions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id VARCHAR(100) NOT NULL UNIQUE,
    customer_id VARCHAR(100) NOT NULL,
    plan_amount NUMERIC(19, 4) NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'USD',
    billing_interval VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL,
    payment_provider VARCHAR(50) NOT NULL,
    current_period_end TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT subscriptions_plan_amount_positive CHECK (plan_amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status);

-- Billing cycles table
CREATE TABLE IF NOT EXISTS billing_cycles (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id VARCHAR(100) NOT NULL,
    subscription_id UUID NOT NULL,
    cycle_start TIMESTAMPTZ NOT NULL,
    cycle_end TIMESTAMPTZ NOT NULL,
    status VARCHAR(20) NOT NULL,
    invoice_id VARCHAR(100),
    payment_id VARCHAR(255),
    retry_count INT NOT NULL DEFAULT 0,
    next_retry_at TIMESTAMPTZ,
    failure_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT billing_cycles_retry_count_non_negative CHECK (retry_count >= 0),
    CONSTRAINT billing_cycles_window_valid CHECK (cycle_end >= cycle_start)
);

CREATE INDEX IF NOT EXISTS idx_billing_cycles_subscription_id ON billing_cycles(subscription_id);
CREATE INDEX IF NOT EXISTS idx_billing_cycles_tenant_id ON billing_cycles(tenant_id);
CREATE INDEX IF NOT EXISTS idx_billing_cycles_status ON billing_cycles(status);
CREATE INDEX IF NOT EXISTS idx_billing_cycles_due ON billing_cycles(cycle_end) WHERE status = 'scheduled';
CREATE INDEX IF NOT EXISTS idx_billing_cycles_retry ON billing_cycles(next_retry_at) WHERE status = 'awaiting_retry';

-- Invoices table
CREATE TABLE IF NOT EXISTS invoices (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id VARCHAR(100) NOT NULL,
    line_items JSONB NOT NULL DEFAULT '[]'::jsonb,
    subtotal NUMERIC(19, 4) NOT NULL,
    tax NUMERIC(19, 4) NOT NULL DEFAULT 0,
    total NUMERIC(19, 4) NOT NULL,
    amount_paid NUMERIC(19, 4) NOT NULL DEFAULT 0,
    amount_due NUMERIC(19, 4) NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'USD',
    status VARCHAR(20) NOT NULL,
    period_start TIMESTAMPTZ NOT NULL,
    period_end TIMESTAMPTZ NOT NULL,
    due_date TIMESTAMPTZ NOT NULL,
    paid_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT invoices_total_non_negative CHECK (total >= 0)
);

CREATE INDEX IF NOT EXISTS idx_invoices_tenant_id ON invoices(tenant_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);

-- Overage billing rows
CREATE TABLE IF NOT EXISTS overage_billings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id VARCHAR(100) NOT NULL,
    resource_type VARCHAR(50) NOT NULL,
    quota_limit BIGINT NOT NULL,
    actual_usage BIGINT NOT NULL,
    overage_amount BIGINT NOT NULL,
    unit_price NUMERIC(19, 6) NOT NULL,
    status VARCHAR(20) NOT NULL,
    invoice_id VARCHAR(100),
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT overage_billings_amount_non_negative CHECK (overage_amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_overage_billings_tenant_status ON overage_billings(tenant_id, status);

-- Notification outbox
CREATE TABLE IF NOT EXISTS scheduled_notifications (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    type VARCHAR(50) NOT NULL,
    tenant_id VARCHAR(100) NOT NULL,
    subscription_id UUID NOT NULL,
    invoice_id VARCHAR(100),
    payment_id VARCHAR(255),
    scheduled_for TIMESTAMPTZ NOT NULL,
    sent BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_unsent ON scheduled_notifications(scheduled_for) WHERE sent = FALSE;
CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_tenant_id ON scheduled_notifications(tenant_id);

-- Update timestamp trigger function
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = CURRENT_TIMESTAMP;
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_subscriptions_updated_at ON subscriptions;
CREATE TRIGGER update_subscriptions_updated_at BEFORE UPDATE ON subscriptions
    FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();

DROP TRIGGER IF EXISTS update_invoices_updated_at ON invoices;
CREATE TRIGGER update_invoices_updated_at BEFORE UPDATE ON invoices
    FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
`

	_, err := pool.Exec(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
