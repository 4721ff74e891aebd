package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// OverageRepository implements ports.OverageRepository on pgx
type OverageRepository struct {
	db ports.DBPort
}

// NewOverageRepository creates a new overage repository
func NewOverageRepository(db ports.DBPort) *OverageRepository {
	return &OverageRepository{db: db}
}

func (r *OverageRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new overage billing row
func (r *OverageRepository) Create(ctx context.Context, tx ports.DBTX, overage *models.OverageBilling) error {
	unitPrice, err := decimalToNumeric(overage.UnitPrice)
	if err != nil {
		return err
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO overage_billings (
			id, tenant_id, resource_type, quota_limit, actual_usage,
			overage_amount, unit_price, status, invoice_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		overage.ID, overage.TenantID, overage.ResourceType,
		overage.QuotaLimit, overage.ActualUsage, overage.OverageAmount,
		unitPrice, string(overage.Status), nullText(overage.InvoiceID),
		overage.CreatedAt, overage.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create overage billing: %w", err)
	}
	return nil
}

// ListPendingByTenant returns all pending overage rows for a tenant
func (r *OverageRepository) ListPendingByTenant(ctx context.Context, tenantID string) ([]*models.OverageBilling, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT id, tenant_id, resource_type, quota_limit, actual_usage,
			overage_amount, unit_price, status, invoice_id, created_at, updated_at
		FROM overage_billings
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at`,
		tenantID, string(models.OverageStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending overages: %w", err)
	}
	defer rows.Close()

	var overages []*models.OverageBilling
	for rows.Next() {
		overage, err := scanOverage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overage: %w", err)
		}
		overages = append(overages, overage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overages: %w", err)
	}
	return overages, nil
}

// ListTenantsWithPending returns tenant IDs holding at least one pending row
func (r *OverageRepository) ListTenantsWithPending(ctx context.Context) ([]string, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT DISTINCT tenant_id FROM overage_billings WHERE status = $1`,
		string(models.OverageStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants with pending overages: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// AttachInvoice stamps the supplemental invoice onto still-pending rows
func (r *OverageRepository) AttachInvoice(ctx context.Context, tx ports.DBTX, ids []string, invoiceID string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.executor(tx).Exec(ctx, `
		UPDATE overage_billings
		SET invoice_id = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status = $3`,
		ids, invoiceID, string(models.OverageStatusPending),
	)
	if err != nil {
		return fmt.Errorf("attach invoice to overages: %w", err)
	}
	return nil
}

// MarkBilled flips the given pending rows to billed, stamping the settling
// invoice. Rows that already left pending are not touched.
func (r *OverageRepository) MarkBilled(ctx context.Context, tx ports.DBTX, ids []string, invoiceID string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.executor(tx).Exec(ctx, `
		UPDATE overage_billings
		SET status = $2, invoice_id = $3, updated_at = NOW()
		WHERE id = ANY($1) AND status = $4`,
		ids, string(models.OverageStatusBilled), invoiceID,
		string(models.OverageStatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark overages billed: %w", err)
	}
	return nil
}

func scanOverage(row pgx.Row) (*models.OverageBilling, error) {
	var (
		overage   models.OverageBilling
		unitPrice pgtype.Numeric
		status    string
		invoiceID *string
	)

	err := row.Scan(
		&overage.ID, &overage.TenantID, &overage.ResourceType,
		&overage.QuotaLimit, &overage.ActualUsage, &overage.OverageAmount,
		&unitPrice, &status, &invoiceID,
		&overage.CreatedAt, &overage.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if overage.UnitPrice, err = numericToDecimal(unitPrice); err != nil {
		return nil, err
	}
	overage.Status = models.OverageStatus(status)
	if invoiceID != nil {
		overage.InvoiceID = *invoiceID
	}
	return &overage, nil
}
