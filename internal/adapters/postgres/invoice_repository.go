package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// InvoiceRepository implements ports.InvoiceRepository on pgx. Line items
// are stored as a JSONB document alongside the invoice row.
type InvoiceRepository struct {
	db ports.DBPort
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db ports.DBPort) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}

	subtotal, err := decimalToNumeric(invoice.Subtotal)
	if err != nil {
		return err
	}
	tax, err := decimalToNumeric(invoice.Tax)
	if err != nil {
		return err
	}
	total, err := decimalToNumeric(invoice.Total)
	if err != nil {
		return err
	}
	amountPaid, err := decimalToNumeric(invoice.AmountPaid)
	if err != nil {
		return err
	}
	amountDue, err := decimalToNumeric(invoice.AmountDue)
	if err != nil {
		return err
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO invoices (
			id, tenant_id, line_items, subtotal, tax, total, amount_paid,
			amount_due, currency, status, period_start, period_end, due_date,
			paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		invoice.ID, invoice.TenantID, lineItems,
		subtotal, tax, total, amountPaid, amountDue,
		invoice.Currency, string(invoice.Status),
		invoice.PeriodStart, invoice.PeriodEnd, invoice.DueDate,
		nullTimestamptz(invoice.PaidAt), invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice by its ID
func (r *InvoiceRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.Invoice, error) {
	row := r.executor(tx).QueryRow(ctx, `
		SELECT id, tenant_id, line_items, subtotal, tax, total, amount_paid,
			amount_due, currency, status, period_start, period_end, due_date,
			paid_at, created_at, updated_at
		FROM invoices WHERE id = $1`, id)

	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound.WithDetail("invoice_id", id)
		}
		return nil, fmt.Errorf("get invoice by id: %w", err)
	}
	return invoice, nil
}

// Update updates a settleable invoice. Settled invoices (paid or
// uncollectible) are immutable: the statement refuses to match them.
func (r *InvoiceRepository) Update(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	amountPaid, err := decimalToNumeric(invoice.AmountPaid)
	if err != nil {
		return err
	}
	amountDue, err := decimalToNumeric(invoice.AmountDue)
	if err != nil {
		return err
	}

	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE invoices SET
			status = $2,
			amount_paid = $3,
			amount_due = $4,
			paid_at = $5,
			updated_at = $6
		WHERE id = $1 AND status = $7`,
		invoice.ID, string(invoice.Status),
		amountPaid, amountDue,
		nullTimestamptz(invoice.PaidAt), invoice.UpdatedAt,
		string(models.InvoiceStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceImmutable.WithDetail("invoice_id", invoice.ID)
	}
	return nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		invoice   models.Invoice
		lineItems []byte
		status    string
		subtotal  pgtype.Numeric
		tax       pgtype.Numeric
		total     pgtype.Numeric
		paid      pgtype.Numeric
		due       pgtype.Numeric
		paidAt    *time.Time
	)

	err := row.Scan(
		&invoice.ID, &invoice.TenantID, &lineItems,
		&subtotal, &tax, &total, &paid, &due,
		&invoice.Currency, &status,
		&invoice.PeriodStart, &invoice.PeriodEnd, &invoice.DueDate,
		&paidAt, &invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &invoice.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}

	if invoice.Subtotal, err = numericToDecimal(subtotal); err != nil {
		return nil, err
	}
	if invoice.Tax, err = numericToDecimal(tax); err != nil {
		return nil, err
	}
	if invoice.Total, err = numericToDecimal(total); err != nil {
		return nil, err
	}
	if invoice.AmountPaid, err = numericToDecimal(paid); err != nil {
		return nil, err
	}
	if invoice.AmountDue, err = numericToDecimal(due); err != nil {
		return nil, err
	}

	invoice.Status = models.InvoiceStatus(status)
	invoice.PaidAt = paidAt
	return &invoice, nil
}
