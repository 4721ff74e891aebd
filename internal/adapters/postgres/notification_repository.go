package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// NotificationRepository implements ports.NotificationRepository on pgx.
// It is the outbox table: the engine only inserts, the delivery worker
// flips sent.
type NotificationRepository struct {
	db ports.DBPort
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db ports.DBPort) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a notification intent
func (r *NotificationRepository) Create(ctx context.Context, tx ports.DBTX, n *models.ScheduledNotification) error {
	var metadata []byte
	var err error
	if n.Metadata != nil {
		metadata, err = json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal notification metadata: %w", err)
		}
	} else {
		metadata = []byte("{}")
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO scheduled_notifications (
			id, type, tenant_id, subscription_id, invoice_id, payment_id,
			scheduled_for, sent, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, string(n.Type), n.TenantID, n.SubscriptionID,
		nullText(n.InvoiceID), nullText(n.PaymentID),
		n.ScheduledFor, n.Sent, metadata, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create scheduled notification: %w", err)
	}
	return nil
}

// ListUnsent returns notification intents awaiting delivery
func (r *NotificationRepository) ListUnsent(ctx context.Context, limit int32) ([]*models.ScheduledNotification, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT id, type, tenant_id, subscription_id, invoice_id, payment_id,
			scheduled_for, sent, metadata, created_at
		FROM scheduled_notifications
		WHERE sent = FALSE
		ORDER BY scheduled_for
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsent notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.ScheduledNotification
	for rows.Next() {
		var (
			n         models.ScheduledNotification
			nType     string
			invoiceID *string
			paymentID *string
			metadata  []byte
		)
		err := rows.Scan(
			&n.ID, &nType, &n.TenantID, &n.SubscriptionID,
			&invoiceID, &paymentID, &n.ScheduledFor, &n.Sent,
			&metadata, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}

		n.Type = models.NotificationType(nType)
		if invoiceID != nil {
			n.InvoiceID = *invoiceID
		}
		if paymentID != nil {
			n.PaymentID = *paymentID
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal notification metadata: %w", err)
			}
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}
