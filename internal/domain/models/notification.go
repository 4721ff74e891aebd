package models

import "time"

// NotificationType identifies the kind of outbound notification intent
type NotificationType string

const (
	NotificationUpcomingPayment       NotificationType = "upcoming_payment"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationPaymentSucceeded      NotificationType = "payment_succeeded"
	NotificationInvoiceGenerated      NotificationType = "invoice_generated"
	NotificationSubscriptionCancelled NotificationType = "subscription_cancelled"
)

// ScheduledNotification is an outbox record. The engine only persists these;
// an external delivery worker sends them and flips Sent. Scheduling is
// at-least-once, deduplication is the delivery worker's problem.
type ScheduledNotification struct {
	ID             string
	Type           NotificationType
	TenantID       string
	SubscriptionID string
	InvoiceID      string
	PaymentID      string
	ScheduledFor   time.Time
	Sent           bool
	Metadata       map[string]string
	CreatedAt      time.Time
}
