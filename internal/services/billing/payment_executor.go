package billing

import (
	"context"

	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// PaymentExecutor wraps a single idempotent payment call. The idempotency
// key is derived from the invoice ID, so repeated attempts against one
// still-open invoice can never double-charge.
type PaymentExecutor struct {
	gateway ports.PaymentGateway
	logger  *zap.Logger
}

// NewPaymentExecutor creates a new payment executor
func NewPaymentExecutor(gateway ports.PaymentGateway, logger *zap.Logger) *PaymentExecutor {
	return &PaymentExecutor{gateway: gateway, logger: logger}
}

// IdempotencyKey derives the stable key for charging an invoice
func IdempotencyKey(invoiceID string) string {
	return "inv-" + invoiceID
}

// Charge attempts to collect the invoice total from the customer. On
// success it returns the gateway payment ID. Failures are classified into
// the billing taxonomy: declines and gateway faults come back as transient
// payment failures for the retry policy to schedule.
func (e *PaymentExecutor) Charge(ctx context.Context, invoice *models.Invoice, customerID string, metadata map[string]string) (string, error) {
	result, err := e.gateway.Attempt(ctx, &ports.PaymentAttemptRequest{
		IdempotencyKey: IdempotencyKey(invoice.ID),
		Amount:         invoice.Total,
		Currency:       invoice.Currency,
		CustomerID:     customerID,
		Metadata:       metadata,
	})
	if err != nil {
		paymentAttemptsTotal.WithLabelValues("error").Inc()
		if domain.GetErrorCode(err) != "" {
			return "", err
		}
		return "", domain.WrapError(domain.ErrorCodeGatewayError, "payment attempt failed", err)
	}

	if !result.Success {
		paymentAttemptsTotal.WithLabelValues("declined").Inc()
		e.logger.Warn("payment declined",
			zap.String("invoice_id", invoice.ID),
			zap.String("customer_id", customerID),
			zap.String("response_code", result.ResponseCode),
		)
		return "", domain.NewDomainError(domain.ErrorCodeGatewayDeclined, "payment declined by gateway").
			WithDetail("invoice_id", invoice.ID).
			WithDetail("response_code", result.ResponseCode).
			WithDetail("message", result.Message)
	}

	paymentAttemptsTotal.WithLabelValues("approved").Inc()
	e.logger.Info("payment collected",
		zap.String("invoice_id", invoice.ID),
		zap.String("payment_id", result.PaymentID),
		zap.String("amount", invoice.Total.String()),
	)
	return result.PaymentID, nil
}
