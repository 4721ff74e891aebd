package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAttemptRequest is a single idempotent charge request. Repeated calls
// with the same IdempotencyKey must never duplicate the monetary effect.
type PaymentAttemptRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	CustomerID     string
	Metadata       map[string]string
}

// PaymentAttemptResult is the outcome of a charge request
type PaymentAttemptResult struct {
	Success      bool
	PaymentID    string
	ResponseCode string
	Message      string
	Timestamp    time.Time
}

// PaymentGateway is the outbound payment collaborator. The gateway client
// owns its network timeout: a stuck call must not hold a concurrency slot
// indefinitely.
type PaymentGateway interface {
	Attempt(ctx context.Context, req *PaymentAttemptRequest) (*PaymentAttemptResult, error)
}
