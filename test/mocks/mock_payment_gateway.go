package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// MockPaymentGateway is a mock implementation of PaymentGateway for testing
type MockPaymentGateway struct {
	mu sync.Mutex

	// Responses to return. When ResponseQueue is non-empty it is consumed
	// in order before falling back to the single configured response.
	attemptResponse *ports.PaymentAttemptResult
	attemptError    error
	responseQueue   []queuedResponse

	// Call tracking
	AttemptCalls int

	// Last request received
	LastAttemptReq *ports.PaymentAttemptRequest

	// All idempotency keys seen, in call order
	IdempotencyKeys []string
}

type queuedResponse struct {
	result *ports.PaymentAttemptResult
	err    error
}

// NewMockPaymentGateway creates a new mock payment gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{}
}

// SetAttemptResponse sets the response to return from Attempt
func (m *MockPaymentGateway) SetAttemptResponse(result *ports.PaymentAttemptResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attemptResponse = result
	m.attemptError = err
}

// QueueAttemptResponse appends a one-shot response consumed by the next call
func (m *MockPaymentGateway) QueueAttemptResponse(result *ports.PaymentAttemptResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseQueue = append(m.responseQueue, queuedResponse{result: result, err: err})
}

// Attempt implements ports.PaymentGateway
func (m *MockPaymentGateway) Attempt(ctx context.Context, req *ports.PaymentAttemptRequest) (*ports.PaymentAttemptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AttemptCalls++
	m.LastAttemptReq = req
	m.IdempotencyKeys = append(m.IdempotencyKeys, req.IdempotencyKey)

	if len(m.responseQueue) > 0 {
		next := m.responseQueue[0]
		m.responseQueue = m.responseQueue[1:]
		return next.result, next.err
	}

	return m.attemptResponse, m.attemptError
}
