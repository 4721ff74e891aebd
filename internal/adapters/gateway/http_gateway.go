package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// Config holds payment gateway client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// MaxAttemptsPerSecond caps outbound charge calls across all workers,
	// with AttemptBurst absorbing short spikes. Zero falls back to the
	// defaults below.
	MaxAttemptsPerSecond float64
	AttemptBurst         int
}

// HTTPGateway implements ports.PaymentGateway over the provider's JSON API.
// The client enforces its own hard timeout: a stuck gateway call must never
// hold one of the engine's concurrency slots indefinitely.
type HTTPGateway struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHTTPGateway creates a new payment gateway client
func NewHTTPGateway(config Config, logger *zap.Logger) *HTTPGateway {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttemptsPerSecond <= 0 {
		config.MaxAttemptsPerSecond = 25
	}
	if config.AttemptBurst <= 0 {
		config.AttemptBurst = 10
	}

	// Single-host client, tuned the same way as the rest of our outbound
	// payment plumbing.
	transport := &http.Transport{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.Timeout,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
	}

	return &HTTPGateway{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.MaxAttemptsPerSecond), config.AttemptBurst),
		logger:  logger,
	}
}

// chargeRequest represents the provider API request structure
type chargeRequest struct {
	Amount     string            `json:"amount"`
	Currency   string            `json:"currency"`
	CustomerID string            `json:"customer_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// chargeResponse represents the provider API response structure
type chargeResponse struct {
	PaymentID    string `json:"payment_id"`
	Status       string `json:"status"` // approved, declined
	ResponseCode string `json:"response_code"`
	Message      string `json:"message"`
}

// Attempt executes one idempotent charge. The idempotency key travels as a
// header, so re-sending the same key for a still-open invoice can never
// double-charge.
func (g *HTTPGateway) Attempt(ctx context.Context, req *ports.PaymentAttemptRequest) (*ports.PaymentAttemptResult, error) {
	if req.IdempotencyKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "idempotency key is required").
			WithDetail("field", "idempotency_key")
	}

	// The limiter bounds outbound load on the provider; a wait cut short by
	// the caller's deadline counts as a timeout so the retry policy books
	// it like any other slow gateway.
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayTimeout, "charge rate limit wait interrupted", err)
	}

	body, err := json.Marshal(chargeRequest{
		Amount:     req.Amount.String(),
		Currency:   req.Currency,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			g.logger.Warn("gateway call timed out",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil, domain.WrapError(domain.ErrorCodeGatewayTimeout, "charge request timed out", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "charge request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "read charge response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "gateway unavailable").
			WithDetail("status_code", resp.StatusCode)
	}

	var charge chargeResponse
	if err := json.Unmarshal(respBody, &charge); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "decode charge response", err)
	}

	result := &ports.PaymentAttemptResult{
		Success:      resp.StatusCode < 400 && charge.Status == "approved",
		PaymentID:    charge.PaymentID,
		ResponseCode: charge.ResponseCode,
		Message:      charge.Message,
		Timestamp:    time.Now().UTC(),
	}

	g.logger.Info("gateway charge attempted",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Bool("approved", result.Success),
		zap.String("response_code", charge.ResponseCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
