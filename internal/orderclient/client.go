// Package orderclient talks to the remote order service and sorts every
// failure into retryable network errors and final business rejections.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/posify/internal/contract"
	"github.com/fjod/posify/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 64 << 10

type Config struct {
	BaseURL            string
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*domain.OrderResult]
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*domain.OrderResult](gobreaker.Settings{
		Name:        "order-service",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		// a rejected order means the service is up
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsBusiness(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// SubmitOrder sends payload with its idempotency key. Errors are either
// *domain.NetworkError or *domain.BusinessError.
func (c *Client) SubmitOrder(ctx context.Context, payload domain.OrderPayload) (*domain.OrderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (*domain.OrderResult, error) {
		return c.post(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.NetworkError{Op: "submit order", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, payload domain.OrderPayload) (*domain.OrderResult, error) {
	body, err := json.Marshal(contract.FromPayload(payload))
	if err != nil {
		return nil, fmt.Errorf("marshal order failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(contract.IdempotencyKeyHeader, payload.IdempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: "submit order", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out contract.CreateOrderResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// the order may exist; a replay with the same key settles it
			return nil, &domain.NetworkError{Op: "decode order response", Err: err}
		}
		c.log.Debug("order accepted",
			"idempotency_key", payload.IdempotencyKey, "order_id", out.OrderID, "duplicate", out.Duplicate)
		return out.ToResult(), nil
	case isRetryableStatus(resp.StatusCode):
		return nil, &domain.NetworkError{
			Op:  "submit order",
			Err: fmt.Errorf("order service returned %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, businessError(resp)
	default:
		return nil, &domain.NetworkError{
			Op:  "submit order",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func businessError(resp *http.Response) *domain.BusinessError {
	be := &domain.BusinessError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er contract.ErrorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		be.Code = er.Code
		be.Message = er.Error
		return be
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		be.Message = msg
		return be
	}
	be.Message = http.StatusText(resp.StatusCode)
	return be
}
