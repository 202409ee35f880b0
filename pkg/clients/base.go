// Package clients talks to the reasoning, referee and provisioner services.
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/metrics"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Retryable reports whether a failed call may succeed on another attempt or
// another provider: transport errors, 429 and 5xx.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// BaseConfig configures a Base client.
type BaseConfig struct {
	Service    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Base sends JSON requests through a circuit breaker with bounded
// exponential-backoff retries.
type Base struct {
	service    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewBase creates a Base client.
func NewBase(cfg BaseConfig) *Base {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := &Base{
		service:    cfg.Service,
		http:       cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("upstream", cfg.Service)),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Service,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Client errors say nothing about the health of the service.
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return b
}

// Do sends one request, retrying retryable failures, and returns the body of
// a 2xx response.
func (b *Base) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := b.retryDelay << (attempt - 1)
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := b.breaker.Execute(func() (interface{}, error) {
			return b.doHTTPCall(ctx, method, url, headers, body)
		})
		if err == nil {
			return resp.([]byte), nil
		}
		lastErr = err
		if !Retryable(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		b.logger.Debug("retrying request", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("%s: %w", b.service, lastErr)
}

func (b *Base) doHTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := b.http.Do(req)
	metrics.UpstreamDuration.WithLabelValues(b.service).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(b.service, "error").Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(b.service, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func bearer(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + key}
}
