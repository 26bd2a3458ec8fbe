package perception

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

// ErrRetriesExhausted wraps the last error once every attempt failed.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying could help (rate limits and server faults).
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryPolicy controls retry behavior with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (>= 1).
	MaxAttempts int

	// MinWait and MaxWait clamp the exponential wait between attempts.
	MinWait time.Duration
	MaxWait time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// IsRecoverable decides whether an error is retried. Nil means IsRecoverable.
	IsRecoverable func(error) bool
}

// DefaultRetryPolicy: 3 attempts, waits clamped to [4s, 10s].
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinWait:     4 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// IsRecoverable is the default retry classifier. Cancellation and client
// errors (4xx other than 429) are final; everything else is retried.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// Do executes fn with retry logic, returning the last error if all attempts fail.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	recoverable := p.IsRecoverable
	if recoverable == nil {
		recoverable = IsRecoverable
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			logging.APIWarn("%s: attempt %d/%d failed, retrying in %v: %v", op, attempt, p.MaxAttempts, delay, lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !recoverable(err) {
			return err
		}
	}

	logging.APIError("%s: giving up after %d attempts: %v", op, p.MaxAttempts, lastErr)
	return fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, lastErr)
}

// backoff computes MinWait * multiplier^(attempt-1) clamped to [MinWait, MaxWait].
func (p RetryPolicy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(p.MinWait) * math.Pow(mult, float64(attempt-1)))
	if delay < p.MinWait {
		delay = p.MinWait
	}
	if p.MaxWait > 0 && delay > p.MaxWait {
		delay = p.MaxWait
	}
	return delay
}

// RetryingClient wraps an LLMClient with a retry policy. Streams are only
// retried while opening; once a delta has been delivered the error surfaces.
type RetryingClient struct {
	inner  LLMClient
	policy RetryPolicy
}

// NewRetryingClient wraps inner with policy.
func NewRetryingClient(inner LLMClient, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{inner: inner, policy: policy}
}

// Invoke implements LLMClient.
func (c *RetryingClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	var resp *LLMToolResponse
	err := c.policy.Do(ctx, "invoke", func() error {
		var err error
		resp, err = c.inner.Invoke(ctx, messages, tools)
		return err
	})
	return resp, err
}

// CompleteStructured implements LLMClient.
func (c *RetryingClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	var out string
	err := c.policy.Do(ctx, "structured", func() error {
		var err error
		out, err = c.inner.CompleteStructured(ctx, messages, schema)
		return err
	})
	return out, err
}

// Stream implements LLMClient.
func (c *RetryingClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	out := make(chan string, 100)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		policy := c.policy
		base := policy.IsRecoverable
		if base == nil {
			base = IsRecoverable
		}
		policy.IsRecoverable = func(err error) bool {
			var partial *partialStreamError
			if errors.As(err, &partial) {
				return false
			}
			return base(err)
		}

		err := policy.Do(ctx, "stream", func() error {
			content, errs := c.inner.Stream(ctx, messages)
			delivered := false
			for content != nil || errs != nil {
				select {
				case delta, ok := <-content:
					if !ok {
						content = nil
						continue
					}
					delivered = true
					select {
					case out <- delta:
					case <-ctx.Done():
						return ctx.Err()
					}
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					if err != nil && delivered {
						return &partialStreamError{err: err}
					}
					if err != nil {
						return err
					}
				}
			}
			return nil
		})
		var partial *partialStreamError
		if errors.As(err, &partial) {
			err = partial.err
		}
		if err != nil {
			errc <- err
		}
	}()

	return out, errc
}

// GetModel implements LLMClient.
func (c *RetryingClient) GetModel() string { return c.inner.GetModel() }

// partialStreamError stops retries once output reached the caller.
type partialStreamError struct{ err error }

func (e *partialStreamError) Error() string { return e.err.Error() }
