// Package resilience wraps external service calls with timeout, bounded
// retries and exponential backoff. It is pure policy: callers hand it a unit
// of work and an operation name, and every failure comes back normalized as a
// ServiceError with one of two codes.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// CodeUpstreamTimeout marks failures that are, or resemble, a timeout.
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
	// CodeUpstreamError marks every other upstream failure.
	CodeUpstreamError = "UPSTREAM_ERROR"
)

// ServiceError is the normalized form of any wrapped failure.
type ServiceError struct {
	Code string
	Op   string
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Code, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// AsServiceError unwraps err to a *ServiceError if one is in the chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Policy holds the retry/timeout parameters. The zero value is unusable; use
// DefaultPolicy or build one from config.
type Policy struct {
	Timeout    time.Duration // per-attempt bound
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // backoff is BaseDelay * 2^attempt
	Logger     *zap.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		BaseDelay:  750 * time.Millisecond,
		Logger:     zap.NewNop(),
	}
}

func (p Policy) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Do executes fn up to MaxRetries+1 times, each attempt bounded by Timeout.
// Non-retryable failures short-circuit after the first attempt that produced
// them. The returned error, if any, is always a *ServiceError.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.BaseDelay * (1 << (attempt - 1))
			p.logger().Warn("retrying upstream call",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, normalize(op, ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 0 {
				p.logger().Info("upstream call recovered",
					zap.String("op", op), zap.Int("attempt", attempt+1))
			}
			return result, nil
		}

		// An attempt that outlived its own deadline is a timeout regardless
		// of what the transport reported.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("operation timed out after %s: %w", p.Timeout, err)
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, normalize(op, err)
		}
		if !IsRetryable(err) {
			p.logger().Error("upstream call failed with non-retryable error",
				zap.String("op", op), zap.Error(err))
			return zero, normalize(op, err)
		}
	}

	p.logger().Error("upstream call exhausted retries",
		zap.String("op", op), zap.Int("attempts", attempts), zap.Error(lastErr))
	return zero, normalize(op, lastErr)
}

var fatalTerms = []string{
	"api key",
	"unauthorized",
	"forbidden",
	"invalid",
	"malformed",
	"schema",
	"not found",
	"400", "401", "403", "404",
}

var transientTerms = []string{
	"timeout", "timed out", "deadline exceeded",
	"429", "500", "502", "503", "504",
	"rate limit", "resource exhausted", "overloaded", "unavailable",
	"connection refused", "connection reset", "network", "temporar",
	"internal server error", "bad gateway",
}

// IsRetryable classifies a failure by its message. Fatal terms win over
// transient ones so "invalid api key" never spins; unknown errors default to
// retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, term := range fatalTerms {
		if strings.Contains(msg, term) {
			return false
		}
	}
	for _, term := range transientTerms {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}

func normalize(op string, err error) *ServiceError {
	code := CodeUpstreamError
	if isTimeout(err) {
		code = CodeUpstreamTimeout
	}
	return &ServiceError{Code: code, Op: op, Err: err}
}

// Upstream wraps an error that was produced outside Do (for example a
// malformed response detected after a successful transport call) into the
// same normalized shape.
func Upstream(op string, err error) *ServiceError {
	return normalize(op, err)
}
