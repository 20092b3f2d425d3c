// Package retry provides a bounded exponential-backoff executor for a single
// asynchronous operation, independent of what the operation does.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxJitter is the upper bound of the random spread added to every backoff
// delay so that replaying clients do not thunder in lockstep.
const maxJitter = 100 * time.Millisecond

// Config bounds a retry loop. It is supplied per call and never persisted.
type Config struct {
	MaxRetries           int
	InitialDelay         time.Duration
	RetryableStatusCodes []int
}

// DefaultConfig returns the standard retry budget.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:           3,
		InitialDelay:         time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

func (c *Config) normalize() *Config {
	out := *c
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = time.Second
	}
	if out.RetryableStatusCodes == nil {
		out.RetryableStatusCodes = DefaultConfig().RetryableStatusCodes
	}
	return &out
}

// Result carries the operation's value and how many invocations it took.
type Result[T any] struct {
	Data     T
	Attempts int
}

// Do executes op with bounded retries and exponential backoff plus jitter.
// op is invoked at most MaxRetries+1 times. A failure is retried only when
// Retryable classifies it so; otherwise (and after the budget is spent) the
// original error is returned unchanged.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), cfg *Config) (*Result[T], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.normalize()

	for attempt := 0; ; attempt++ {
		data, err := op(ctx)
		if err == nil {
			return &Result[T]{Data: data, Attempts: attempt + 1}, nil
		}

		if !Retryable(err, cfg) || attempt == cfg.MaxRetries {
			return nil, err
		}

		delay := Backoff(cfg.InitialDelay, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Backoff returns the delay before the retry that follows the given attempt
// index: initialDelay * 2^attempt plus uniform jitter in [0, 100ms).
func Backoff(initialDelay time.Duration, attempt int) time.Duration {
	return initialDelay<<uint(attempt) + rand.N(maxJitter)
}

// Retryable classifies a failure. Network errors are always retryable as long
// as attempts remain; HTTP errors are retryable iff their status is in the
// configured set; anything else is an application error and surfaces
// immediately.
func Retryable(err error, cfg *Config) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	if status, ok := HTTPStatus(err); ok {
		for _, code := range cfg.RetryableStatusCodes {
			if status == code {
				return true
			}
		}
	}
	return false
}
