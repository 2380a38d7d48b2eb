package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
)

// RetryEngine retries failed calls with exponential backoff. Cancellation of
// the caller's context is never retried.
type RetryEngine struct {
	next       Engine
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type RetryOption func(*RetryEngine)

// WithBackOff replaces the default exponential policy.
func WithBackOff(newBackOff func() backoff.BackOff) RetryOption {
	return func(e *RetryEngine) {
		e.newBackOff = newBackOff
	}
}

func NewRetryEngine(next Engine, maxRetries int, opts ...RetryOption) *RetryEngine {
	if maxRetries < 0 {
		maxRetries = 0
	}
	e := &RetryEngine{
		next:       next,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 300 * time.Millisecond
			b.MaxInterval = 3 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *RetryEngine) Generate(ctx context.Context, req *Request) (*schema.Message, error) {
	var out *schema.Message
	attempt := 0
	op := func() error {
		attempt++
		msg, err := e.next.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			slog.Debug("Engine call failed", "attempt", attempt, "error", err)
			return err
		}
		out = msg
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return out, nil
}
