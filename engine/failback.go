package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"
)

// FailbackEngine asks each engine in turn until one succeeds.
type FailbackEngine struct {
	engines []Engine
}

func NewFailbackEngine(engines ...Engine) *FailbackEngine {
	return &FailbackEngine{engines: engines}
}

func (e *FailbackEngine) Generate(ctx context.Context, req *Request) (*schema.Message, error) {
	var lastErr error
	for i, eng := range e.engines {
		msg, err := eng.Generate(ctx, req)
		if err == nil {
			return msg, nil
		}
		slog.Debug("Engine failed, trying next", "index", i, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ErrNoResponse
	}
	return nil, fmt.Errorf("all engines failed: %w", lastErr)
}
