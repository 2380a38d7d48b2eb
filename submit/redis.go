package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbxark/formcopilot/types"
)

const DefaultStream = "formcopilot:submissions"

// RedisStreamSubmitter appends every submission to a Redis stream so a
// downstream consumer can notify the reviewers.
type RedisStreamSubmitter struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	now    func() time.Time
}

type RedisOption func(*RedisStreamSubmitter)

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisStreamSubmitter) {
		s.maxLen = n
	}
}

func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStreamSubmitter) {
		s.now = now
	}
}

func NewRedisStreamSubmitter(client redis.UniversalClient, stream string, opts ...RedisOption) (*RedisStreamSubmitter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if stream == "" {
		stream = DefaultStream
	}
	s := &RedisStreamSubmitter{client: client, stream: stream, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStreamSubmitter) Submit(ctx context.Context, record types.Record) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"name":         record.Name,
			"email":        record.Email,
			"profileUrl":   record.ProfileURL,
			"idea":         record.Idea,
			"submitted_at": s.now().UTC().Format(time.RFC3339),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append submission to %s: %w", s.stream, err)
	}
	return nil
}
