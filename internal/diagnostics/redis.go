package diagnostics

import (
	"context"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStream mirrors diagnostic lines into a Redis stream so several server
// processes can be followed from one place (XREAD / XRANGE).
// It implements io.Writer; each Write is one XADD.
type RedisStream struct {
	client  backend.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
}

// RedisOption configures a RedisStream.
type RedisOption func(*RedisStream)

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisStream) {
		r.maxLen = n
	}
}

// WithWriteTimeout bounds each XADD.
func WithWriteTimeout(d time.Duration) RedisOption {
	return func(r *RedisStream) {
		r.timeout = d
	}
}

// NewRedisStream creates a stream writer from an existing client.
func NewRedisStream(client backend.UniversalClient, stream string, opts ...RedisOption) *RedisStream {
	r := &RedisStream{
		client:  client,
		stream:  stream,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Write appends p as a single stream entry with field "line".
func (r *RedisStream) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	args := &backend.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"line": strings.TrimRight(string(p), "\n")},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}
