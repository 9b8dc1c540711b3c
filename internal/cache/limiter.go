package cache

import (
	"context"
	"time"
)

// Limiter counts events per key in fixed windows.
type Limiter interface {
	// Allow records one event for key and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// WindowLimiter is a fixed window counter stored in redis. An unreachable
// redis allows every event.
type WindowLimiter struct {
	cache  *Client
	prefix string
}

var _ Limiter = (*WindowLimiter)(nil)

// NewWindowLimiter namespaces every counter under prefix.
func NewWindowLimiter(cache *Client, prefix string) *WindowLimiter {
	return &WindowLimiter{cache: cache, prefix: prefix}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	n := l.cache.Incr(ctx, l.prefix+key, window)
	return n <= int64(limit)
}
