package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/resilience"
)

// breakerRemote routes every call through a circuit breaker so an unhealthy
// Redis stops costing a network timeout per search. Misses are successes.
type breakerRemote struct {
	next Remote
	cb   *resilience.CircuitBreaker
}

// WithBreaker wraps remote so its calls go through cb.
func WithBreaker(remote Remote, cb *resilience.CircuitBreaker) Remote {
	return &breakerRemote{next: remote, cb: cb}
}

func (r *breakerRemote) Get(ctx context.Context, key string) (string, error) {
	var (
		val  string
		miss error
	)
	err := r.cb.Execute(func() error {
		v, err := r.next.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = err
			return nil
		}
		val = v
		return err
	})
	if miss != nil {
		return "", miss
	}
	return val, err
}

func (r *breakerRemote) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.cb.Execute(func() error {
		return r.next.Set(ctx, key, value, ttl)
	})
}

func (r *breakerRemote) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := r.cb.Execute(func() error {
		var err error
		n, err = r.next.FlushByPattern(ctx, pattern)
		return err
	})
	return n, err
}
