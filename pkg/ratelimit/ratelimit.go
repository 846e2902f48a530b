// Package ratelimit bounds how often a caller may hit mutation endpoints.
//
// Each key gets a fixed window counter in Redis: the first request of a
// window seeds the counter with SETNX and an expiry, later requests DECR
// it until it goes negative.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/httputil"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// Counter is the subset of the Redis client the limiter needs
type Counter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Decision is the outcome of one Consume call
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter is a fixed window limiter backed by Redis
type Limiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
}

// New creates a limiter allowing limit requests per window and key
func New(counter Counter, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{counter: counter, prefix: prefix, limit: limit, window: window}
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Consume spends one request from key's window
func (l *Limiter) Consume(ctx context.Context, key string) (Decision, error) {
	redisKey := l.prefix + ":" + key

	created, err := l.counter.SetNX(ctx, redisKey, l.limit-1, l.window).Result()
	if err != nil {
		return Decision{}, err
	}
	if created {
		return Decision{Allowed: l.limit > 0, Remaining: max(l.limit-1, 0), ResetIn: l.window}, nil
	}

	left, err := l.counter.Decr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, err
	}
	ttl, _ := l.counter.TTL(ctx, redisKey).Result()
	if ttl < 0 {
		ttl = 0
	}

	if left < 0 {
		return Decision{Allowed: false, ResetIn: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: int(left), ResetIn: ttl}, nil
}

// Middleware limits requests per authenticated actor. Redis failures let
// the request through.
func Middleware(l *Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := l.Consume(r.Context(), a.ID)
			if err != nil {
				log.Warn().Err(err).Str("user_id", a.ID).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.ResetIn.Seconds())))
				httputil.Error(w, errors.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
