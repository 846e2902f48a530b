package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	mu     sync.Mutex
	values map[string]int64
	ttl    time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{values: make(map[string]int64)}
}

func (c *memCounter) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewBoolResult(false, c.err)
	}
	if _, ok := c.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	c.values[key] = int64(value.(int))
	c.ttl = expiration
	return redis.NewBoolResult(true, nil)
}

func (c *memCounter) Decr(ctx context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]--
	return redis.NewIntResult(c.values[key], nil)
}

func (c *memCounter) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(c.ttl, nil)
}

func TestLimiter_Consume(t *testing.T) {
	l := New(newMemCounter(), "test", 3, time.Minute)
	ctx := context.Background()

	var remaining []int
	for i := 0; i < 3; i++ {
		d, err := l.Consume(ctx, "emp-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		remaining = append(remaining, d.Remaining)
	}
	assert.Equal(t, []int{2, 1, 0}, remaining)

	d, err := l.Consume(ctx, "emp-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetIn)

	other, err := l.Consume(ctx, "emp-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestMiddleware(t *testing.T) {
	counter := newMemCounter()
	l := New(counter, "test", 1, time.Minute)
	handler := Middleware(l, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(a *actor.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if a != nil {
			req = req.WithContext(actor.WithActor(req.Context(), a))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	emp := &actor.Actor{ID: "emp-1", Role: actor.RoleEmployee}
	assert.Equal(t, http.StatusOK, call(emp).Code)

	limited := call(emp)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	// Anonymous requests are left to the auth middleware.
	assert.Equal(t, http.StatusOK, call(nil).Code)

	// A Redis outage does not block requests.
	counter.err = assert.AnError
	assert.Equal(t, http.StatusOK, call(&actor.Actor{ID: "emp-2"}).Code)
}
