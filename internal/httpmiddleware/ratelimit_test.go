package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hadirku/internal/auth"
)

type fakeCounter struct {
	hits map[string]int64
	err  error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{hits: make(map[string]int64)}
}

func (f *fakeCounter) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.hits[key]++
	return f.hits[key], nil
}

func limiterRouter(limiter *StationLimiter, claims *auth.Claims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) { c.Set("claims", *claims) })
	}
	r.Use(limiter.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doPing(r *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestStationLimiterRejectsOverLimit(t *testing.T) {
	counter := newFakeCounter()
	r := limiterRouter(NewStationLimiter(counter, 3), nil)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doPing(r))
	}
	assert.Equal(t, http.StatusTooManyRequests, doPing(r))
}

func TestStationLimiterKeysByStationSubject(t *testing.T) {
	counter := newFakeCounter()
	claims := &auth.Claims{Subject: "gate-a", Role: "station"}
	r := limiterRouter(NewStationLimiter(counter, 10), claims)

	require.Equal(t, http.StatusOK, doPing(r))

	assert.Contains(t, counter.hits, "hadirku:ratelimit:station:gate-a")
	assert.NotContains(t, counter.hits, "hadirku:ratelimit:ip:192.0.2.1")
}

func TestStationLimiterFallsBackToClientIP(t *testing.T) {
	counter := newFakeCounter()
	r := limiterRouter(NewStationLimiter(counter, 10), nil)

	require.Equal(t, http.StatusOK, doPing(r))

	require.Len(t, counter.hits, 1)
	for key := range counter.hits {
		assert.Contains(t, key, "hadirku:ratelimit:ip:")
	}
}

func TestStationLimiterFailsOpenOnCounterError(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("redis down")
	r := limiterRouter(NewStationLimiter(counter, 1), nil)

	assert.Equal(t, http.StatusOK, doPing(r))
	assert.Equal(t, http.StatusOK, doPing(r))
}

func TestStationLimiterIsolatesStations(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewStationLimiter(counter, 1)

	gateA := limiterRouter(limiter, &auth.Claims{Subject: "gate-a"})
	gateB := limiterRouter(limiter, &auth.Claims{Subject: "gate-b"})

	require.Equal(t, http.StatusOK, doPing(gateA))
	require.Equal(t, http.StatusTooManyRequests, doPing(gateA))
	assert.Equal(t, http.StatusOK, doPing(gateB))
}
