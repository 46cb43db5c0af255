// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis returns a client whose server is already gone, forcing
// the limiter onto its in-process fallback.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	mr.Close()

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestLimiter(t *testing.T, cfg RateLimitConfig) *RateLimiter {
	t.Helper()

	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(unreachableRedis(t), cfg)
	t.Cleanup(rl.Close)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterFallsBackWhenRedisIsDown(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{Limit: PerMinute(1, 2)})
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "/v1/checkout", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, hit(h, "/v1/checkout", "10.0.0.1:1000").Code)

	rec := hit(h, "/v1/checkout", "10.0.0.1:1000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)

	assert.Equal(t, http.StatusOK, hit(h, "/v1/checkout", "10.0.0.2:1000").Code,
		"other clients keep their own budget")
}

func TestRateLimiterBypassesWebhooksAndHealthChecks(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{
		Limit:      PerMinute(1, 1),
		BypassFunc: BypassPrefixes("/webhooks", "/readyz"),
	})
	h := rl.Handler(okHandler())

	for range 5 {
		assert.Equal(t, http.StatusOK, hit(h, "/webhooks/billing", "10.0.0.1:1000").Code)
		assert.Equal(t, http.StatusOK, hit(h, "/readyz", "10.0.0.1:1000").Code)
	}

	assert.Equal(t, http.StatusOK, hit(h, "/v1/entitlements/me", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "/v1/entitlements/me", "10.0.0.1:1000").Code)
}

func TestKeyByIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "ip:192.0.2.1", KeyByIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "ip:198.51.100.7", KeyByIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.2")
	assert.Equal(t, "ip:198.51.100.2", KeyByIP(req))
}

func TestKeyByUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "ip:192.0.2.1", KeyByUser(req))

	ctx := WithClaims(context.Background(), &AccessTokenClaims{UserID: "u1", Role: "user"})
	assert.Equal(t, "user:u1", KeyByUser(req.WithContext(ctx)))
}

func TestPerWindowDefaultsToMinute(t *testing.T) {
	limit := PerWindow(5, 2, 0)

	assert.Equal(t, 5, limit.Rate)
	assert.Equal(t, 2, limit.Burst)
	assert.Equal(t, time.Minute, limit.Period)
}
