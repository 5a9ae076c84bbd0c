// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterFallback(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Limit: PerMinute(2, 2)})
	h := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/v1/scans", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
		} else {
			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their own bucket")
}

func TestRateLimiterBypass(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{
		Limit:      PerMinute(1, 1),
		BypassFunc: func(r *http.Request) bool { return r.URL.Path == "/healthz" },
	})
	h := rl.Handler(okHandler())

	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/principals/1001/roles", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	assert.Equal(t, "ratelimit:ip:192.0.2.7", KeyByIP(req))
	assert.Equal(t, "ratelimit:ip:192.0.2.7", KeyByClient(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.1, 198.51.100.2")
	assert.Equal(t, "ratelimit:ip:198.51.100.2", KeyByIP(req))

	ctx := context.WithValue(req.Context(), ClientIDKey, "chat-bot")
	req = req.WithContext(ctx)
	assert.Equal(t, "ratelimit:client:chat-bot", KeyByClient(req))
	assert.Equal(
		t,
		"ratelimit:client:chat-bot:endpoint:/v1/principals/{id}/roles",
		KeyByClientAndEndpoint(req),
	)
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "/v1/stats/invited", normalizeEndpoint("/v1/stats/invited"))
	assert.Equal(t, "/v1/principals/{id}", normalizeEndpoint("/v1/principals/42/"))
	assert.Equal(
		t,
		"/v1/things/{id}",
		normalizeEndpoint("/v1/things/123e4567-e89b-12d3-a456-426614174000"),
	)
}

func multipartScan(t *testing.T, staffID string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("staff_id", staffID))
	part, err := mw.CreateFormFile("image", "scan.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/scans/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "10.0.0.1:5555"
	return req
}

func jsonScan(staffID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/scans/token",
		strings.NewReader(`{"staff_id":"`+staffID+`","token":"1001:ab"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.RemoteAddr = "10.0.0.1:5555"
	return req
}

func TestKeyByStaff(t *testing.T) {
	key := KeyByStaff(1 << 20)

	t.Run("multipart form", func(t *testing.T) {
		req := multipartScan(t, "9000")
		assert.Equal(t, "ratelimit:ip:10.0.0.1:staff:9000", key(req))
		assert.Equal(t, "9000", req.FormValue("staff_id"))

		file, _, err := req.FormFile("image")
		require.NoError(t, err)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "png bytes", string(data))
	})

	t.Run("json body is replayed", func(t *testing.T) {
		req := jsonScan("9001")
		req = req.WithContext(context.WithValue(req.Context(), ClientIDKey, "chat-bot"))
		assert.Equal(t, "ratelimit:client:chat-bot:staff:9001", key(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"staff_id":"9001","token":"1001:ab"}`, string(rest))
	})

	t.Run("no staff id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/scans/token", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.1:5555"
		assert.Equal(t, "ratelimit:ip:10.0.0.1:endpoint:/v1/scans/token", key(req))

		req = httptest.NewRequest(http.MethodGet, "/v1/scans/token", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		assert.Equal(t, "ratelimit:ip:10.0.0.1:endpoint:/v1/scans/token", key(req))
	})
}

func TestScanLimitPerStaff(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{
		Limit:   PerMinute(1, 1),
		KeyFunc: KeyByStaff(1 << 20),
	})

	var seen []string
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.FormValue("staff_id"))
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(multipartScan(t, "9000")))
	assert.Equal(t, http.StatusTooManyRequests, serve(multipartScan(t, "9000")))
	assert.Equal(t, http.StatusOK, serve(multipartScan(t, "9001")), "another door keeps its own budget")
	assert.Equal(t, http.StatusTooManyRequests, serve(jsonScan("9001")))
	assert.Equal(t, []string{"9000", "9001"}, seen)
}

func TestLocalLimiterSweepsIdleBuckets(t *testing.T) {
	l := newLocalLimiter()
	l.allow("stale", PerMinute(10, 10))

	v, ok := l.buckets.Load("stale")
	require.True(t, ok)
	v.(*bucket).lastSeen.Store(time.Now().Add(-2 * bucketTTL).Unix())
	l.lastSweep.Store(time.Now().Add(-2 * sweepInterval).Unix())

	l.allow("fresh", PerMinute(10, 10))

	_, ok = l.buckets.Load("stale")
	assert.False(t, ok)
	_, ok = l.buckets.Load("fresh")
	assert.True(t, ok)
}
