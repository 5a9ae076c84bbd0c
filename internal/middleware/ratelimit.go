// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/gatepass/internal/core"
)

type RateLimitConfig struct {
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	FailOpen   bool
	BypassFunc func(*http.Request) bool
	OnLimited  func(http.ResponseWriter, *http.Request, *redis_rate.Result)
}

type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	config   RateLimitConfig
}

// NewRateLimiter limits through Redis when rdb is set and falls back to an
// in-process token bucket when Redis is nil or failing.
func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	rl := &RateLimiter{
		fallback: newLocalLimiter(),
		config:   cfg,
	}
	if rdb != nil {
		rl.limiter = redis_rate.NewLimiter(rdb)
	}

	return rl
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.config.KeyFunc(r)
		res, err := rl.allow(r.Context(), key)
		if err != nil {
			if rl.config.FailOpen {
				slog.Warn("rate limiter error, failing open",
					"error", err,
					"key", key,
				)
				next.ServeHTTP(w, r)
				return
			}
			core.JSONError(w, core.NewAppError(
				http.StatusServiceUnavailable,
				"RATE_LIMIT_UNAVAILABLE",
				"rate limiter unavailable",
			))
			return
		}

		setRateLimitHeaders(w, res, rl.config.Limit)

		if res.Allowed == 0 {
			if rl.config.OnLimited != nil {
				rl.config.OnLimited(w, r, res)
				return
			}
			writeRateLimitExceeded(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(
	ctx context.Context,
	key string,
) (*redis_rate.Result, error) {
	if rl.limiter == nil {
		return rl.fallback.allow(key, rl.config.Limit), nil
	}

	res, err := rl.limiter.Allow(ctx, key, rl.config.Limit)
	if err != nil {
		slog.Debug("redis rate limit failed, using local bucket", "error", err)
		return rl.fallback.allow(key, rl.config.Limit), nil
	}
	return res, nil
}

func KeyByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return "ratelimit:ip:" + strings.TrimSpace(ips[len(ips)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ratelimit:ip:" + xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	return "ratelimit:ip:" + ip
}

// KeyByClient keys on the authenticated API client, falling back to the
// remote address.
func KeyByClient(r *http.Request) string {
	if clientID := GetClientID(r.Context()); clientID != "" {
		return "ratelimit:client:" + clientID
	}
	return KeyByIP(r)
}

func KeyByClientAndEndpoint(r *http.Request) string {
	return KeyByClient(r) + ":endpoint:" + normalizeEndpoint(r.URL.Path)
}

// KeyByStaff gives every door device its own scan budget. The staff id is
// read from the multipart form or the JSON body; the body stays readable
// for the handler. Requests without one share the client's endpoint bucket.
func KeyByStaff(maxMemory int64) func(*http.Request) string {
	return func(r *http.Request) string {
		if staffID := staffIDOf(r, maxMemory); staffID != "" {
			return KeyByClient(r) + ":staff:" + staffID
		}
		return KeyByClientAndEndpoint(r)
	}
}

const staffPeekBytes = 4 << 10

func staffIDOf(r *http.Request, maxMemory int64) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return ""
		}
		return strings.TrimSpace(r.FormValue("staff_id"))

	case "application/json":
		head, err := io.ReadAll(io.LimitReader(r.Body, staffPeekBytes))
		r.Body = replayBody{
			Reader: io.MultiReader(bytes.NewReader(head), r.Body),
			Closer: r.Body,
		}
		if err != nil {
			return ""
		}

		var body struct {
			StaffID string `json:"staff_id"`
		}
		if json.Unmarshal(head, &body) != nil {
			return ""
		}
		return strings.TrimSpace(body.StaffID)
	}

	return ""
}

type replayBody struct {
	io.Reader
	io.Closer
}

func normalizeEndpoint(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if isUUID(part) || isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	return s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func setRateLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))

	h.Set("RateLimit-Policy", fmt.Sprintf(`%d;w=%d`, limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf(`%d;t=%d`, res.Remaining, int(res.ResetAfter.Seconds())))
}

func writeRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := max(int(res.RetryAfter.Seconds()), 1)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSONError(w, core.NewAppError(
		http.StatusTooManyRequests,
		"RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfter),
	))
}

const (
	sweepInterval = 5 * time.Minute
	bucketTTL     = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// localLimiter keeps one token bucket per key. Idle buckets are swept
// during allow, at most once per sweepInterval.
type localLimiter struct {
	buckets   sync.Map
	lastSweep atomic.Int64
}

func newLocalLimiter() *localLimiter {
	l := &localLimiter{}
	l.lastSweep.Store(time.Now().Unix())
	return l
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	now := time.Now()
	l.maybeSweep(now)

	perSec := float64(limit.Rate) / limit.Period.Seconds()
	refill := time.Duration(float64(time.Second) / perSec)

	v, ok := l.buckets.Load(key)
	if !ok {
		v, _ = l.buckets.LoadOrStore(key, &bucket{
			limiter: rate.NewLimiter(rate.Limit(perSec), limit.Burst),
		})
	}
	b := v.(*bucket)
	b.lastSeen.Store(now.Unix())

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: -1,
		ResetAfter: refill,
	}
	if b.limiter.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = refill
	}
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)

	return res
}

func (l *localLimiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.Unix()-last < int64(sweepInterval.Seconds()) {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.Unix()) {
		return
	}

	cutoff := now.Add(-bucketTTL).Unix()
	l.buckets.Range(func(key, value any) bool {
		if b, ok := value.(*bucket); ok && b.lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}
