// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter. A request
// draws from its client IP bucket first and then from its device
// fingerprint bucket, so rotating fingerprints does not escape the IP limit
// and a refused IP never allocates device buckets. Idle buckets are evicted
// opportunistically. Replays marked by
// IdempotencyValidator are never limited. A refused request is told how long
// until its bucket holds a token again.
//
// The limiter is process-local and protects the edge; quota enforcement is
// separate and lives in the service layer.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var rateRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests refused by the rate limiter, by bucket kind.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(rateRejections)
}

// keyFunc selects the buckets a request draws from, coarsest first. Keys
// have the form "<kind>:<value>".
type keyFunc func(*gin.Context) []string

// KeyByIPAndDevice always yields "ip:<addr>", followed by "device:<fp>" when
// Fingerprint resolved one.
func KeyByIPAndDevice() keyFunc {
	return func(c *gin.Context) []string {
		keys := []string{"ip:" + c.ClientIP()}
		if fp := FingerprintFrom(c); fp != "" {
			keys = append(keys, "device:"+fp)
		}
		return keys
	}
}

// visitor is one bucket and the time it was last used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter, safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	scale    map[string]int
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a limiter refilling rps tokens per second with
// the given burst (coerced to at least 1). rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		scale:    map[string]int{},
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// ScaleKind multiplies both rate and burst for buckets of the given kind.
// Several devices often share one address, so the "ip" kind is usually
// scaled up. Call it before serving requests.
func (rl *RateLimiter) ScaleKind(kind string, factor int) *RateLimiter {
	if factor > 1 {
		rl.scale[kind] = factor
	}
	return rl
}

func (rl *RateLimiter) newLimiter(key string) *rate.Limiter {
	kind, _, _ := strings.Cut(key, ":")
	f, ok := rl.scale[kind]
	if !ok {
		f = 1
	}
	return rate.NewLimiter(rl.rps*rate.Limit(f), rl.burst*f)
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups idle entries are evicted first, so a stale bucket is dropped even
// when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rl.newLimiter(key)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// take consumes a token from every bucket in keys. On the first refusal the
// tokens already taken are returned, and the refused key and its wait are
// reported. Later buckets are not touched.
func (rl *RateLimiter) take(keys []string, now time.Time) (string, time.Duration, bool) {
	taken := make([]*rate.Reservation, 0, len(keys))
	undo := func() {
		for _, r := range taken {
			r.CancelAt(now)
		}
	}
	for _, key := range keys {
		r := rl.getVisitor(key).ReserveN(now, 1)
		if !r.OK() {
			undo()
			return key, time.Second, false
		}
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			undo()
			return key, d, false
		}
		taken = append(taken, r)
	}
	return "", 0, true
}

// retryAfter renders d as whole seconds, at least 1.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Handler enforces the limits. A refused request gets 429 with Retry-After
// (whole seconds until the next token) and a
// {request_id, code: "rate_limited", message} body.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 || IsRateBypass(c) {
			c.Next()
			return
		}

		key, wait, ok := rl.take(rl.keyFn(c), time.Now())
		if ok {
			c.Next()
			return
		}

		kind, _, _ := strings.Cut(key, ":")
		rateRejections.WithLabelValues(kind).Inc()
		c.Header("Retry-After", retryAfter(wait))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
