// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for check-in creation. It
// validates an Idempotency-Key request header, asks a lookup whether the
// same device already completed a request with that key, and annotates the
// Gin context so downstream handlers can:
//   - read the validated key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay) and answer with the stored
//     check-in instead of consuming another unit of quota
//   - bypass rate limiting when a replay is served
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyIdemTarget = "idem.target" // string: check-in id of the stored result
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for this key and device.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayTarget returns the check-in id recorded for a replayed key.
func ReplayTarget(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemTarget)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the check-in id stored for (fingerprint, key)
// if the record is still valid at now. Lookup errors never block the
// request.
type IdempotencyLookup func(ctx context.Context, fingerprint, key string, now time.Time) (checkInID string, found bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present
// and marks replays. Invalid keys are rejected with 400; everything else
// continues down the chain. It must run after Fingerprint.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		fp := FingerprintFrom(c)
		if lookup != nil && fp != "" {
			if id, found, _ := lookup(c.Request.Context(), fp, key, time.Now().UTC()); found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemTarget, id)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
