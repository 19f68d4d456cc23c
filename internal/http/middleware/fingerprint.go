// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Fingerprint, which resolves the calling device's
// identity for every request. The identity is the same base36 token the
// board uses for quota and ownership. It is taken, in order of preference,
// from:
//   - X-Fingerprint, a token the client computed itself
//   - X-Client-Signals, a JSON document of environment signals
//   - the User-Agent and Accept-Language headers alone
//
// The resolved token is stored under the "userID" Gin key (so the rate
// limiter and access logs pick it up) and on the request context via
// identity.WithIdentity.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"golang.org/x/text/language"

	"github.com/tbourn/go-devradar-backend/internal/identity"
)

const (
	// HeaderFingerprint carries a precomputed fingerprint token.
	HeaderFingerprint = "X-Fingerprint"
	// HeaderClientSignals carries the JSON-encoded identity.Signals.
	HeaderClientSignals = "X-Client-Signals"

	ctxKeyUserID = "userID"
)

// Fingerprint returns the identity middleware. Malformed X-Fingerprint or
// X-Client-Signals values are rejected with 400.
func Fingerprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		fp, ok := resolveFingerprint(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_fingerprint",
				"message":    "invalid device identity headers",
			})
			return
		}
		c.Set(ctxKeyUserID, fp)
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), identity.Identity{Fingerprint: fp}))
		c.Next()
	}
}

// FingerprintFrom returns the fingerprint installed by Fingerprint, or "".
func FingerprintFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func resolveFingerprint(r *http.Request) (string, bool) {
	if tok := r.Header.Get(HeaderFingerprint); tok != "" {
		return tok, identity.ValidToken(tok)
	}

	var s identity.Signals
	if raw := r.Header.Get(HeaderClientSignals); raw != "" {
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return "", false
		}
	}
	if s.UserAgent == "" {
		s.UserAgent = r.UserAgent()
	}
	if s.Language == "" {
		s.Language = primaryLanguage(r.Header.Get("Accept-Language"))
	}
	s = identity.Collect(s, identity.Probes{
		Canvas: identity.Reported(s.Canvas),
		WebGL:  identity.Reported(s.WebGL),
		Audio:  identity.Reported(s.Audio),
	})
	return identity.Generate(s), true
}

// primaryLanguage returns the highest-weighted tag of an Accept-Language
// value, or "" when there is none.
func primaryLanguage(h string) string {
	if h == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(h)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
