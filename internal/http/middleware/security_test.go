package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, path string, pre gin.HandlerFunc, mut func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mut != nil {
		mut(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Matrix(t *testing.T) {
	viaTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	viaProxy := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }

	cases := []struct {
		name string
		opt  SecurityOptions
		path string
		mut  func(*http.Request)
		want map[string]string // "" means header must be absent
	}{
		{
			name: "baseline only",
			path: "/api/v1/checkins",
			want: map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Referrer-Policy":           "no-referrer",
				"Permissions-Policy":        "",
				"Cache-Control":             "",
				"Strict-Transport-Security": "",
			},
		},
		{
			name: "policy grants geolocation to self",
			opt:  SecurityOptions{EnablePolicy: true},
			path: "/",
			want: map[string]string{
				"Permissions-Policy":                "geolocation=(self), microphone=(), camera=(), payment=()",
				"X-Permitted-Cross-Domain-Policies": "none",
			},
		},
		{
			name: "policy denies geolocation",
			opt:  SecurityOptions{EnablePolicy: true, DenyGeolocation: true},
			path: "/",
			want: map[string]string{"Permissions-Policy": "geolocation=(), microphone=(), camera=(), payment=()"},
		},
		{
			name: "HSTS over TLS with custom age",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour},
			path: "/",
			mut:  viaTLS,
			want: map[string]string{"Strict-Transport-Security": "max-age=86400; includeSubDomains; preload"},
		},
		{
			name: "HSTS behind proxy with default age",
			opt:  SecurityOptions{EnableHSTS: true},
			path: "/",
			mut:  viaProxy,
			want: map[string]string{"Strict-Transport-Security": "max-age=15552000; includeSubDomains; preload"},
		},
		{
			name: "HSTS skipped on plain HTTP",
			opt:  SecurityOptions{EnableHSTS: true},
			path: "/",
			want: map[string]string{"Strict-Transport-Security": ""},
		},
		{
			name: "own data is private",
			opt:  SecurityOptions{PrivatePrefixes: []string{"/api/v1/me/"}},
			path: "/api/v1/me/quota",
			want: map[string]string{"Cache-Control": "private, no-cache", "Vary": HeaderFingerprint},
		},
		{
			name: "roster stays cacheable",
			opt:  SecurityOptions{PrivatePrefixes: []string{"/api/v1/me/"}},
			path: "/api/v1/checkins",
			want: map[string]string{"Cache-Control": ""},
		},
		{
			name: "no-store wins over private",
			opt:  SecurityOptions{NoStore: true, PrivatePrefixes: []string{"/api/v1/me/"}},
			path: "/api/v1/me/checkins",
			want: map[string]string{"Cache-Control": "no-store", "Pragma": "no-cache", "Expires": "0"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecurity(t, tc.opt, tc.path, nil, tc.mut)
			for k, want := range tc.want {
				if got := h.Get(k); got != want {
					t.Fatalf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	cases := []struct {
		name, existing, want string
	}{
		{"added", "", "X-Request-ID"},
		{"appended", "ETag", "ETag, X-Request-ID"},
		{"not duplicated", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header(requestIDHeader, "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			h := serveSecurity(t, SecurityOptions{}, "/", pre, nil)
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}

	if h := serveSecurity(t, SecurityOptions{}, "/", nil, nil); h.Get("Access-Control-Expose-Headers") != "" {
		t.Fatalf("no request id, nothing to expose")
	}
}

func Test_hasAnyPrefix(t *testing.T) {
	if hasAnyPrefix("/x", nil) || hasAnyPrefix("/x", []string{""}) {
		t.Fatalf("empty prefixes must not match")
	}
	if !hasAnyPrefix("/api/me/q", []string{"/nope", "/api/me/"}) {
		t.Fatalf("expected match")
	}
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain HTTP should not be https")
	}
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req) {
		t.Fatalf("X-Forwarded-Proto is case-insensitive")
	}
}
