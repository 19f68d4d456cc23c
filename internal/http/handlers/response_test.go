package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-devradar-backend/internal/http/middleware"
)

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	cases := []struct {
		name    string
		status  int
		code    string
		wantLog bool
	}{
		{"client error is quiet", http.StatusNotFound, ErrCodeNotFound, false},
		{"quota conflict is quiet", http.StatusConflict, ErrCodeQuotaExceeded, false},
		{"store failure is logged", http.StatusInternalServerError, ErrCodeStore, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			r := gin.New()
			r.Use(middleware.RequestID())
			r.GET("/x", func(c *gin.Context) { fail(c, tc.status, tc.code, "msg") })

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("X-Request-ID", "rid-env")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status=%d", w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json: %v", err)
			}
			if resp != (ErrorResponse{RequestID: "rid-env", Code: tc.code, Message: "msg"}) {
				t.Fatalf("body=%+v", resp)
			}
			logged := strings.Contains(buf.String(), `"message":"api error"`)
			if logged != tc.wantLog {
				t.Fatalf("logged=%v want %v: %s", logged, tc.wantLog, buf.String())
			}
			if logged && !strings.Contains(buf.String(), `"request_id":"rid-env"`) {
				t.Fatalf("5xx log lacks request id: %s", buf.String())
			}
		})
	}
}

func TestFail_RequestIDFromHeaderWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-hdr")
		c.Next()
	})
	r.NoRoute(func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusNotFound || resp.RequestID != "rid-hdr" {
		t.Fatalf("status=%d body=%+v", w.Code, resp)
	}
}

func Test_notModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const etag = `W/"roster:7"`
	r := gin.New()
	r.GET("/r", func(c *gin.Context) {
		if notModified(c, etag) {
			return
		}
		ok(c, http.StatusOK, gin.H{"v": 7})
	})

	cases := []struct {
		inm  string
		want int
	}{
		{"", http.StatusOK},
		{etag, http.StatusNotModified},
		{`"roster:7"`, http.StatusNotModified},
		{`W/"roster:6", W/"roster:7"`, http.StatusNotModified},
		{"*", http.StatusNotModified},
		{`W/"roster:6"`, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/r", nil)
		if tc.inm != "" {
			req.Header.Set("If-None-Match", tc.inm)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want || w.Header().Get("ETag") != etag {
			t.Fatalf("If-None-Match %q: status=%d etag=%q", tc.inm, w.Code, w.Header().Get("ETag"))
		}
		if tc.want == http.StatusNotModified && w.Body.Len() != 0 {
			t.Fatalf("304 must have no body")
		}
	}
}
