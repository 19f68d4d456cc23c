// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// device identity, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/config"
	"github.com/tbourn/go-devradar-backend/internal/http/handlers"
	"github.com/tbourn/go-devradar-backend/internal/http/middleware"
	"github.com/tbourn/go-devradar-backend/internal/identity"
	"github.com/tbourn/go-devradar-backend/internal/repo"
	"github.com/tbourn/go-devradar-backend/internal/services"
	"github.com/tbourn/go-devradar-backend/internal/websocket"
)

// App is the assembled service graph behind the HTTP API. The roster and
// hub goroutines are started by the caller (see App.Roster.Run, App.Hub.Run).
type App struct {
	Store    *repo.Store
	Quota    *services.QuotaService
	CheckIns *services.CheckInService
	Roster   *services.LiveRoster
	Mine     *services.OwnershipView
	Breaker  *repo.GuardedRoster
	// Hub is nil when websocket push is disabled.
	Hub *websocket.Hub
}

// NewApp builds the service graph over db. changes feeds the live roster;
// fallback, when non-nil, supplies an identity for calls that did not pass
// through the fingerprint middleware.
func NewApp(db *gorm.DB, changes services.ChangeFeed, fallback identity.Provider, cfg config.Config, log zerolog.Logger) *App {
	store := repo.NewStore(db)
	id := identity.ContextProvider{Fallback: fallback}

	app := &App{Store: store}
	app.Quota = services.NewQuotaService(store, cfg.Quota.MaxCheckIns, cfg.Quota.Strict)
	app.CheckIns = services.NewCheckInService(store, app.Quota, id, log.With().Str("component", "checkins").Logger())
	app.Mine = services.NewOwnershipView(store, app.CheckIns, id)

	var renderer services.MapRenderer
	if cfg.Roster.WSEnabled {
		app.Hub = websocket.NewHub(log.With().Str("component", "hub").Logger())
		renderer = app.Hub
	}
	app.Breaker = repo.NewGuardedRoster(store, repo.BreakerConfig{
		Failures: uint32(cfg.Roster.BreakerFailures),
		Cooldown: cfg.Roster.BreakerCooldown,
	}, log.With().Str("component", "breaker").Logger())
	app.Roster = services.NewLiveRoster(app.Breaker, changes, renderer, cfg.Roster.MarkerEpsilon, log.With().Str("component", "roster").Logger())
	return app
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), device identity,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Fingerprint: resolve the device identity
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per IP, then per device; bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, app *App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	wsPath := joinPath(apiBase, "/ws")

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint; the websocket is long-lived
	r.Use(middleware.Metrics(wsPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Device identity
	r.Use(middleware.Fingerprint())

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		app.Store.LookupIdempotency,
	))

	// 9) Token-bucket rate limiter per IP, then per device
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIPAndDevice()).
		ScaleKind("ip", cfg.RateIPFactor)
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "If-None-Match",
		middleware.HeaderIdempotencyKey, middleware.HeaderFingerprint, middleware.HeaderClientSignals,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStore:         false,
		EnablePolicy:    true,
		DenyGeolocation: cfg.Security.DenyGeolocation,
		PrivatePrefixes: []string{joinPath(apiBase, "/me/")},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health with store probe
	r.GET("/health", health(app.Store, app.Breaker))

	// Docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(app.CheckIns, app.Roster, app.Mine, app.Quota).
		WithIdempotency(app.Store, cfg.IdempotencyTTL).
		WithLive(app.Hub, cfg.CORS.AllowedOrigins)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Roster (compressed, can be large)
		roster := api.Group("", gzip.Gzip(gzip.DefaultCompression))
		roster.GET("/checkins", h.ListCheckIns)
		roster.GET("/checkins/markers", h.ListMarkers)
		roster.GET("/checkins/search", h.SearchCheckIns)

		// Check-ins
		api.POST("/checkins", h.CreateCheckIn)
		api.POST("/checkins/reload", h.ReloadRoster)
		api.PUT("/checkins/:id/location", h.UpdateLocation)
		api.PUT("/checkins/:id/status", h.SetStatus)
		api.POST("/checkins/:id/toggle", h.ToggleStatus)
		api.PUT("/checkins/:id/profile", h.UpdateProfile)

		// Current device
		api.GET("/me/checkins", h.ListMyCheckIns)
		api.GET("/me/quota", h.GetMyQuota)

		// Live markers
		api.GET("/ws", h.LiveRoster)
	}
}

// Pinger probes the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Breaker exposes a circuit breaker state for health reporting.
type Breaker interface {
	State() string
}

// health reports liveness plus the store probe. A reachable store without
// the developers table is reported separately from other failures.
func health(store Pinger, roster Breaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "store": "ok"}
		if roster != nil {
			body["roster_breaker"] = roster.State()
		}
		err := store.Ping(c.Request.Context())
		switch {
		case err == nil:
			c.JSON(http.StatusOK, body)
		case errors.Is(err, repo.ErrSchemaMissing):
			body["status"], body["store"] = "degraded", "table_missing"
			c.JSON(http.StatusServiceUnavailable, body)
		default:
			middleware.LoggerFrom(c).Error().Err(err).Msg("store probe failed")
			body["status"], body["store"] = "degraded", "error"
			c.JSON(http.StatusServiceUnavailable, body)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
