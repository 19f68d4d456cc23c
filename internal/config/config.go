// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, quota policy, the
// live roster, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-devradar-backend/internal/sysutil"
)

// DefaultServiceName identifies the service in traces and logs.
const DefaultServiceName = "go-devradar-backend"

// CORSConfig defines Cross-Origin Resource Sharing settings. The same
// allowlist gates websocket origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS      bool
	HSTSMaxAge      time.Duration
	DenyGeolocation bool // Permissions-Policy geolocation=()
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME, falling back to SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// QuotaConfig defines the per-device check-in allowance.
type QuotaConfig struct {
	MaxCheckIns int  // QUOTA_MAX_CHECKINS, written into new quota rows
	Strict      bool // QUOTA_STRICT, reserve in the store before insert
}

// RosterConfig defines live roster and push settings.
type RosterConfig struct {
	MarkerEpsilon float64 // MARKER_OFFSET_EPSILON, degrees per duplicate
	FeedBuffer    int     // FEED_BUFFER, per-subscriber change event buffer
	WSEnabled     bool    // WS_ENABLED

	BreakerFailures int           // ROSTER_BREAKER_FAILURES, consecutive read failures that open the circuit
	BreakerCooldown time.Duration // ROSTER_BREAKER_COOLDOWN, open time before a probe read
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful drain on SIGTERM
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path
	Quota  QuotaConfig
	Roster RosterConfig

	// Rate limiting
	RateRPS      float64 // tokens per second (>= 0)
	RateBurst    int     // bucket size (>= 1)
	RateIPFactor int     // per-IP bucket = device bucket scaled by this (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL   time.Duration // how long a given Idempotency-Key is valid
	IdempotencyPurge time.Duration // interval of expired-key cleanup

	// Observability
	OTEL OTELConfig
}

// LoadDotenv loads variables from a .env file into the process environment
// without overriding variables that are already set. An empty path selects
// DOTENV_PATH, then ".env". A missing file is not an error.
func LoadDotenv(path string) error {
	path = sysutil.FirstNonEmpty(path, os.Getenv("DOTENV_PATH"), ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates. The returned
// Config is populated even when err is non-nil.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "devradar.db"),
		Quota: QuotaConfig{
			MaxCheckIns: getint("QUOTA_MAX_CHECKINS", 5),
			Strict:      getbool("QUOTA_STRICT", false),
		},
		Roster: RosterConfig{
			MarkerEpsilon: getfloat("MARKER_OFFSET_EPSILON", 0.0001),
			FeedBuffer:    getint("FEED_BUFFER", 64),
			WSEnabled:     getbool("WS_ENABLED", true),

			BreakerFailures: getint("ROSTER_BREAKER_FAILURES", 5),
			BreakerCooldown: getdur("ROSTER_BREAKER_COOLDOWN", 30*time.Second),
		},

		// Rate limiting
		RateRPS:      getfloat("RATE_RPS", 5.0),
		RateBurst:    getint("RATE_BURST", 10),
		RateIPFactor: getint("RATE_IP_FACTOR", 4),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:      getbool("ENABLE_HSTS", false),
			HSTSMaxAge:      getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			DenyGeolocation: getbool("DENY_GEOLOCATION", false),
		},

		// Idempotency
		IdempotencyTTL:   getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurge: getdur("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: sysutil.FirstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), os.Getenv("SERVICE_NAME"), DefaultServiceName),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
}

// validate reports every violated constraint at once, joined.
func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.ShutdownTimeout > 0, "SHUTDOWN_TIMEOUT must be > 0")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")

	check(c.Quota.MaxCheckIns >= 1, "QUOTA_MAX_CHECKINS must be >= 1")
	check(c.Roster.MarkerEpsilon > 0 && c.Roster.MarkerEpsilon < 0.01, "MARKER_OFFSET_EPSILON must be in (0, 0.01)")
	check(c.Roster.FeedBuffer >= 1, "FEED_BUFFER must be >= 1")
	check(c.Roster.BreakerFailures >= 1 && c.Roster.BreakerCooldown > 0,
		"ROSTER_BREAKER_FAILURES must be >= 1 and ROSTER_BREAKER_COOLDOWN > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.RateIPFactor >= 1, "RATE_IP_FACTOR must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.IdempotencyPurge > 0, "IDEMPOTENCY_PURGE_INTERVAL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// lookup parses k with parse. Unset, empty and unparsable values yield def.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	if out, err := parse(v); err == nil {
		return out
	}
	return def
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

// getbool accepts sysutil.IsTruthy spellings as true and their negations
// as false; anything else keeps def.
func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		if sysutil.IsTruthy(v) {
			return true, nil
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errors.New("not a boolean")
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath yields "/" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
