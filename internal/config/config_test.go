package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads; blank values select defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"API_BASE_PATH",
		"CORS_ALLOWED_ORIGINS",
		"DB_PATH",
		"DENY_GEOLOCATION",
		"ENABLE_HSTS",
		"FEED_BUFFER",
		"GIN_MODE",
		"HSTS_MAX_AGE",
		"IDEMPOTENCY_PURGE_INTERVAL",
		"IDEMPOTENCY_TTL",
		"IDLE_TIMEOUT",
		"LOG_LEVEL",
		"LOG_PRETTY",
		"MARKER_OFFSET_EPSILON",
		"MAX_HEADER_BYTES",
		"OTEL_ENABLED",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME",
		"OTEL_TRACES_SAMPLER_ARG",
		"PORT",
		"QUOTA_MAX_CHECKINS",
		"QUOTA_STRICT",
		"RATE_BURST",
		"RATE_IP_FACTOR",
		"RATE_RPS",
		"READ_HEADER_TIMEOUT",
		"READ_TIMEOUT",
		"ROSTER_BREAKER_COOLDOWN",
		"ROSTER_BREAKER_FAILURES",
		"SERVICE_NAME",
		"SHUTDOWN_TIMEOUT",
		"SWAGGER_ENABLED",
		"WRITE_TIMEOUT",
		"WS_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, "8080"},
		{"base path", cfg.APIBasePath, "/api/v1"},
		{"db", cfg.DBPath, "devradar.db"},
		{"quota", cfg.Quota, QuotaConfig{MaxCheckIns: 5}},
		{"epsilon", cfg.Roster.MarkerEpsilon, 0.0001},
		{"feed buffer", cfg.Roster.FeedBuffer, 64},
		{"ws", cfg.Roster.WSEnabled, true},
		{"breaker", []any{cfg.Roster.BreakerFailures, cfg.Roster.BreakerCooldown}, []any{5, 30 * time.Second}},
		{"rate", []any{cfg.RateRPS, cfg.RateBurst, cfg.RateIPFactor}, []any{5.0, 10, 4}},
		{"idempotency", []any{cfg.IdempotencyTTL, cfg.IdempotencyPurge}, []any{24 * time.Hour, time.Hour}},
		{"hsts age", cfg.Security.HSTSMaxAge, 180 * 24 * time.Hour},
		{"service", cfg.OTEL.ServiceName, DefaultServiceName},
		{"cors", cfg.CORS.AllowedOrigins, []string(nil)},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %#v, want %#v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"READ_HEADER_TIMEOUT":         "1s",
		"WRITE_TIMEOUT":               "3s",
		"IDLE_TIMEOUT":                "4s",
		"SHUTDOWN_TIMEOUT":            "5s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "warning",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "radar/",
		"DB_PATH":                     "checkins.sqlite",
		"QUOTA_MAX_CHECKINS":          "3",
		"QUOTA_STRICT":                "true",
		"MARKER_OFFSET_EPSILON":       "0.0005",
		"FEED_BUFFER":                 "8",
		"WS_ENABLED":                  "off",
		"ROSTER_BREAKER_FAILURES":     "3",
		"ROSTER_BREAKER_COOLDOWN":     "1m",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"RATE_IP_FACTOR":              "2",
		"CORS_ALLOWED_ORIGINS":        " https://radar.dev , , http://localhost:5173 ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"DENY_GEOLOCATION":            "y",
		"IDEMPOTENCY_TTL":             "48h",
		"IDEMPOTENCY_PURGE_INTERVAL":  "10m",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	clearEnv(t)
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := Config{
		Port:              "8088",
		ReadTimeout:       2 * time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       4 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxHeaderBytes:    8192,
		GinMode:           "release",
		LogLevel:          "warn",
		LogPretty:         true,
		SwaggerEnabled:    true,
		APIBasePath:       "/radar",
		DBPath:            "checkins.sqlite",
		Quota:             QuotaConfig{MaxCheckIns: 3, Strict: true},
		Roster: RosterConfig{
			MarkerEpsilon:   0.0005,
			FeedBuffer:      8,
			BreakerFailures: 3,
			BreakerCooldown: time.Minute,
		},
		RateRPS:          5.0, // unparsable -> default
		RateBurst:        10,
		RateIPFactor:     2,
		CORS:             CORSConfig{AllowedOrigins: []string{"https://radar.dev", "http://localhost:5173"}},
		Security:         SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, DenyGeolocation: true},
		IdempotencyTTL:   48 * time.Hour,
		IdempotencyPurge: 10 * time.Minute,
		OTEL: OTELConfig{
			Enabled:     true,
			Endpoint:    "otel:4317",
			ServiceName: "svc",
			SampleRatio: 0.75,
		},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("config mismatch\n got: %+v\nwant: %+v", cfg, want)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"LOG_LEVEL": "verbose"}, `LOG_LEVEL "verbose"`},
		{map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{map[string]string{"IDLE_TIMEOUT": "-1s"}, "timeouts must be positive"},
		{map[string]string{"SHUTDOWN_TIMEOUT": "0s"}, "SHUTDOWN_TIMEOUT"},
		{map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{map[string]string{"DB_PATH": " "}, "DB_PATH"},
		{map[string]string{"QUOTA_MAX_CHECKINS": "0"}, "QUOTA_MAX_CHECKINS"},
		{map[string]string{"MARKER_OFFSET_EPSILON": "0.5"}, "MARKER_OFFSET_EPSILON"},
		{map[string]string{"MARKER_OFFSET_EPSILON": "-0.001"}, "MARKER_OFFSET_EPSILON"},
		{map[string]string{"FEED_BUFFER": "0"}, "FEED_BUFFER"},
		{map[string]string{"ROSTER_BREAKER_FAILURES": "0"}, "ROSTER_BREAKER_FAILURES"},
		{map[string]string{"ROSTER_BREAKER_COOLDOWN": "0s"}, "ROSTER_BREAKER_COOLDOWN"},
		{map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{map[string]string{"RATE_IP_FACTOR": "0"}, "RATE_IP_FACTOR"},
		{map[string]string{"HSTS_MAX_AGE": "-1h"}, "HSTS_MAX_AGE"},
		{map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{map[string]string{"IDEMPOTENCY_PURGE_INTERVAL": "-1m"}, "IDEMPOTENCY_PURGE_INTERVAL"},
		{map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoad_ReportsAllViolations(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUOTA_MAX_CHECKINS", "0")
	t.Setenv("RATE_BURST", "0")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected two joined errors, got %v", err)
	}
}

func TestMustLoad(t *testing.T) {
	clearEnv(t)
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("defaults should load")
	}

	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_ServiceNameFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_NAME", "radar-edge")
	if cfg, _ := Load(); cfg.OTEL.ServiceName != "radar-edge" {
		t.Fatalf("SERVICE_NAME fallback: %q", cfg.OTEL.ServiceName)
	}
	t.Setenv("OTEL_SERVICE_NAME", "radar-otel")
	if cfg, _ := Load(); cfg.OTEL.ServiceName != "radar-otel" {
		t.Fatalf("OTEL_SERVICE_NAME wins: %q", cfg.OTEL.ServiceName)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DEVRADAR_DOTENV_A=from-file\nDEVRADAR_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DEVRADAR_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("DEVRADAR_DOTENV_A") })

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("DEVRADAR_DOTENV_A"); got != "from-file" {
		t.Fatalf("A=%q", got)
	}
	if got := os.Getenv("DEVRADAR_DOTENV_B"); got != "from-env" {
		t.Fatalf("existing env overridden: B=%q", got)
	}

	if err := LoadDotenv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	t.Setenv("DOTENV_PATH", filepath.Join(dir, "also-missing.env"))
	if err := LoadDotenv(""); err != nil {
		t.Fatalf("DOTENV_PATH fallback: %v", err)
	}
}

func Test_lookupHelpers(t *testing.T) {
	t.Setenv("CFG_T_SET", "42")
	t.Setenv("CFG_T_BAD", "forty")
	t.Setenv("CFG_T_EMPTY", "")

	if getint("CFG_T_SET", 1) != 42 || getint("CFG_T_BAD", 1) != 1 || getint("CFG_T_EMPTY", 1) != 1 || getint("CFG_T_UNSET", 1) != 1 {
		t.Fatalf("getint fallbacks")
	}
	if getfloat("CFG_T_SET", 0) != 42 || getfloat("CFG_T_BAD", 0.5) != 0.5 {
		t.Fatalf("getfloat fallbacks")
	}
	if getenv("CFG_T_EMPTY", "def") != "def" || getenv("CFG_T_SET", "def") != "42" {
		t.Fatalf("getenv fallbacks")
	}
	t.Setenv("CFG_T_DUR", "90s")
	if getdur("CFG_T_DUR", 0) != 90*time.Second || getdur("CFG_T_BAD", time.Second) != time.Second {
		t.Fatalf("getdur fallbacks")
	}
}

func Test_getbool(t *testing.T) {
	cases := map[string]struct{ def, want bool }{
		"true":  {false, true},
		"ON":    {false, true},
		"y":     {false, true},
		"0":     {true, false},
		"Off":   {true, false},
		" no ":  {true, false},
		"maybe": {true, true},
		"":      {true, true},
	}
	for v, tc := range cases {
		t.Setenv("CFG_T_BOOL", v)
		if got := getbool("CFG_T_BOOL", tc.def); got != tc.want {
			t.Fatalf("getbool(%q, %v)=%v", v, tc.def, got)
		}
	}
}

func Test_normalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":          "/",
		"/":         "/",
		"api":       "/api",
		" /api/v1/": "/api/v1",
		"v2//":      "/v2",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q)=%q want %q", in, got, want)
		}
	}
}

func Test_splitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("empty -> nil, got %#v", got)
	}
	if got := splitCSV(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("splitCSV=%#v", got)
	}
}
