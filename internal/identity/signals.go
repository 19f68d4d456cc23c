// Package identity derives a stable per-device fingerprint from observable
// environment signals and exposes it to the rest of the application through
// the Provider interface.
//
// The fingerprint is an identifier, not an authenticator: any party able to
// reproduce the same signal tuple obtains the same identity.
package identity

import (
	"strconv"
	"strings"
)

// Delimiter joins signal components before hashing.
const Delimiter = "|"

const unknown = "unknown"

// Signals is the ordered environment tuple a fingerprint is computed from.
// Field names follow what a browser reports; zero values render the same
// way an absent browser property would.
type Signals struct {
	UserAgent           string   `json:"user_agent"`
	Language            string   `json:"language"`
	ScreenWidth         int      `json:"screen_width"`
	ScreenHeight        int      `json:"screen_height"`
	ColorDepth          int      `json:"color_depth"`
	TimezoneOffset      int      `json:"timezone_offset"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
	DeviceMemory        string   `json:"device_memory"`
	Platform            string   `json:"platform"`
	CookieEnabled       bool     `json:"cookie_enabled"`
	DoNotTrack          string   `json:"do_not_track"`
	Webdriver           bool     `json:"webdriver"`
	InnerWidth          int      `json:"inner_width"`
	InnerHeight         int      `json:"inner_height"`
	DevicePixelRatio    float64  `json:"device_pixel_ratio"`
	MaxTouchPoints      int      `json:"max_touch_points"`
	Vendor              string   `json:"vendor"`
	Product             string   `json:"product"`
	ProductSub          string   `json:"product_sub"`
	AppName             string   `json:"app_name"`
	AppVersion          string   `json:"app_version"`
	AppCodeName         string   `json:"app_code_name"`
	BuildID             string   `json:"build_id"`
	OSCPU               string   `json:"oscpu"`
	Languages           []string `json:"languages"`
	Online              bool     `json:"online"`
	JavaEnabled         bool     `json:"java_enabled"`
	MimeTypes           int      `json:"mime_types"`
	Plugins             int      `json:"plugins"`

	// Probe results. Empty means the probe failed or never ran.
	Canvas string `json:"canvas"`
	WebGL  string `json:"webgl"`
	Audio  string `json:"audio"`
}

// Components renders the signals in their fixed order. Missing optional
// values are replaced by their sentinels so the tuple always has the same
// arity.
func (s Signals) Components() []string {
	languages := s.Language
	if s.Languages != nil {
		languages = strings.Join(s.Languages, ",")
	}
	return []string{
		s.UserAgent,
		s.Language,
		itoa(s.ScreenWidth) + "x" + itoa(s.ScreenHeight),
		itoa(s.ColorDepth),
		itoa(s.TimezoneOffset),
		itoa(s.HardwareConcurrency),
		orUnknown(s.DeviceMemory),
		s.Platform,
		strconv.FormatBool(s.CookieEnabled),
		s.DoNotTrack,
		strconv.FormatBool(s.Webdriver),
		itoa(s.InnerWidth) + "x" + itoa(s.InnerHeight),
		strconv.FormatFloat(s.DevicePixelRatio, 'f', -1, 64),
		itoa(s.MaxTouchPoints),
		s.Vendor,
		s.Product,
		s.ProductSub,
		s.AppName,
		s.AppVersion,
		s.AppCodeName,
		orUnknown(s.BuildID),
		orUnknown(s.OSCPU),
		languages,
		strconv.FormatBool(s.Online),
		strconv.FormatBool(s.JavaEnabled),
		itoa(s.MimeTypes),
		itoa(s.Plugins),
		"canvas-" + orDefault(s.Canvas, CanvasError),
		"webgl-" + orDefault(s.WebGL, NoWebGL),
		"audio-" + orDefault(s.Audio, AudioError),
	}
}

// Generate computes the fingerprint for s. It never fails.
func Generate(s Signals) string {
	return Hash(strings.Join(s.Components(), Delimiter))
}

func itoa(i int) string { return strconv.Itoa(i) }

func orUnknown(v string) string { return orDefault(v, unknown) }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
