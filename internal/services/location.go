package services

import (
	"context"
	"errors"
	"strings"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether c lies within the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// ReportedLocation is a LocationSource over a result the device already
// obtained, e.g. a browser geolocation callback forwarded in a request.
// Exactly one of Coords or Failure is expected; with neither the
// environment is treated as lacking geolocation.
type ReportedLocation struct {
	Coords  *Coordinates
	Failure string
}

// RequestOnce implements LocationSource.
func (r ReportedLocation) RequestOnce(context.Context) (float64, float64, error) {
	if r.Failure != "" {
		return 0, 0, &LocationError{Kind: ParseLocationErrorKind(r.Failure)}
	}
	if r.Coords == nil {
		return 0, 0, &LocationError{Kind: Unsupported}
	}
	return r.Coords.Latitude, r.Coords.Longitude, nil
}

// ParseLocationErrorKind maps geolocation failure codes to a kind. Both
// the symbolic names and the numeric GeolocationPositionError codes are
// accepted; timeouts count as unavailable.
func ParseLocationErrorKind(s string) LocationErrorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permission_denied", "denied", "1":
		return PermissionDenied
	case "unsupported", "not_supported":
		return Unsupported
	default:
		return Unavailable
	}
}

// asLocationError ensures a LocationSource failure surfaces as *LocationError.
func asLocationError(err error) error {
	var le *LocationError
	if errors.As(err, &le) {
		return le
	}
	return &LocationError{Kind: Unavailable, Err: err}
}
