// Package services defines the business logic of the check-in board: quota
// accounting, check-in orchestration, the live roster and the per-device
// ownership view. This file centralizes service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckInNotFound indicates that no check-in exists for the given id.
	ErrCheckInNotFound = errors.New("check-in not found")

	// ErrNotOwner is returned when a mutation targets a check-in created
	// under a different fingerprint.
	ErrNotOwner = errors.New("check-in belongs to another device")

	// ErrNoIdentity is returned when the identity provider yields an empty
	// fingerprint.
	ErrNoIdentity = errors.New("device identity unavailable")

	// ErrInvalidProfile wraps name, skill or contact validation failures.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrInvalidCoordinates is returned for latitudes outside [-90, 90] or
	// longitudes outside [-180, 180].
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrQuotaExceeded matches any *QuotaExceededError via errors.Is.
	ErrQuotaExceeded = errors.New("check-in quota exceeded")

	// ErrLocation matches any *LocationError via errors.Is.
	ErrLocation = errors.New("location unavailable")

	// ErrStore matches any *StoreError via errors.Is.
	ErrStore = errors.New("store failure")
)

// QuotaExceededError reports that a fingerprint has used every check-in it
// is allowed.
type QuotaExceededError struct {
	Count int
	Max   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("You've reached your maximum check-ins (%d/%d). You can update your location or toggle online/offline status.", e.Count, e.Max)
}

// Is makes errors.Is(err, ErrQuotaExceeded) succeed.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// LocationErrorKind classifies a failed location request.
type LocationErrorKind int

const (
	PermissionDenied LocationErrorKind = iota + 1
	Unavailable
	Unsupported
)

func (k LocationErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case Unavailable:
		return "unavailable"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// LocationError is returned when the LocationSource could not produce a
// coordinate.
type LocationError struct {
	Kind LocationErrorKind
	Err  error
}

func (e *LocationError) Error() string {
	var msg string
	switch e.Kind {
	case PermissionDenied:
		msg = "location permission denied"
	case Unsupported:
		msg = "geolocation not supported by this environment"
	default:
		msg = "location unavailable"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *LocationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLocation) succeed.
func (e *LocationError) Is(target error) bool { return target == ErrLocation }

// StoreError wraps a persistence failure together with the operation that
// produced it. The underlying message is preserved.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStore) succeed.
func (e *StoreError) Is(target error) bool { return target == ErrStore }
