// Package services – CheckInService
//
// This file implements the check-in flow: resolve the device identity,
// consult the quota, obtain one coordinate from the LocationSource, insert
// the check-in and finally record the quota usage. A quota lookup failure
// stops the flow before the location is requested. A quota update failure
// after a successful insert is logged and counted but never returned: the
// check-in stands.
//
// The non-quota mutations (location, status, profile) are direct keyed
// updates and never touch quota rows.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/identity"
)

// CheckInService orchestrates check-in creation and edits.
type CheckInService struct {
	Store    CheckInStore
	Quota    *QuotaService
	Identity identity.Provider
	Log      zerolog.Logger
}

// NewCheckInService wires a CheckInService.
func NewCheckInService(store CheckInStore, quota *QuotaService, id identity.Provider, log zerolog.Logger) *CheckInService {
	return &CheckInService{Store: store, Quota: quota, Identity: id, Log: log}
}

// CheckIn publishes a new check-in for the calling device.
//
// Errors: ErrNoIdentity, ErrInvalidProfile, *StoreError (quota lookup or
// insert), *QuotaExceededError, *LocationError, ErrInvalidCoordinates.
func (s *CheckInService) CheckIn(ctx context.Context, in ProfileInput, loc LocationSource) (*domain.CheckIn, error) {
	tr := otel.Tracer("services/CheckInService")
	ctx, span := tr.Start(ctx, "CheckIn")
	defer span.End()

	fp := s.Identity.Identity(ctx).Fingerprint
	if fp == "" {
		return nil, ErrNoIdentity
	}
	span.SetAttributes(attribute.String("device.fingerprint", fp))

	profile, err := NormalizeProfile(in)
	if err != nil {
		return nil, err
	}

	quota, err := s.Quota.GetOrCreate(ctx, fp)
	if err != nil {
		span.SetStatus(codes.Error, "quota lookup failed")
		return nil, err
	}
	if !s.Quota.CanCheckIn(quota) {
		quotaRejections.Inc()
		return nil, &QuotaExceededError{Count: quota.CheckInCount, Max: quota.MaxCheckIns}
	}

	lat, lon, err := loc.RequestOnce(ctx)
	if err != nil {
		return nil, asLocationError(err)
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	if s.Quota.Strict {
		ok, err := s.Quota.Reserve(ctx, fp)
		if err != nil {
			return nil, err
		}
		if !ok {
			quotaRejections.Inc()
			return nil, &QuotaExceededError{Count: quota.MaxCheckIns, Max: quota.MaxCheckIns}
		}
	}

	created, err := s.Store.CreateCheckIn(ctx, &domain.CheckIn{
		Fingerprint:   fp,
		Name:          profile.Name,
		Skills:        profile.Skills,
		Communication: profile.Communication,
		Latitude:      lat,
		Longitude:     lon,
		IsOnline:      true,
	})
	if err != nil {
		span.SetStatus(codes.Error, "insert failed")
		if s.Quota.Strict {
			if rerr := s.Quota.Release(ctx, fp); rerr != nil {
				s.Log.Warn().Err(rerr).Str("fingerprint", fp).Msg("failed to release quota reservation")
			}
		}
		return nil, &StoreError{Op: "insert check-in", Err: err}
	}
	checkInsCreated.Inc()

	if !s.Quota.Strict {
		if err := s.Quota.RecordCheckIn(ctx, fp, quota); err != nil {
			quotaBookkeepingFailures.Inc()
			s.Log.Warn().Err(err).
				Str("fingerprint", fp).
				Str("checkin_id", created.ID).
				Msg("check-in saved but quota update failed")
		}
	}
	return created, nil
}

// UpdateLocation moves check-in id to (lat, lon).
func (s *CheckInService) UpdateLocation(ctx context.Context, id string, lat, lon float64) (*domain.CheckIn, error) {
	ctx, span := s.span(ctx, "UpdateLocation", id)
	defer span.End()

	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return s.mapErr("update location", func() (*domain.CheckIn, error) {
		return s.Store.UpdateCheckInLocation(ctx, id, lat, lon)
	})
}

// SetOnline shows or hides check-in id on the live roster.
func (s *CheckInService) SetOnline(ctx context.Context, id string, online bool) (*domain.CheckIn, error) {
	ctx, span := s.span(ctx, "SetOnline", id)
	defer span.End()

	return s.mapErr("update status", func() (*domain.CheckIn, error) {
		return s.Store.UpdateCheckInStatus(ctx, id, online)
	})
}

// UpdateProfile replaces name, skills and contact of check-in id.
func (s *CheckInService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.CheckIn, error) {
	ctx, span := s.span(ctx, "UpdateProfile", id)
	defer span.End()

	p, err := NormalizeProfile(in)
	if err != nil {
		return nil, err
	}
	return s.mapErr("update profile", func() (*domain.CheckIn, error) {
		return s.Store.UpdateCheckInProfile(ctx, id, p.Name, p.Skills, p.Communication)
	})
}

func (s *CheckInService) span(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return otel.Tracer("services/CheckInService").Start(ctx, name,
		trace.WithAttributes(attribute.String("checkin.id", id)))
}

func (s *CheckInService) mapErr(op string, fn func() (*domain.CheckIn, error)) (*domain.CheckIn, error) {
	c, err := fn()
	switch {
	case err == nil:
		return c, nil
	case isNotFound(err):
		return nil, ErrCheckInNotFound
	default:
		return nil, &StoreError{Op: op, Err: err}
	}
}

