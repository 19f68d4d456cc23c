// Package services – OwnershipView
//
// OwnershipView scopes reads and edits to the check-ins created under the
// caller's fingerprint. Ownership is plain fingerprint equality: any caller
// able to present the same fingerprint may edit the same records.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/identity"
)

// StatsStore reports aggregate metadata for a fingerprint's check-ins.
type StatsStore interface {
	CheckInStats(ctx context.Context, fingerprint string) (int64, *time.Time, error)
}

// OwnershipView is the per-device view over check-ins.
type OwnershipView struct {
	Store    CheckInStore
	CheckIns *CheckInService
	Identity identity.Provider
	// Stats is optional; without it MyStats is computed from the list.
	Stats StatsStore
}

// NewOwnershipView wires an OwnershipView. The Store is also used for
// stats when it implements StatsStore.
func NewOwnershipView(store CheckInStore, checkins *CheckInService, id identity.Provider) *OwnershipView {
	v := &OwnershipView{Store: store, CheckIns: checkins, Identity: id}
	if ss, ok := store.(StatsStore); ok {
		v.Stats = ss
	}
	return v
}

// Fingerprint returns the caller's fingerprint.
func (v *OwnershipView) Fingerprint(ctx context.Context) string {
	return v.Identity.Identity(ctx).Fingerprint
}

// MyCheckIns lists the caller's check-ins, online and offline, newest first.
func (v *OwnershipView) MyCheckIns(ctx context.Context) ([]domain.CheckIn, error) {
	fp := v.Fingerprint(ctx)
	ctx, span := otel.Tracer("services/OwnershipView").Start(ctx, "MyCheckIns",
		trace.WithAttributes(attribute.String("device.fingerprint", fp)))
	defer span.End()

	if fp == "" {
		return nil, ErrNoIdentity
	}
	list, err := v.Store.ListCheckInsByFingerprint(ctx, fp)
	if err != nil {
		return nil, &StoreError{Op: "list my check-ins", Err: err}
	}
	// the store filter is trusted but ownership is the contract here
	out := make([]domain.CheckIn, 0, len(list))
	for _, c := range list {
		if c.Fingerprint == fp {
			out = append(out, c)
		}
	}
	return out, nil
}

// MyStats returns the count and latest update time of the caller's
// check-ins.
func (v *OwnershipView) MyStats(ctx context.Context) (int64, *time.Time, error) {
	fp := v.Fingerprint(ctx)
	if fp == "" {
		return 0, nil, ErrNoIdentity
	}
	if v.Stats != nil {
		n, ts, err := v.Stats.CheckInStats(ctx, fp)
		if err != nil {
			return 0, nil, &StoreError{Op: "check-in stats", Err: err}
		}
		return n, ts, nil
	}
	list, err := v.MyCheckIns(ctx)
	if err != nil {
		return 0, nil, err
	}
	var latest *time.Time
	for i := range list {
		if latest == nil || list[i].UpdatedAt.After(*latest) {
			t := list[i].UpdatedAt
			latest = &t
		}
	}
	return int64(len(list)), latest, nil
}

// UpdateLocation moves an owned check-in.
func (v *OwnershipView) UpdateLocation(ctx context.Context, id string, lat, lon float64) (*domain.CheckIn, error) {
	if _, err := v.owned(ctx, id); err != nil {
		return nil, err
	}
	return v.CheckIns.UpdateLocation(ctx, id, lat, lon)
}

// SetOnline sets the online flag of an owned check-in.
func (v *OwnershipView) SetOnline(ctx context.Context, id string, online bool) (*domain.CheckIn, error) {
	if _, err := v.owned(ctx, id); err != nil {
		return nil, err
	}
	return v.CheckIns.SetOnline(ctx, id, online)
}

// Toggle flips the online flag of an owned check-in.
func (v *OwnershipView) Toggle(ctx context.Context, id string) (*domain.CheckIn, error) {
	c, err := v.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	return v.CheckIns.SetOnline(ctx, id, !c.IsOnline)
}

// UpdateProfile edits name, skills and contact of an owned check-in.
func (v *OwnershipView) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.CheckIn, error) {
	if _, err := v.owned(ctx, id); err != nil {
		return nil, err
	}
	return v.CheckIns.UpdateProfile(ctx, id, in)
}

func (v *OwnershipView) owned(ctx context.Context, id string) (*domain.CheckIn, error) {
	fp := v.Fingerprint(ctx)
	if fp == "" {
		return nil, ErrNoIdentity
	}
	c, err := v.Store.GetCheckIn(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCheckInNotFound
		}
		return nil, &StoreError{Op: "get check-in", Err: err}
	}
	if c.Fingerprint != fp {
		return nil, ErrNotOwner
	}
	return c, nil
}
