// Package services – QuotaService
//
// This file implements per-fingerprint quota accounting. A quota row is
// created lazily on first lookup with a conflict-tolerant insert, so that
// concurrent first lookups for the same fingerprint converge on one row.
//
// Two enforcement modes exist. In the default advisory mode the caller reads
// the count, compares it with the maximum and records the new count after
// the check-in is written; two simultaneous check-ins from one fingerprint
// may therefore both pass. In strict mode a unit is reserved by a single
// conditional increment evaluated by the store before the check-in is
// written, and released again if the write fails.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// DefaultMaxCheckIns is the quota granted to a new fingerprint.
const DefaultMaxCheckIns = 5

// QuotaView is the read model served to clients.
type QuotaView struct {
	CheckInCount int        `json:"check_in_count"`
	MaxCheckIns  int        `json:"max_check_ins"`
	Remaining    int        `json:"remaining"`
	CanCheckIn   bool       `json:"can_check_in"`
	LastCheckIn  *time.Time `json:"last_check_in,omitempty"`
}

// QuotaService manages QuotaRecords.
type QuotaService struct {
	Store QuotaStore

	// MaxCheckIns is written into newly created rows.
	MaxCheckIns int
	// Strict enables reservation before insert.
	Strict bool

	Now func() time.Time
}

// NewQuotaService constructs a QuotaService. max < 1 selects DefaultMaxCheckIns.
func NewQuotaService(store QuotaStore, max int, strict bool) *QuotaService {
	if max < 1 {
		max = DefaultMaxCheckIns
	}
	return &QuotaService{Store: store, MaxCheckIns: max, Strict: strict, Now: time.Now}
}

func (s *QuotaService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GetOrCreate returns the quota row for fingerprint, creating it with a
// zero count if absent. If the insert fails it re-reads once before
// reporting a *StoreError.
func (s *QuotaService) GetOrCreate(ctx context.Context, fingerprint string) (*domain.QuotaRecord, error) {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.String("device.fingerprint", fingerprint)),
	)
	defer span.End()

	rec, err := s.Store.GetQuota(ctx, fingerprint)
	if err == nil {
		return rec, nil
	}
	if !isNotFound(err) {
		span.RecordError(err)
		return nil, &StoreError{Op: "get quota", Err: err}
	}

	_, insErr := s.Store.InsertQuotaIfAbsent(ctx, fingerprint, s.MaxCheckIns)
	rec, err = s.Store.GetQuota(ctx, fingerprint)
	if err == nil {
		return rec, nil
	}
	if insErr != nil {
		err = insErr
	}
	span.RecordError(err)
	return nil, &StoreError{Op: "create quota", Err: err}
}

// CanCheckIn reports whether rec allows one more check-in. A nil record
// never does.
func (s *QuotaService) CanCheckIn(rec *domain.QuotaRecord) bool {
	return rec != nil && rec.CanCheckIn()
}

// RecordCheckIn writes prior.count+1 and the current time.
func (s *QuotaService) RecordCheckIn(ctx context.Context, fingerprint string, prior *domain.QuotaRecord) error {
	count := 1
	if prior != nil {
		count = prior.CheckInCount + 1
	}
	if err := s.Store.SetQuotaCount(ctx, fingerprint, count, s.now()); err != nil {
		return &StoreError{Op: "record check-in", Err: err}
	}
	return nil
}

// Reserve atomically takes one unit if the count is below the maximum.
func (s *QuotaService) Reserve(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := s.Store.ReserveQuota(ctx, fingerprint, s.now())
	if err != nil {
		return false, &StoreError{Op: "reserve quota", Err: err}
	}
	return ok, nil
}

// Release returns a unit taken by Reserve.
func (s *QuotaService) Release(ctx context.Context, fingerprint string) error {
	if err := s.Store.ReleaseQuota(ctx, fingerprint); err != nil {
		return &StoreError{Op: "release quota", Err: err}
	}
	return nil
}

// View returns the quota state for fingerprint. When the lookup fails the
// default allowance is reported with ok=false so display code keeps working;
// the check-in path never relies on this fallback.
func (s *QuotaService) View(ctx context.Context, fingerprint string) (v QuotaView, ok bool) {
	rec, err := s.GetOrCreate(ctx, fingerprint)
	if err != nil {
		return QuotaView{MaxCheckIns: s.MaxCheckIns, Remaining: s.MaxCheckIns, CanCheckIn: true}, false
	}
	return QuotaView{
		CheckInCount: rec.CheckInCount,
		MaxCheckIns:  rec.MaxCheckIns,
		Remaining:    rec.Remaining(),
		CanCheckIn:   rec.CanCheckIn(),
		LastCheckIn:  rec.LastCheckIn,
	}, true
}
