// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file binds the free repository functions to a single
// handle so the service layer can depend on a small Store interface instead
// of *gorm.DB.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// Store is the GORM-backed implementation of the services store contracts.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) CreateCheckIn(ctx context.Context, c *domain.CheckIn) (*domain.CheckIn, error) {
	return CreateCheckIn(ctx, s.DB, c)
}

func (s *Store) GetCheckIn(ctx context.Context, id string) (*domain.CheckIn, error) {
	return GetCheckIn(ctx, s.DB, id)
}

func (s *Store) ListOnlineCheckIns(ctx context.Context) ([]domain.CheckIn, error) {
	return ListOnlineCheckIns(ctx, s.DB)
}

func (s *Store) ListCheckInsByFingerprint(ctx context.Context, fingerprint string) ([]domain.CheckIn, error) {
	return ListCheckInsByFingerprint(ctx, s.DB, fingerprint)
}

func (s *Store) UpdateCheckInLocation(ctx context.Context, id string, lat, lon float64) (*domain.CheckIn, error) {
	return UpdateCheckInLocation(ctx, s.DB, id, lat, lon)
}

func (s *Store) UpdateCheckInStatus(ctx context.Context, id string, online bool) (*domain.CheckIn, error) {
	return UpdateCheckInStatus(ctx, s.DB, id, online)
}

func (s *Store) UpdateCheckInProfile(ctx context.Context, id, name string, skills []string, contact *string) (*domain.CheckIn, error) {
	return UpdateCheckInProfile(ctx, s.DB, id, name, skills, contact)
}

func (s *Store) CheckInStats(ctx context.Context, fingerprint string) (int64, *time.Time, error) {
	return CheckInStats(ctx, s.DB, fingerprint)
}

func (s *Store) GetQuota(ctx context.Context, fingerprint string) (*domain.QuotaRecord, error) {
	return GetQuota(ctx, s.DB, fingerprint)
}

func (s *Store) InsertQuotaIfAbsent(ctx context.Context, fingerprint string, maxCheckIns int) (bool, error) {
	return InsertQuotaIfAbsent(ctx, s.DB, fingerprint, maxCheckIns)
}

func (s *Store) SetQuotaCount(ctx context.Context, fingerprint string, count int, at time.Time) error {
	return SetQuotaCount(ctx, s.DB, fingerprint, count, at)
}

func (s *Store) ReserveQuota(ctx context.Context, fingerprint string, at time.Time) (bool, error) {
	return ReserveQuota(ctx, s.DB, fingerprint, at)
}

func (s *Store) ReleaseQuota(ctx context.Context, fingerprint string) error {
	return ReleaseQuota(ctx, s.DB, fingerprint)
}

// LookupIdempotency returns the check-in id recorded for (fingerprint, key).
func (s *Store) LookupIdempotency(ctx context.Context, fingerprint, key string, now time.Time) (string, bool, error) {
	rec, err := GetIdempotency(ctx, s.DB, fingerprint, key, now)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.CheckInID, true, nil
}

// SaveIdempotency records checkInID under (fingerprint, key). A concurrent
// duplicate is not an error.
func (s *Store) SaveIdempotency(ctx context.Context, fingerprint, key, checkInID string, status int, ttl time.Duration) error {
	_, err := CreateIdempotency(ctx, s.DB, fingerprint, key, checkInID, status, ttl)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// Ping probes the developers table.
func (s *Store) Ping(ctx context.Context) error { return Ping(ctx, s.DB) }
