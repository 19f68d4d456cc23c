// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-device
// quota bookkeeping (table "user_limits").
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// GetQuota returns the quota row for fingerprint, or ErrNotFound.
func GetQuota(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.QuotaRecord, error) {
	var q domain.QuotaRecord
	if err := db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// InsertQuotaIfAbsent creates a zero-count row for fingerprint unless one
// already exists, in which case the existing row is left untouched. It
// reports whether this call inserted the row.
func InsertQuotaIfAbsent(ctx context.Context, db *gorm.DB, fingerprint string, maxCheckIns int) (bool, error) {
	now := time.Now().UTC()
	q := &domain.QuotaRecord{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		MaxCheckIns: maxCheckIns,
		IsOnline:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).
		Create(q)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetQuotaCount writes an absolute count and stamps last_check_in.
func SetQuotaCount(ctx context.Context, db *gorm.DB, fingerprint string, count int, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.QuotaRecord{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]any{
			"check_in_count": count,
			"last_check_in":  at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveQuota increments the count only while it is below the maximum,
// evaluated by the database in a single statement. It reports whether a
// unit was reserved.
func ReserveQuota(ctx context.Context, db *gorm.DB, fingerprint string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.QuotaRecord{}).
		Where("fingerprint = ? AND check_in_count < max_check_ins", fingerprint).
		Updates(map[string]any{
			"check_in_count": gorm.Expr("check_in_count + 1"),
			"last_check_in":  at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseQuota gives back one reserved unit. The count never drops below 0.
func ReleaseQuota(ctx context.Context, db *gorm.DB, fingerprint string) error {
	return db.WithContext(ctx).
		Model(&domain.QuotaRecord{}).
		Where("fingerprint = ? AND check_in_count > 0", fingerprint).
		Updates(map[string]any{
			"check_in_count": gorm.Expr("check_in_count - 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}
