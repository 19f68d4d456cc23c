// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the CheckIn
// model (table "developers").
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// carry no business rules: name normalization, quota and ownership checks
// live in the services package.
//
// Error semantics:
//   - When a check-in is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateCheckIn inserts c. The store assigns the ID and timestamps; caller
// supplied values for those fields are overwritten.
func CreateCheckIn(ctx context.Context, db *gorm.DB, c *domain.CheckIn) (*domain.CheckIn, error) {
	now := time.Now().UTC()
	row := *c
	row.ID = uuid.NewString()
	row.CreatedAt = now
	row.UpdatedAt = now
	if row.Skills == nil {
		row.Skills = []string{}
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// GetCheckIn fetches a single check-in by ID, or ErrNotFound.
func GetCheckIn(ctx context.Context, db *gorm.DB, id string) (*domain.CheckIn, error) {
	var c domain.CheckIn
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListOnlineCheckIns returns every online check-in, newest first.
func ListOnlineCheckIns(ctx context.Context, db *gorm.DB) ([]domain.CheckIn, error) {
	var out []domain.CheckIn
	err := db.WithContext(ctx).
		Where("is_online = ?", true).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// ListCheckInsByFingerprint returns all check-ins (online and offline)
// created under fingerprint, newest first.
func ListCheckInsByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) ([]domain.CheckIn, error) {
	var out []domain.CheckIn
	err := db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// UpdateCheckInLocation replaces the coordinates of a check-in.
func UpdateCheckInLocation(ctx context.Context, db *gorm.DB, id string, lat, lon float64) (*domain.CheckIn, error) {
	return updateCheckIn(ctx, db, id, &domain.CheckIn{Latitude: lat, Longitude: lon}, "latitude", "longitude")
}

// UpdateCheckInStatus sets the online flag of a check-in.
func UpdateCheckInStatus(ctx context.Context, db *gorm.DB, id string, online bool) (*domain.CheckIn, error) {
	return updateCheckIn(ctx, db, id, &domain.CheckIn{IsOnline: online}, "is_online")
}

// UpdateCheckInProfile replaces name, skills and contact of a check-in.
func UpdateCheckInProfile(ctx context.Context, db *gorm.DB, id, name string, skills []string, contact *string) (*domain.CheckIn, error) {
	if skills == nil {
		skills = []string{}
	}
	return updateCheckIn(ctx, db, id,
		&domain.CheckIn{Name: name, Skills: skills, Communication: contact},
		"name", "skills", "communication")
}

// updateCheckIn writes the selected columns (zero values included), stamps
// updated_at and returns the row as stored. Missing IDs yield ErrNotFound.
func updateCheckIn(ctx context.Context, db *gorm.DB, id string, values *domain.CheckIn, cols ...string) (*domain.CheckIn, error) {
	values.ID = id
	values.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.CheckIn{ID: id}).
		Select(append(cols, "updated_at")).
		Updates(values)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetCheckIn(ctx, db, id)
}
