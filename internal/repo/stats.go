package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// CheckInStats returns how many check-ins fingerprint owns and the latest
// UpdatedAt among them, for the /me ETag. maxUpdatedAt is nil when count
// is 0.
func CheckInStats(ctx context.Context, db *gorm.DB, fingerprint string) (count int64, maxUpdatedAt *time.Time, err error) {
	owned := db.WithContext(ctx).Model(&domain.CheckIn{}).
		Where("fingerprint = ?", fingerprint).
		Session(&gorm.Session{})

	if err = owned.Count(&count).Error; err != nil || count == 0 {
		return 0, nil, err
	}

	// ORDER BY keeps the column typed; MAX() comes back as TEXT on SQLite
	var latest domain.CheckIn
	if err = owned.Select("updated_at").Order("updated_at DESC").Take(&latest).Error; err != nil {
		return 0, nil, err
	}
	return count, &latest.UpdatedAt, nil
}
