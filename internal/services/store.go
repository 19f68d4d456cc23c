package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/domain"
	"github.com/tbourn/go-devradar-backend/internal/feed"
)

// CheckInStore persists check-ins. Lookups of unknown ids return
// gorm.ErrRecordNotFound.
type CheckInStore interface {
	CreateCheckIn(ctx context.Context, c *domain.CheckIn) (*domain.CheckIn, error)
	GetCheckIn(ctx context.Context, id string) (*domain.CheckIn, error)
	ListOnlineCheckIns(ctx context.Context) ([]domain.CheckIn, error)
	ListCheckInsByFingerprint(ctx context.Context, fingerprint string) ([]domain.CheckIn, error)
	UpdateCheckInLocation(ctx context.Context, id string, lat, lon float64) (*domain.CheckIn, error)
	UpdateCheckInStatus(ctx context.Context, id string, online bool) (*domain.CheckIn, error)
	UpdateCheckInProfile(ctx context.Context, id, name string, skills []string, contact *string) (*domain.CheckIn, error)
}

// QuotaStore persists per-fingerprint quota rows. GetQuota returns
// gorm.ErrRecordNotFound when no row exists.
type QuotaStore interface {
	GetQuota(ctx context.Context, fingerprint string) (*domain.QuotaRecord, error)
	InsertQuotaIfAbsent(ctx context.Context, fingerprint string, maxCheckIns int) (bool, error)
	SetQuotaCount(ctx context.Context, fingerprint string, count int, at time.Time) error
	ReserveQuota(ctx context.Context, fingerprint string, at time.Time) (bool, error)
	ReleaseQuota(ctx context.Context, fingerprint string) error
}

// Store is the complete persistence contract of the service layer.
type Store interface {
	CheckInStore
	QuotaStore
}

// ChangeFeed delivers row-level change notifications for a table.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, mask feed.EventType) (feed.Subscription, error)
}

// MapRenderer draws the current marker list. Render must not block.
type MapRenderer interface {
	Render(markers []domain.Marker)
}

// LocationSource yields a single coordinate or fails with a *LocationError.
type LocationSource interface {
	RequestOnce(ctx context.Context) (lat, lon float64, err error)
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
