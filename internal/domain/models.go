// Package domain defines the persistence models for developer check-ins and
// per-device quota bookkeeping. These types are mapped with GORM and form the
// core data layer of the check-in board.
package domain

import "time"

// CheckIn is one published developer presence on the shared map. Many
// check-ins may share a fingerprint; the fingerprint is the only ownership
// marker.
//
// Fields:
//   - ID: UUID primary key assigned by the store (char(36)).
//   - Fingerprint: device identity of the creator; indexed for "my check-ins".
//   - Name: display name (required, normalized before insert).
//   - Skills: ordered skill labels, stored as a JSON array.
//   - Communication: optional contact string; nil when absent.
//   - Latitude / Longitude: WGS84 decimal degrees as reported by the device.
//   - IsOnline: whether the check-in is shown on the live roster.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type CheckIn struct {
	ID            string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Fingerprint   string    `json:"fingerprint"   gorm:"type:varchar(64);not null;index:idx_developers_fingerprint"`
	Name          string    `json:"name"          gorm:"type:varchar(255);not null"`
	Skills        []string  `json:"skills"        gorm:"type:text;serializer:json"`
	Communication *string   `json:"communication" gorm:"type:text"`
	Latitude      float64   `json:"latitude"      gorm:"not null"`
	Longitude     float64   `json:"longitude"     gorm:"not null"`
	IsOnline      bool      `json:"is_online"     gorm:"not null;index:idx_developers_online"`
	CreatedAt     time.Time `json:"created_at"    gorm:"index:idx_developers_online"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for CheckIn.
func (CheckIn) TableName() string { return "developers" }

// QuotaRecord tracks how many check-ins a fingerprint has created. Exactly one
// row exists per fingerprint (unique index), created lazily on first use.
type QuotaRecord struct {
	ID           string     `json:"id"             gorm:"type:char(36);primaryKey"`
	Fingerprint  string     `json:"fingerprint"    gorm:"type:varchar(64);not null;uniqueIndex:ux_user_limits_fingerprint"`
	CheckInCount int        `json:"check_in_count" gorm:"not null;default:0;check:chk_user_limits_count,check_in_count >= 0"`
	MaxCheckIns  int        `json:"max_check_ins"  gorm:"not null;default:5"`
	IsOnline     bool       `json:"is_online"      gorm:"not null"`
	LastCheckIn  *time.Time `json:"last_check_in"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for QuotaRecord.
func (QuotaRecord) TableName() string { return "user_limits" }

// CanCheckIn reports whether another check-in fits within the quota.
func (q QuotaRecord) CanCheckIn() bool { return q.CheckInCount < q.MaxCheckIns }

// Remaining returns the number of check-ins still available, never negative.
func (q QuotaRecord) Remaining() int {
	if n := q.MaxCheckIns - q.CheckInCount; n > 0 {
		return n
	}
	return 0
}

// Marker is a check-in as drawn on the map. Rendered coordinates carry the
// per-fingerprint offset so stacked duplicates stay individually visible.
type Marker struct {
	ID            string   `json:"id"`
	Fingerprint   string   `json:"fingerprint"`
	Name          string   `json:"name"`
	Skills        []string `json:"skills"`
	Communication *string  `json:"communication,omitempty"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	RenderLat     float64  `json:"render_lat"`
	RenderLon     float64  `json:"render_lon"`
	IsOnline      bool     `json:"is_online"`
}
