package domain

import "time"

// Idempotency records the check-in produced for a given (fingerprint, key)
// pair so a retried submission replays the original result instead of
// creating a second check-in and consuming another quota unit.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Fingerprint string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_fingerprint_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_fingerprint_key,priority:2"`
	CheckInID   string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
