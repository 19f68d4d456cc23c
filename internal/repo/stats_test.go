package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// newTestDB opens a private in-memory database and migrates the given models.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCheckInStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.CheckIn{})

	jan := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	may := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, ci := range []domain.CheckIn{
		{ID: "c1", Fingerprint: "fp1", Name: "Ada", IsOnline: true, CreatedAt: jan, UpdatedAt: jan},
		{ID: "c2", Fingerprint: "fp1", Name: "Ada", IsOnline: false, CreatedAt: jan, UpdatedAt: mar},
		{ID: "c3", Fingerprint: "fp2", Name: "Bob", IsOnline: true, CreatedAt: may, UpdatedAt: may},
	} {
		if err := db.Create(&ci).Error; err != nil {
			t.Fatalf("seed %s: %v", ci.ID, err)
		}
	}

	cases := []struct {
		fp     string
		count  int64
		latest *time.Time
	}{
		{"fp1", 2, &mar},
		{"fp2", 1, &may},
		{"nobody", 0, nil},
	}
	for _, tc := range cases {
		n, at, err := CheckInStats(ctx, db, tc.fp)
		if err != nil {
			t.Fatalf("%s: %v", tc.fp, err)
		}
		if n != tc.count {
			t.Fatalf("%s: count=%d want %d", tc.fp, n, tc.count)
		}
		if (at == nil) != (tc.latest == nil) || (at != nil && !at.Equal(*tc.latest)) {
			t.Fatalf("%s: latest=%v want %v", tc.fp, at, tc.latest)
		}
	}
}

func TestCheckInStats_NoTable(t *testing.T) {
	if _, _, err := CheckInStats(context.Background(), newTestDB(t), "fp1"); err == nil {
		t.Fatalf("expected error without the developers table")
	}
}
