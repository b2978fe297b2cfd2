package services

import (
	"testing"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/models"

	"gorm.io/gorm"
)

// newTestDB opens a private in-memory database. One connection only: each
// sqlite memory connection is a separate database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(":memory:?_time_format=sqlite", 1, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeClock is a settable now func.
type fakeClock struct {
	t time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t.UTC()}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func seedResearcher(t *testing.T, db *gorm.DB, id string, status models.ApplicationStatus) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Create(&models.Researcher{ID: id, DisplayName: id, Status: status, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed researcher %s: %v", id, err)
	}
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
