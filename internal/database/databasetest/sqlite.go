// Package databasetest provides an in-memory database for tests.
package databasetest

import (
	"fmt"
	"testing"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/database"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

// New returns a migrated in-memory SQLite database closed at test cleanup.
// A single connection serializes transactions the way row locks do on postgres.
func New(t testing.TB) database.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	gormDB, _ := db.DB()
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedDeviceTypes(db, "Invepin"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
