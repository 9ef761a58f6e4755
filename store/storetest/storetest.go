// Package storetest opens migrated throwaway databases for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/legit-games/eveauth/migrate"
	"github.com/legit-games/eveauth/store"
)

// NewDB returns a gorm handle on a fresh, fully migrated sqlite file in t.TempDir().
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "eveauth.db") + "?_pragma=busy_timeout(5000)"
	db, err := store.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := migrate.Apply(sqlDB, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
