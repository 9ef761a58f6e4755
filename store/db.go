package store

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/legit-games/eveauth/errors"
)

// Open connects gorm to postgres or sqlite. Timestamps are written in UTC.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "pgx":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	return db, nil
}

// notFound maps gorm's missing-row error onto errors.ErrNotFound.
func notFound(err error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound
	}
	return err
}

// conflict maps unique index violations onto errors.ErrConflict.
func conflict(err error) error {
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.WithMessage(errors.ErrConflict, "already exists")
	}
	return err
}

func now() time.Time { return time.Now().UTC() }
