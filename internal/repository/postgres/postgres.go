// Package postgres implements the repository interfaces with gorm on
// PostgreSQL. It is selected with DB_DRIVER=postgres; the schema is managed
// by gorm's AutoMigrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/jiaa-auth/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store is a gorm-backed repository.Store.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at dsn, configures the pool and migrates
// the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: getting sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: pinging: %w", err)
	}

	return NewFromDB(ctx, db)
}

// NewFromDB wraps an existing gorm connection and migrates the schema.
// Tests use it with the sqlite dialector.
func NewFromDB(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(
		&userRecord{},
		&refreshTokenRecord{},
		&externalTokenRecord{},
		&quizResultRecord{},
	); err != nil {
		return nil, fmt.Errorf("postgres: migrating: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
