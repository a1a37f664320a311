// Package repository defines the persistence interfaces the services depend on.
//
// Implementations live in sub-packages (sqlite, postgres). Every
// implementation follows the same error contract:
//   - a missing row is reported as apperror.ErrNotFound
//   - a uniqueness violation is reported as apperror.ErrConflict
//   - anything else is wrapped with the backend's prefix ("sqlite: ...")
package repository

import (
	"context"
	"time"

	"github.com/sakif/jiaa-auth/internal/model"
)

// UserRepository stores accounts.
type UserRepository interface {
	// CreateUser inserts user and fills in ID and timestamps.
	// A duplicate email is apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser persists Name, PasswordHash and Role.
	UpdateUser(ctx context.Context, user *model.User) error
}

// RefreshTokenRepository stores refresh token records.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	// DeleteRefreshToken removes the record if present. Deleting a token
	// that does not exist is not an error.
	DeleteRefreshToken(ctx context.Context, token string) error
	// RotateRefreshToken atomically deletes the record for oldToken and
	// inserts next. If oldToken is no longer present (for example another
	// request rotated it first) nothing is written and the error is
	// apperror.ErrNotFound.
	RotateRefreshToken(ctx context.Context, oldToken string, next *model.RefreshToken) error
}

// ExternalTokenRepository stores at most one Google credential per user.
type ExternalTokenRepository interface {
	GetExternalToken(ctx context.Context, userID int64) (*model.ExternalToken, error)
	// UpsertExternalToken inserts or fully overwrites the record for
	// token.UserID. Merging old and new values is the caller's job.
	UpsertExternalToken(ctx context.Context, token *model.ExternalToken) error
}

// QuizResultRepository stores submitted quiz scores.
type QuizResultRepository interface {
	// CreateQuizResult inserts result and fills in ID and CreatedAt when
	// they are unset.
	CreateQuizResult(ctx context.Context, result *model.QuizResult) error
	// ListQuizResults returns the user's results created in [from, to),
	// newest first. No results is an empty slice, not an error.
	ListQuizResults(ctx context.Context, userID int64, from, to time.Time) ([]*model.QuizResult, error)
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	RefreshTokenRepository
	ExternalTokenRepository
	QuizResultRepository
	Close() error
}
