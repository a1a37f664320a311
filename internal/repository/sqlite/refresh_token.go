package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func errRefreshTokenNotFound() error {
	return &apperror.AppError{Err: apperror.ErrNotFound, Message: "refresh token not found"}
}

// CreateRefreshToken stores a new refresh token record, assigning its ID.
func (db *DB) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return insertRefreshToken(ctx, db.conn, token)
}

func insertRefreshToken(ctx context.Context, ex execer, token *model.RefreshToken) error {
	if token.ID == "" {
		token.ID = xid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID,
		token.Token,
		token.UserID,
		token.ExpiresAt.UTC(),
		token.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("refresh token", token.ID)
		}
		return fmt.Errorf("sqlite: inserting refresh token for user %d: %w", token.UserID, err)
	}
	return nil
}

// GetRefreshToken looks up a refresh token record by its token string.
func (db *DB) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, token, user_id, expires_at, created_at
		 FROM refresh_tokens WHERE token = ?`,
		token,
	).Scan(
		&rt.ID,
		&rt.Token,
		&rt.UserID,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRefreshTokenNotFound()
		}
		return nil, fmt.Errorf("sqlite: getting refresh token: %w", err)
	}
	return &rt, nil
}

// DeleteRefreshToken removes a refresh token. Missing tokens are ignored.
func (db *DB) DeleteRefreshToken(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("sqlite: deleting refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces oldToken with next in one transaction.
//
// The DELETE doubles as the compare step: if it removes nothing, the token
// was already rotated, revoked or purged, so the transaction is rolled back
// and apperror.ErrNotFound returned. Of two concurrent rotations of the
// same token exactly one succeeds.
//
// WHY NOT READ, CHECK, THEN DELETE?
// Two requests presenting the same token would both pass the read and
// both mint a new pair, turning one refresh token into two live sessions.
// A leaked token replayed alongside the real client would go unnoticed.
// Making the delete the check closes that window: the row count decides
// the winner inside the same transaction that inserts the successor.
func (db *DB) RotateRefreshToken(ctx context.Context, oldToken string, next *model.RefreshToken) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, oldToken)
		if err != nil {
			return fmt.Errorf("sqlite: deleting rotated refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return errRefreshTokenNotFound()
		}
		return insertRefreshToken(ctx, tx, next)
	})
}
