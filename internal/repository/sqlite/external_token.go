package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

// GetExternalToken returns the Google credentials stored for userID.
func (db *DB) GetExternalToken(ctx context.Context, userID int64) (*model.ExternalToken, error) {
	var (
		et        model.ExternalToken
		expiresAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM external_tokens WHERE user_id = ?`,
		userID,
	).Scan(
		&et.ID,
		&et.UserID,
		&et.AccessToken,
		&et.RefreshToken,
		&expiresAt,
		&et.CreatedAt,
		&et.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("external token for user", strconv.FormatInt(userID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting external token for user %d: %w", userID, err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		et.ExpiresAt = &t
	}
	return &et, nil
}

// UpsertExternalToken inserts the record for token.UserID or overwrites
// the existing one. The record keeps its first ID and CreatedAt.
func (db *DB) UpsertExternalToken(ctx context.Context, token *model.ExternalToken) error {
	now := time.Now().UTC()
	id := xid.New().String()

	var expiresAt any
	if token.ExpiresAt != nil {
		expiresAt = token.ExpiresAt.UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO external_tokens (id, user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			updated_at    = excluded.updated_at`,
		id,
		token.UserID,
		token.AccessToken,
		token.RefreshToken,
		expiresAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting external token for user %d: %w", token.UserID, err)
	}

	stored, err := db.GetExternalToken(ctx, token.UserID)
	if err != nil {
		return err
	}
	*token = *stored
	return nil
}
