package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

// CreateUser inserts a new account. The store assigns the numeric ID.
// A duplicate email (case-insensitive) is reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.PasswordHash,
		user.Name,
		string(user.Role),
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by numeric ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", email, err)
	}
	return u, nil
}

// UpdateUser persists the mutable fields of user.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, password_hash = ?, role = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		string(user.Role),
		now,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}

	user.UpdatedAt = now
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}
