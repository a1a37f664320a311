// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the coarse authorization level of an account.
// There are exactly two roles; anything finer grained is out of scope.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Authority returns the authority string attached to an authenticated
// request, e.g. "ROLE_USER".
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// User represents an account.
//
// ID is assigned by the store (auto-increment) and is what access tokens
// carry in their subject claim. Email is unique across all accounts.
//
// PasswordHash is ALWAYS set, even for accounts created through Google
// sign-in: those receive a bcrypt hash of a random value nobody knows, so
// the password sign-in path simply never matches for them.
//
// Name is optional. An empty string means the provider never told us.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"`
	Role         Role      `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// UserResponse is the public projection of a User returned by the API.
type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public returns the public projection of u.
func (u *User) Public() UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Role: u.Role}
}
