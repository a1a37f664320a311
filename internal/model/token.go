package model

import "time"

// RefreshToken is a persisted, opaque, single-use session credential.
//
// The token string itself carries no claims: everything the server needs
// (owner, expiry) lives in this record. A token is live while its record
// exists and ExpiresAt is in the future. Rotation, logout and expiry all
// end its life by deleting the record.
//
// UserID is a plain foreign key. Callers that need the owner look it up
// explicitly via the user repository.
type RefreshToken struct {
	ID        string    `json:"id"        db:"id"` // xid
	Token     string    `json:"-"         db:"token"`
	UserID    int64     `json:"userId"    db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ExternalToken holds the Google credentials for one user.
// There is at most one record per user; saves overwrite it.
//
// RefreshToken is empty when the provider never issued one.
// ExpiresAt is nil when the provider did not say when the access token expires.
type ExternalToken struct {
	ID           string     `json:"id"                  db:"id"` // xid
	UserID       int64      `json:"userId"              db:"user_id"`
	AccessToken  string     `json:"accessToken"         db:"access_token"`
	RefreshToken string     `json:"refreshToken"        db:"refresh_token"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt    time.Time  `json:"createdAt"           db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt"           db:"updated_at"`
}

// Expired reports whether the access token is known to be expired at now.
// A record with no expiry is never considered expired.
func (t *ExternalToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
