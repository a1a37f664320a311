// Package auth: password hashing.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, and the slowness is the point: every guess
// an attacker makes against a leaked hash costs the same ~250ms a login
// does. It also generates a per-hash salt and embeds it, together with
// the cost, in the output:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// So the hash column is the only thing stored, and Verify needs nothing
// else. Accounts created through Google sign-in get a hash of a random
// value (RandomHash) so the column is never empty and no password works.
package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used in production.
//
// COST TUNING:
// Pick the cost at which one hash takes 200-300ms on production hardware.
// Lower makes offline cracking cheap; higher makes signin slow and lets a
// burst of logins saturate the CPU.
const defaultCost = 12

// maxPasswordBytes is where bcrypt stops reading input. Longer passwords
// are rejected rather than silently truncated.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: password does not match")

// PasswordService hashes and verifies passwords with bcrypt.
//
// It is a struct rather than free functions so tests can inject a low
// cost (bcrypt.MinCost) and keep the suite fast.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Tests use bcrypt.MinCost (4). Never use this in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
// Returns an error if the plaintext is longer than 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks a plaintext password against a stored hash.
// Returns nil on match, ErrPasswordMismatch on a wrong password, and a
// wrapped error if the stored hash itself is unusable.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// RandomHash returns the hash of a random password nobody knows. Accounts
// created through Google sign-in get one so that PasswordHash is never empty
// and password sign-in can never succeed for them.
func (p *PasswordService) RandomHash() (string, error) {
	secret, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: generating random password: %w", err)
	}
	return p.Hash(secret.String())
}
