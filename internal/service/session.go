// Package service holds the business logic: sessions, Google sign-in and
// the calendar proxy. Services return apperror kinds and never deal with
// HTTP; handlers translate errors to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/auth"
	"github.com/sakif/jiaa-auth/internal/model"
	"github.com/sakif/jiaa-auth/internal/repository"
	"github.com/sakif/jiaa-auth/internal/telemetry"
)

// AdvertisedExpiresIn is the expiresIn value (seconds) returned with every
// token pair. It is a fixed contract with clients and does not follow the
// configured access token TTL.
const AdvertisedExpiresIn = 900

const (
	minPasswordLen = 6
	maxPasswordLen = 72
	maxEmailLen    = 320
)

// TokenPair is what a successful signin, refresh or Google login returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// SessionService manages accounts and refresh token sessions.
//
// REFRESH TOKEN LIFECYCLE:
//
//	signin ─► live ──refresh──► rotated away (record deleted, successor live)
//	           │ └──logout────► revoked (record deleted)
//	           └────time──────► expired (deleted on next presentation)
//
// A refresh token is accepted at most once.
type SessionService struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	refreshTTL    time.Duration
	metrics       *telemetry.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewSessionService wires a SessionService. metrics may be nil.
func NewSessionService(
	users repository.UserRepository,
	refreshTokens repository.RefreshTokenRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	refreshTTL time.Duration,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		users:         users,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		passwords:     passwords,
		refreshTTL:    refreshTTL,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Signup creates a USER account. It does not sign the user in.
func (s *SessionService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		s.metrics.AuthEvent("signup", telemetry.OutcomeFailure)
		return nil, apperror.Conflict("user", email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/session: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash, Role: model.RoleUser}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// A concurrent signup may win between the check and the insert;
		// the store's unique constraint reports that as a conflict too.
		if errors.Is(err, apperror.ErrConflict) {
			s.metrics.AuthEvent("signup", telemetry.OutcomeFailure)
			return nil, err
		}
		return nil, fmt.Errorf("service/session: creating user: %w", err)
	}

	s.metrics.AuthEvent("signup", telemetry.OutcomeSuccess)
	s.logger.Info("user signed up", slog.Int64("userID", user.ID))
	return user, nil
}

// Signin checks credentials and opens a session. Unknown email and wrong
// password produce the same InvalidCredentials error.
func (s *SessionService) Signin(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.AuthEvent("signin", telemetry.OutcomeInvalid)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/session: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("unusable password hash", slog.Int64("userID", user.ID), slog.String("error", err.Error()))
		}
		s.metrics.AuthEvent("signin", telemetry.OutcomeInvalid)
		return nil, apperror.InvalidCredentials()
	}

	pair, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.metrics.AuthEvent("signin", telemetry.OutcomeSuccess)
	return pair, nil
}

// IssueSession issues an access token and a new persisted refresh token
// for user. Signin and Google login both end here.
func (s *SessionService) IssueSession(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	rt, err := s.newRefreshRecord(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("service/session: storing refresh token: %w", err)
	}

	return newTokenPair(access, rt.Token), nil
}

// Refresh exchanges a live refresh token for a new token pair.
//
// ERRORS:
//   - unknown token (never issued, rotated, revoked) → InvalidToken
//   - expired token → ExpiredToken; the record is deleted
//   - lost a concurrent rotation of the same token  → InvalidToken
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperror.ValidationFailed("refreshToken", "refresh token is required")
	}

	stored, err := s.refreshTokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.AuthEvent("refresh", telemetry.OutcomeInvalid)
			return nil, apperror.InvalidToken("invalid refresh token")
		}
		return nil, fmt.Errorf("service/session: loading refresh token: %w", err)
	}

	if stored.Expired(s.now()) {
		if err := s.refreshTokens.DeleteRefreshToken(ctx, refreshToken); err != nil {
			s.logger.Error("deleting expired refresh token", slog.String("error", err.Error()))
		}
		s.metrics.AuthEvent("refresh", telemetry.OutcomeExpired)
		return nil, apperror.ExpiredToken("refresh token expired, please sign in again")
	}

	user, err := s.users.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.AuthEvent("refresh", telemetry.OutcomeInvalid)
			return nil, apperror.InvalidToken("invalid refresh token")
		}
		return nil, fmt.Errorf("service/session: loading user %d: %w", stored.UserID, err)
	}

	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	next, err := s.newRefreshRecord(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.RotateRefreshToken(ctx, refreshToken, next); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("refresh token reused concurrently", slog.Int64("userID", user.ID))
			s.metrics.AuthEvent("refresh", telemetry.OutcomeInvalid)
			return nil, apperror.InvalidToken("invalid refresh token")
		}
		return nil, fmt.Errorf("service/session: rotating refresh token: %w", err)
	}

	s.metrics.AuthEvent("refresh", telemetry.OutcomeSuccess)
	return newTokenPair(access, next.Token), nil
}

// Logout revokes a refresh token. Unknown or empty tokens are accepted
// silently so that logout can be retried freely.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := s.refreshTokens.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("service/session: revoking refresh token: %w", err)
	}
	s.metrics.AuthEvent("logout", telemetry.OutcomeSuccess)
	return nil
}

// CurrentUser projects the authenticated user for the API.
func (s *SessionService) CurrentUser(user *model.User) model.UserResponse {
	return user.Public()
}

// UpdatePassword replaces the password of user. Existing sessions stay valid.
func (s *SessionService) UpdatePassword(ctx context.Context, user *model.User, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/session: %w", err)
	}

	updated := *user
	updated.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		return fmt.Errorf("service/session: updating password for user %d: %w", user.ID, err)
	}
	s.logger.Info("password updated", slog.Int64("userID", user.ID))
	return nil
}

func (s *SessionService) newRefreshRecord(userID int64) (*model.RefreshToken, error) {
	value, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	now := s.now().UTC()
	return &model.RefreshToken{
		Token:     value,
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}, nil
}

func newTokenPair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    AdvertisedExpiresIn,
	}
}

// normalizeEmail trims and lower-cases email and checks its shape.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > maxEmailLen {
		return "", apperror.ValidationFailed("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email must be a valid address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordLen {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", maxPasswordLen))
	}
	return nil
}
