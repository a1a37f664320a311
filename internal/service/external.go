package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/auth"
	"github.com/sakif/jiaa-auth/internal/model"
	"github.com/sakif/jiaa-auth/internal/repository"
	"github.com/sakif/jiaa-auth/internal/telemetry"
)

// OAuthProvider is the external identity provider. *auth.GoogleProvider
// implements it.
type OAuthProvider interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) (*auth.Grant, error)
	UserInfo(ctx context.Context, accessToken string) (*auth.ExternalUser, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Grant, error)
}

// TokenCache is an optional read-through cache in front of the external
// token store. *cache.RedisTokenCache implements it.
type TokenCache interface {
	Get(ctx context.Context, userID int64) (*model.ExternalToken, bool, error)
	Set(ctx context.Context, token *model.ExternalToken) error
	Delete(ctx context.Context, userID int64) error
}

// ExternalLoginResult is the outcome of a completed Google sign-in.
type ExternalLoginResult struct {
	Tokens *TokenPair
	User   *model.User
}

// ExternalAuthService runs the Google authorization-code flow and keeps
// each user's Google access token usable.
//
// When the provider is not configured (nil), every operation fails fast
// with apperror.ErrConfiguration and no network call is made.
type ExternalAuthService struct {
	provider    OAuthProvider
	providerErr error
	users       repository.UserRepository
	tokens      repository.ExternalTokenRepository
	sessions    *SessionService
	passwords   *auth.PasswordService
	cache       TokenCache
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewExternalAuthService wires an ExternalAuthService.
//
// provider may be nil, in which case providerErr (if set) is returned to
// callers as the configuration problem. cache and metrics may be nil.
func NewExternalAuthService(
	provider OAuthProvider,
	providerErr error,
	users repository.UserRepository,
	tokens repository.ExternalTokenRepository,
	sessions *SessionService,
	passwords *auth.PasswordService,
	cache TokenCache,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *ExternalAuthService {
	return &ExternalAuthService{
		provider:    provider,
		providerErr: providerErr,
		users:       users,
		tokens:      tokens,
		sessions:    sessions,
		passwords:   passwords,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// AuthorizationURL returns the Google consent URL.
func (s *ExternalAuthService) AuthorizationURL() (string, error) {
	if err := s.requireProvider(); err != nil {
		return "", err
	}
	return s.provider.AuthURL(), nil
}

// CompleteLogin finishes the authorization-code flow.
//
// FLOW:
//  1. exchange the code for Google tokens
//  2. fetch the Google profile (email is mandatory)
//  3. find the account by email, or create one with a random password
//  4. store the Google tokens for that account
//  5. open an app session (access + refresh token)
func (s *ExternalAuthService) CompleteLogin(ctx context.Context, code string) (*ExternalLoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is required")
	}
	if err := s.requireProvider(); err != nil {
		return nil, err
	}

	grant, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.metrics.AuthEvent("external_login", telemetry.OutcomeFailure)
		return nil, fmt.Errorf("service/external: %w", err)
	}

	info, err := s.provider.UserInfo(ctx, grant.AccessToken)
	if err != nil {
		s.metrics.AuthEvent("external_login", telemetry.OutcomeFailure)
		return nil, fmt.Errorf("service/external: %w", err)
	}
	if strings.TrimSpace(info.Email) == "" {
		s.metrics.AuthEvent("external_login", telemetry.OutcomeFailure)
		return nil, apperror.Provider(apperror.ErrInvalidProviderResponse,
			"Google user info did not include an email address")
	}

	user, err := s.findOrCreateUser(ctx, info)
	if err != nil {
		return nil, err
	}

	if _, err := s.SaveExternalToken(ctx, user.ID, grant); err != nil {
		return nil, err
	}

	pair, err := s.sessions.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.AuthEvent("external_login", telemetry.OutcomeSuccess)
	s.logger.Info("user signed in with Google", slog.Int64("userID", user.ID))
	return &ExternalLoginResult{Tokens: pair, User: user}, nil
}

func (s *ExternalAuthService) findOrCreateUser(ctx context.Context, info *auth.ExternalUser) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(info.Email))

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Name == "" && info.Name != "" {
			user.Name = info.Name
			if err := s.users.UpdateUser(ctx, user); err != nil {
				return nil, fmt.Errorf("service/external: filling name for user %d: %w", user.ID, err)
			}
		}
		return user, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/external: loading user: %w", err)
	}

	hash, err := s.passwords.RandomHash()
	if err != nil {
		return nil, fmt.Errorf("service/external: %w", err)
	}
	user = &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         info.Name,
		Role:         model.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Created by a concurrent login for the same account.
			return s.users.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("service/external: creating user: %w", err)
	}
	s.logger.Info("created user from Google profile", slog.Int64("userID", user.ID))
	return user, nil
}

// SaveExternalToken stores grant as the user's Google credentials.
// The stored refresh token is only replaced when grant carries a new one.
func (s *ExternalAuthService) SaveExternalToken(ctx context.Context, userID int64, grant *auth.Grant) (*model.ExternalToken, error) {
	rec := &model.ExternalToken{UserID: userID, AccessToken: grant.AccessToken}

	existing, err := s.tokens.GetExternalToken(ctx, userID)
	switch {
	case err == nil:
		rec.RefreshToken = existing.RefreshToken
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/external: loading external token: %w", err)
	}
	if grant.RefreshToken != "" {
		rec.RefreshToken = grant.RefreshToken
	}
	if !grant.Expiry.IsZero() {
		expiry := grant.Expiry.UTC()
		rec.ExpiresAt = &expiry
	}

	if err := s.tokens.UpsertExternalToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("service/external: saving external token: %w", err)
	}
	s.cacheSet(ctx, rec)
	return rec, nil
}

// GetAccessToken returns a usable Google access token for userID.
//
// RESULTS:
//   - no stored record                      → ok=false
//   - stored token not expired              → stored token, no provider call
//   - expired, refresh token on file        → one provider refresh, persisted
//   - expired, no refresh token on file     → the stale token (logged)
//
// A failed provider refresh is returned as an error.
//
// WHY REFRESH ON READ?
// Google access tokens live for an hour and most users never come back
// within that hour. Refreshing in the background would spend provider
// quota on tokens nobody asks for; refreshing when a caller actually
// needs one costs a single round trip, and only then. The refreshed
// token is persisted immediately so the next read within the hour makes
// no provider call.
func (s *ExternalAuthService) GetAccessToken(ctx context.Context, userID int64) (string, bool, error) {
	rec, err := s.loadToken(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	if !rec.Expired(s.now()) {
		s.metrics.ExternalTokenRead(telemetry.OutcomeSuccess)
		return rec.AccessToken, true, nil
	}

	if rec.RefreshToken == "" {
		s.logger.Warn("external access token expired and no refresh token is stored",
			slog.Int64("userID", userID),
		)
		s.metrics.ExternalTokenRead(telemetry.OutcomeStale)
		return rec.AccessToken, true, nil
	}

	if err := s.requireProvider(); err != nil {
		return "", false, err
	}
	grant, err := s.provider.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		s.metrics.ExternalTokenRead(telemetry.OutcomeFailure)
		s.logger.Error("refreshing external access token",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", false, fmt.Errorf("service/external: %w", err)
	}

	saved, err := s.SaveExternalToken(ctx, userID, grant)
	if err != nil {
		return "", false, err
	}
	s.metrics.ExternalTokenRead(telemetry.OutcomeRefreshed)
	s.logger.Info("refreshed external access token", slog.Int64("userID", userID))
	return saved.AccessToken, true, nil
}

// loadToken reads through the cache when one is configured. Cache errors
// are logged and the store is used instead.
func (s *ExternalAuthService) loadToken(ctx context.Context, userID int64) (*model.ExternalToken, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("external token cache read failed", slog.String("error", err.Error()))
		} else if ok && !cached.Expired(s.now()) {
			return cached, nil
		}
	}

	rec, err := s.tokens.GetExternalToken(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/external: loading external token: %w", err)
	}
	if !rec.Expired(s.now()) {
		s.cacheSet(ctx, rec)
	}
	return rec, nil
}

func (s *ExternalAuthService) cacheSet(ctx context.Context, rec *model.ExternalToken) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.Warn("external token cache write failed", slog.String("error", err.Error()))
	}
}

func (s *ExternalAuthService) requireProvider() error {
	if s.provider != nil {
		return nil
	}
	if s.providerErr != nil {
		return s.providerErr
	}
	return apperror.Configuration("Google sign-in is not configured: set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI")
}
