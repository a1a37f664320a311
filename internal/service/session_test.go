package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signupAndSignin(t *testing.T, svc *SessionService, email, password string) *TokenPair {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Signup(ctx, email, password); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	pair, err := svc.Signin(ctx, email, password)
	if err != nil {
		t.Fatalf("Signin() error = %v", err)
	}
	return pair
}

// =========================================================================
// SIGNUP TESTS
// =========================================================================

func TestSignup_Success(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	user, err := svc.Signup(context.Background(), "  Alice@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.ID == 0 {
		t.Error("Signup() did not set user.ID")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized %q", user.Email, "alice@example.com")
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleUser)
	}
	if user.PasswordHash == "secret1" || !strings.HasPrefix(user.PasswordHash, "$2") {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", user.PasswordHash)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "BOB@example.com", "another1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Signup() duplicate error = %v, want ErrConflict", err)
	}
}

func TestSignup_ConflictFromStore(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	store.failNextCreate = true

	_, err := svc.Signup(context.Background(), "race@example.com", "secret1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Signup() error = %v, want ErrConflict", err)
	}
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "secret1"},
		{"not an email", "not-an-email", "secret1"},
		{"display name form", "Alice <alice@example.com>", "secret1"},
		{"short password", "a@example.com", "12345"},
		{"password over 72 bytes", "a@example.com", strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.email, tt.password)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Signup() error = %v, want ErrValidation", err)
			}
		})
	}
}

// =========================================================================
// SIGNIN TESTS
// =========================================================================

func TestSignin_ReturnsTokenPair(t *testing.T) {
	svc, store, _ := newTestSessionService(t)

	pair := signupAndSignin(t, svc, "carol@example.com", "secret1")

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(AdvertisedExpiresIn), pair.ExpiresIn)
	assert.Equal(t, 1, store.refreshCount())

	claims, err := svc.tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", claims.Email)
	assert.Equal(t, model.RoleUser, claims.Role)
}

func TestSignin_ExpiresInIgnoresConfiguredTTL(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	pair := signupAndSignin(t, svc, "ttl@example.com", "secret1")

	claims, err := svc.tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)

	assert.Equal(t, 15*time.Minute, lifetime)
	assert.Equal(t, int64(900), pair.ExpiresIn)
}

func TestSignin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, "dave@example.com", "secret1")
	require.NoError(t, err)

	_, unknownErr := svc.Signin(ctx, "nobody@example.com", "secret1")
	_, wrongErr := svc.Signin(ctx, "dave@example.com", "wrong-password")

	if !errors.Is(unknownErr, apperror.ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, apperror.ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("messages differ: %q vs %q", unknownErr.Error(), wrongErr.Error())
	}
}

func TestSignin_EmailIsCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, "erin@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Signin(ctx, "ERIN@Example.COM", "secret1")
	assert.NoError(t, err)
}

// =========================================================================
// REFRESH TESTS
// =========================================================================

func TestRefresh_RotatesToken(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	ctx := context.Background()
	first := signupAndSignin(t, svc, "frank@example.com", "secret1")

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Refresh() returned the same refresh token")
	}
	assert.Equal(t, int64(AdvertisedExpiresIn), second.ExpiresIn)
	assert.Equal(t, 1, store.refreshCount())

	// The presented token is single use.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("Refresh() reused token error = %v, want ErrInvalidToken", err)
	}

	// The successor still works.
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("Refresh() error = %v, want ErrInvalidToken", err)
	}
}

func TestRefresh_EmptyToken(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	_, err := svc.Refresh(context.Background(), "  ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Refresh() error = %v, want ErrValidation", err)
	}
}

func TestRefresh_ExpiredTokenIsDeleted(t *testing.T) {
	svc, store, clock := newTestSessionService(t)
	ctx := context.Background()
	pair := signupAndSignin(t, svc, "gina@example.com", "secret1")

	clock.Advance(7*24*time.Hour + time.Second)

	_, err := svc.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, apperror.ErrExpiredToken) {
		t.Fatalf("Refresh() error = %v, want ErrExpiredToken", err)
	}
	assert.Equal(t, 0, store.refreshCount())

	// Second presentation: the record is gone.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("Refresh() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	pair := signupAndSignin(t, svc, "henry@example.com", "secret1")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		invalid int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperror.ErrInvalidToken):
				invalid++
			default:
				t.Errorf("Refresh() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, invalid)
	assert.Equal(t, 1, store.refreshCount())
}

// =========================================================================
// LOGOUT TESTS
// =========================================================================

func TestLogout_RevokesToken(t *testing.T) {
	svc, store, _ := newTestSessionService(t)
	ctx := context.Background()
	pair := signupAndSignin(t, svc, "ivy@example.com", "secret1")

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.Equal(t, 0, store.refreshCount())

	_, err := svc.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("Refresh() after logout error = %v, want ErrInvalidToken", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()
	pair := signupAndSignin(t, svc, "jack@example.com", "secret1")

	assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, svc.Logout(ctx, "never-issued"))
	assert.NoError(t, svc.Logout(ctx, ""))
}

// =========================================================================
// PASSWORD TESTS
// =========================================================================

func TestUpdatePassword(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()
	user, err := svc.Signup(ctx, "kate@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePassword(ctx, user, "newsecret"))

	_, err = svc.Signin(ctx, "kate@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = svc.Signin(ctx, "kate@example.com", "newsecret")
	assert.NoError(t, err)
}

func TestUpdatePassword_TooShort(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()
	user, err := svc.Signup(ctx, "leo@example.com", "secret1")
	require.NoError(t, err)

	err = svc.UpdatePassword(ctx, user, "123")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCurrentUser_OmitsHash(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	user, err := svc.Signup(context.Background(), "mia@example.com", "secret1")
	require.NoError(t, err)

	got := svc.CurrentUser(user)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "mia@example.com", got.Email)
	assert.Equal(t, model.RoleUser, got.Role)
}
