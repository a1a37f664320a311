package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/jiaa-auth/internal/model"
)

const testSecret = "test-secret-that-is-32-bytes-ok!"

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// newTestTokenService creates a TokenService with a fixed secret and clock.
func newTestTokenService(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, 15*time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testUser() *model.User {
	return &model.User{ID: 42, Email: "ada@example.com", Role: model.RoleUser}
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_EmptySecret(t *testing.T) {
	if _, err := NewTokenService("", time.Minute); err == nil {
		t.Fatal("NewTokenService() should reject an empty secret")
	}
}

func TestNewTokenService_ShortSecretIsPadded(t *testing.T) {
	ts, err := NewTokenService("short", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if !ts.Padded() {
		t.Error("Padded() = false, want true for a 5-byte secret")
	}
	want := "short" + strings.Repeat("x", 27)
	if string(ts.secret) != want {
		t.Errorf("secret = %q, want %q", ts.secret, want)
	}
}

func TestNewTokenService_ShortSecretStrict(t *testing.T) {
	if _, err := NewTokenService("short", time.Minute, WithStrictSecret()); err == nil {
		t.Fatal("NewTokenService() should reject short secrets in strict mode")
	}
}

func TestNewTokenService_LongSecretUnchanged(t *testing.T) {
	ts, err := NewTokenService(testSecret, time.Minute, WithStrictSecret())
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.Padded() {
		t.Error("Padded() = true, want false")
	}
}

func TestPaddedSecretMatchesExplicitPadding(t *testing.T) {
	clock := newFakeClock()
	short, _ := NewTokenService("abc", time.Minute, WithClock(clock.Now))
	explicit, _ := NewTokenService("abc"+strings.Repeat("x", 29), time.Minute, WithClock(clock.Now))

	token, err := short.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if _, err := explicit.VerifyAccessToken(token); err != nil {
		t.Fatalf("VerifyAccessToken() with explicitly padded secret error = %v", err)
	}
}

// =========================================================================
// ISSUE / VERIFY TESTS
// =========================================================================

func TestIssueAccessToken_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	ts := newTestTokenService(t, clock)
	user := testUser()

	token, err := ts.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token doesn't look like a JWT: %q", token)
	}

	claims, err := ts.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken() error = %v", err)
	}

	id, err := claims.UserID()
	if err != nil || id != user.ID {
		t.Errorf("UserID() = %d, %v; want %d", id, err, user.ID)
	}
	if claims.Email != user.Email {
		t.Errorf("Email = %q, want %q", claims.Email, user.Email)
	}
	if claims.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", claims.Role, model.RoleUser)
	}
	if !claims.IssuedAt.Time.Equal(clock.Now()) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt.Time, clock.Now())
	}
	if !claims.ExpiresAt.Time.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want now+15m", claims.ExpiresAt.Time)
	}
}

func TestIssueAccessToken_NilUser(t *testing.T) {
	ts := newTestTokenService(t, newFakeClock())
	if _, err := ts.IssueAccessToken(nil); err == nil {
		t.Fatal("IssueAccessToken(nil) should fail")
	}
}

func TestVerifyAccessToken_ValidUntilTTL(t *testing.T) {
	clock := newFakeClock()
	ts := newTestTokenService(t, clock)

	token, _ := ts.IssueAccessToken(testUser())

	clock.Advance(15*time.Minute - time.Second)
	if _, err := ts.VerifyAccessToken(token); err != nil {
		t.Fatalf("VerifyAccessToken() just before expiry error = %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err := ts.VerifyAccessToken(token)
	if !errors.Is(err, ErrAccessTokenExpired) {
		t.Fatalf("VerifyAccessToken() after expiry error = %v, want ErrAccessTokenExpired", err)
	}
	if !errors.Is(err, ErrAccessTokenInvalid) {
		t.Error("expired error should also match ErrAccessTokenInvalid")
	}
}

func TestVerifyAccessToken_TamperedSignature(t *testing.T) {
	ts := newTestTokenService(t, newFakeClock())
	token, _ := ts.IssueAccessToken(testUser())

	// Change a character in the middle of the signature segment. The final
	// character is avoided since some of its bits are padding.
	i := len(token) - 5
	flipped := byte('A')
	if token[i] == 'A' {
		flipped = 'B'
	}
	tampered := token[:i] + string(flipped) + token[i+1:]

	_, err := ts.VerifyAccessToken(tampered)
	if !errors.Is(err, ErrAccessTokenInvalid) {
		t.Fatalf("VerifyAccessToken(tampered) error = %v, want ErrAccessTokenInvalid", err)
	}
}

func TestVerifyAccessToken_TamperedPayload(t *testing.T) {
	ts := newTestTokenService(t, newFakeClock())
	token, _ := ts.IssueAccessToken(testUser())

	// Swap the payload for one claiming a different user, keep the signature.
	other, _ := ts.IssueAccessToken(&model.User{ID: 7, Email: "eve@example.com", Role: model.RoleAdmin})
	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err := ts.VerifyAccessToken(forged)
	if !errors.Is(err, ErrAccessTokenSignature) {
		t.Fatalf("VerifyAccessToken(forged) error = %v, want ErrAccessTokenSignature", err)
	}
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	clock := newFakeClock()
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Minute, WithClock(clock.Now))
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Minute, WithClock(clock.Now))

	token, _ := ts1.IssueAccessToken(testUser())
	if _, err := ts2.VerifyAccessToken(token); !errors.Is(err, ErrAccessTokenInvalid) {
		t.Fatalf("VerifyAccessToken() with other secret error = %v, want ErrAccessTokenInvalid", err)
	}
}

func TestVerifyAccessToken_Malformed(t *testing.T) {
	ts := newTestTokenService(t, newFakeClock())

	for _, in := range []string{"", "not.a.jwt.token", "garbage"} {
		if _, err := ts.VerifyAccessToken(in); !errors.Is(err, ErrAccessTokenInvalid) {
			t.Errorf("VerifyAccessToken(%q) error = %v, want ErrAccessTokenInvalid", in, err)
		}
	}
}

func TestVerifyAccessToken_RejectsOtherAlgorithms(t *testing.T) {
	clock := newFakeClock()
	ts := newTestTokenService(t, clock)

	claims := Claims{
		Email: "ada@example.com",
		Role:  model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing HS512: %v", err)
	}
	if _, err := ts.VerifyAccessToken(hs512); !errors.Is(err, ErrAccessTokenInvalid) {
		t.Errorf("HS512 token accepted, err = %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none: %v", err)
	}
	if _, err := ts.VerifyAccessToken(none); !errors.Is(err, ErrAccessTokenInvalid) {
		t.Errorf("alg=none token accepted, err = %v", err)
	}
}

func TestVerifyAccessToken_NonNumericSubject(t *testing.T) {
	clock := newFakeClock()
	ts := newTestTokenService(t, clock)

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-abc",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	if _, err := ts.VerifyAccessToken(token); !errors.Is(err, ErrAccessTokenClaims) {
		t.Fatalf("VerifyAccessToken() error = %v, want ErrAccessTokenClaims", err)
	}
}

// =========================================================================
// REFRESH TOKEN TESTS
// =========================================================================

func TestNewRefreshToken_IsRandomUUID(t *testing.T) {
	ts := newTestTokenService(t, newFakeClock())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := ts.NewRefreshToken()
		if err != nil {
			t.Fatalf("NewRefreshToken() error = %v", err)
		}
		id, err := uuid.Parse(tok)
		if err != nil {
			t.Fatalf("NewRefreshToken() = %q is not a UUID: %v", tok, err)
		}
		if id.Version() != 4 {
			t.Errorf("UUID version = %d, want 4", id.Version())
		}
		if seen[tok] {
			t.Fatalf("NewRefreshToken() returned duplicate %q", tok)
		}
		seen[tok] = true
	}
}
