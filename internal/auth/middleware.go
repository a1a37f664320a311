package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE?
// context.WithValue keys are compared by type and value. With a plain
// string any package could read or overwrite "identity"; with a private
// type only this package can.
type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated principal attached to a request.
type Identity struct {
	User        *model.User
	Authorities []string
}

// UserLookup resolves a token subject to a current user record.
// repository.UserRepository satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// Authenticate is the global authentication gate.
//
// For every request it reads "Authorization: Bearer <token>", verifies the
// token, loads the user it names and attaches an Identity to the context.
// It NEVER rejects a request: a missing header, a bad token or an unknown
// user all continue anonymously. Routes that need a user are wrapped in
// RequireAuth, which is where 401s come from.
//
// The reason a token was ignored (expired, malformed, bad signature,
// deleted user) is logged and not surfaced to the client.
//
// WHY FAIL OPEN?
// Public routes (signup, signin, refresh, the Google callback) must keep
// working when a client sends a stale token along with them, which most
// clients do by default. Rejecting here would lock a user out of the very
// refresh call that fixes an expired token. Keeping the decision in
// RequireAuth also means each route states its own requirement.
func Authenticate(tokens *TokenService, users UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if id := resolveIdentity(r.Context(), raw, tokens, users, logger); id != nil {
				r = r.WithContext(context.WithValue(r.Context(), identityKey, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveIdentity(ctx context.Context, raw string, tokens *TokenService, users UserLookup, logger *slog.Logger) *Identity {
	claims, err := tokens.VerifyAccessToken(raw)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrAccessTokenExpired) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "ignoring access token", slog.String("reason", err.Error()))
		return nil
	}

	userID, _ := claims.UserID()
	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			logger.Warn("access token names unknown user", slog.Int64("userID", userID))
		} else {
			logger.Error("loading user for access token",
				slog.Int64("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	return &Identity{
		User:        user,
		Authorities: []string{user.Role.Authority()},
	}
}

// bearerToken extracts the token from an Authorization header of the form
// "Bearer <token>". The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects anonymous requests with 401. It must run after
// Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the identity attached by Authenticate.
// ok is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil && id.User != nil
}

// UserFromContext is a shortcut for IdentityFromContext(ctx).User.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return id.User, true
}

// WithIdentity returns a copy of ctx carrying id. Used by tests and by
// callers that authenticate outside the HTTP gate.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// HasAuthority reports whether the identity holds the given authority.
func (i *Identity) HasAuthority(authority string) bool {
	for _, a := range i.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
