package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/service"
)

// ExternalAuthHandler serves the Google sign-in endpoints.
type ExternalAuthHandler struct {
	external *service.ExternalAuthService
	logger   *slog.Logger
}

func NewExternalAuthHandler(external *service.ExternalAuthService, logger *slog.Logger) *ExternalAuthHandler {
	return &ExternalAuthHandler{external: external, logger: logger}
}

type externalLoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	Email        string `json:"email"`
}

// HandleURL returns the Google consent URL for the client to open.
//
// HTTP: GET /auth/external/url
func (h *ExternalAuthHandler) HandleURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.external.AuthorizationURL()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleCallback completes Google sign-in with the authorization code.
//
// HTTP: GET /auth/external/callback?code=...
func (h *ExternalAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	result, err := h.external.CompleteLogin(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, externalLoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
		Email:        result.User.Email,
	})
}

// HandleToken returns a usable Google access token for the caller,
// refreshing it first when it has expired.
//
// HTTP: GET /auth/external/token
func (h *ExternalAuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	token, ok, err := h.external.GetAccessToken(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: "No Google token found for user. Please complete the Google sign-in first.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}
