package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/jiaa-auth/internal/service"
)

// AuthHandler serves the email/password session endpoints.
//
//   - HandleSignup         → POST /auth/signup
//   - HandleSignin         → POST /auth/signin
//   - HandleRefresh        → POST /auth/refresh
//   - HandleLogout         → POST /auth/logout
//   - HandleMe             → GET  /auth/me        (authenticated)
//   - HandleUpdatePassword → PUT  /auth/password  (authenticated)
type AuthHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions *service.SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// HandleSignup creates an account and answers 201 with its public view.
// No tokens are issued; the client signs in afterwards.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.sessions.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user.Public())
}

// HandleSignin answers with a token pair.
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	pair, err := h.sessions.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh rotates a refresh token.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes the presented refresh token. It always answers 200,
// including for unknown tokens and unreadable bodies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil {
		if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
			h.logger.Error("logout failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// HandleMe returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.CurrentUser(user))
}

// HandleUpdatePassword sets a new password for the authenticated user.
// Accounts created through Google sign-in use it to enable password login.
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.sessions.UpdatePassword(r.Context(), user, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}
