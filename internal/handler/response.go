package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the wire shape
// of success and error bodies lives in this file only.
//
// ERROR FORMAT:
//   {"error": "invalid_token", "message": "invalid refresh token"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/auth"
	"github.com/sakif/jiaa-auth/internal/model"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable kind, e.g. "invalid_token"
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends data as JSON with the given status. Headers must be set
// before WriteHeader; anything after it is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKind is one row of the kind → HTTP mapping.
type errorKind struct {
	sentinel error
	status   int
	name     string
}

// errorKinds is checked in order; the first sentinel found in the chain wins.
var errorKinds = []errorKind{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperror.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{apperror.ErrExpiredToken, http.StatusUnauthorized, "expired_token"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrTokenExchange, http.StatusBadRequest, "token_exchange_failed"},
	{apperror.ErrConfiguration, http.StatusInternalServerError, "configuration_error"},
	{apperror.ErrUserInfo, http.StatusInternalServerError, "user_info_failed"},
	{apperror.ErrInvalidProviderResponse, http.StatusInternalServerError, "invalid_provider_response"},
	{apperror.ErrRefreshFailed, http.StatusInternalServerError, "refresh_failed"},
	{apperror.ErrProviderUnavailable, http.StatusInternalServerError, "provider_unavailable"},
	{apperror.ErrUpstream, http.StatusBadGateway, "upstream_error"},
}

// writeError maps an error from the service layer to a status code and
// sends it. This is the only place error kinds become HTTP.
//
// Errors that carry no *apperror.AppError are internal: they are logged
// and answered with a generic 500 that does not leak the cause.
//
// WHY LOG DETAIL HERE?
// Upstream bodies and transport errors are useful to an operator and
// useless (or worse, revealing) to a client. AppError.Detail carries them
// this far; the response only ever gets Message. Provider failures are
// logged even when they map to a 4xx, because a burst of rejected codes
// usually means a misconfigured redirect URI rather than bad users.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, k := range errorKinds {
			if errors.Is(err, k.sentinel) {
				logAppError(logger, k, appErr, err)
				writeJSON(w, k.status, ErrorResponse{Error: k.name, Message: appErr.Message})
				return
			}
		}
	}

	logger.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func logAppError(logger *slog.Logger, k errorKind, appErr *apperror.AppError, err error) {
	attrs := []any{slog.String("kind", k.name), slog.String("error", err.Error())}
	if appErr.Detail != "" {
		attrs = append(attrs, slog.String("detail", appErr.Detail))
	}
	switch {
	case k.status >= http.StatusInternalServerError:
		logger.Error("request failed", attrs...)
	case apperror.IsProvider(err):
		logger.Warn("provider rejected request", attrs...)
	}
}

// decodeJSON reads a JSON request body into dst. A malformed body is a
// validation error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid request body")
	}
	return nil
}

// requireUser returns the authenticated user, or writes a 401 and reports
// false. Routes behind auth.RequireAuth never see the 401 branch.
func requireUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperror.Unauthorized("authentication required"))
		return nil, false
	}
	return user, true
}
