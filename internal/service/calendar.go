package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/calendar"
)

// listWindowMonths bounds ListEvents to this many months either side of now.
const listWindowMonths = 3

// AccessTokenSource yields a usable Google access token for a user.
// *ExternalAuthService implements it.
type AccessTokenSource interface {
	GetAccessToken(ctx context.Context, userID int64) (string, bool, error)
}

// CalendarService proxies the user's primary Google calendar using the
// stored Google token.
type CalendarService struct {
	tokens AccessTokenSource
	client *calendar.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewCalendarService(tokens AccessTokenSource, client *calendar.Client, logger *slog.Logger) *CalendarService {
	return &CalendarService{tokens: tokens, client: client, logger: logger, now: time.Now}
}

func (s *CalendarService) ListEvents(ctx context.Context, userID int64) ([]calendar.Event, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	events, err := s.client.ListEvents(ctx, token,
		now.AddDate(0, -listWindowMonths, 0), now.AddDate(0, listWindowMonths, 0))
	if err != nil {
		return nil, s.upstream("listing calendar events", userID, err)
	}
	return events, nil
}

func (s *CalendarService) CreateEvent(ctx context.Context, userID int64, data map[string]any) (*calendar.Event, error) {
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("body", "event body is required")
	}
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	ev, err := s.client.CreateEvent(ctx, token, data)
	if err != nil {
		return nil, s.upstream("creating calendar event", userID, err)
	}
	return ev, nil
}

func (s *CalendarService) UpdateEvent(ctx context.Context, userID int64, eventID string, data map[string]any) (*calendar.Event, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, apperror.ValidationFailed("id", "event id is required")
	}
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	ev, err := s.client.UpdateEvent(ctx, token, eventID, data)
	if err != nil {
		return nil, s.upstream("updating calendar event", userID, err)
	}
	return ev, nil
}

func (s *CalendarService) DeleteEvent(ctx context.Context, userID int64, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return apperror.ValidationFailed("id", "event id is required")
	}
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteEvent(ctx, token, eventID); err != nil {
		return s.upstream("deleting calendar event", userID, err)
	}
	return nil
}

func (s *CalendarService) accessToken(ctx context.Context, userID int64) (string, error) {
	token, ok, err := s.tokens.GetAccessToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: "Google account not connected for user " + strconv.FormatInt(userID, 10),
		}
	}
	return token, nil
}

// upstream turns a Calendar client failure into an AppError. A 404 from
// Google means the event id is unknown to this user's calendar, which is
// the caller's problem and not an outage. The response body stays in the
// log.
func (s *CalendarService) upstream(action string, userID int64, err error) error {
	if calendar.IsNotFound(err) {
		s.logger.Warn(action, slog.Int64("userID", userID), slog.String("error", err.Error()))
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: "calendar event not found"}
	}

	s.logger.Error(action, slog.Int64("userID", userID), slog.String("error", err.Error()))
	var apiErr *calendar.APIError
	if errors.As(err, &apiErr) {
		return apperror.Upstream(fmt.Sprintf("%s failed: Google Calendar returned status %d", action, apiErr.Status))
	}
	return apperror.Upstream(action + " failed: Google Calendar could not be reached")
}
