package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
	"github.com/sakif/jiaa-auth/internal/repository"
)

// unknownTopic is stored when a submission names no topic.
const unknownTopic = "Unknown"

// quizDateLayout is the format of the optional ?date= filter.
const quizDateLayout = "2006-01-02"

// QuizSubmission is a score reported by the client. Topic and MaxScore
// are optional; Score is required.
type QuizSubmission struct {
	Topic    *string `json:"topic"`
	Score    *int    `json:"score"`
	MaxScore *int    `json:"maxScore"`
}

// QuizService records quiz scores and reads them back per day.
//
// DAY BOUNDARIES:
// A "day" is midnight to midnight in the service's location (UTC unless
// changed), the same location used to pick "today" when no date is given.
type QuizService struct {
	results repository.QuizResultRepository
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location
}

func NewQuizService(results repository.QuizResultRepository, logger *slog.Logger) *QuizService {
	return &QuizService{results: results, logger: logger, now: time.Now, loc: time.UTC}
}

// Submit stores one result for userID.
//
// A missing or blank topic is stored as "Unknown". A missing maxScore
// falls back to the score itself, so such a result reads as 100%.
func (s *QuizService) Submit(ctx context.Context, userID int64, in QuizSubmission) (*model.QuizResult, error) {
	if in.Score == nil {
		return nil, apperror.ValidationFailed("score", "score is required")
	}
	score := *in.Score
	if score < 0 {
		return nil, apperror.ValidationFailed("score", "score must not be negative")
	}

	maxScore := score
	if in.MaxScore != nil {
		maxScore = *in.MaxScore
	}
	if maxScore < 0 {
		return nil, apperror.ValidationFailed("maxScore", "maxScore must not be negative")
	}

	topic := unknownTopic
	if in.Topic != nil && strings.TrimSpace(*in.Topic) != "" {
		topic = strings.TrimSpace(*in.Topic)
	}

	result := &model.QuizResult{
		UserID:     userID,
		Topic:      topic,
		Score:      score,
		MaxScore:   maxScore,
		Percentage: model.QuizPercentage(score, maxScore),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.results.CreateQuizResult(ctx, result); err != nil {
		return nil, fmt.Errorf("service/quiz: saving result: %w", err)
	}

	s.logger.Info("quiz result saved",
		slog.Int64("userID", userID),
		slog.String("topic", result.Topic),
		slog.Int("score", result.Score),
		slog.Int("maxScore", result.MaxScore),
	)
	return result, nil
}

// Daily returns userID's results for the given day, newest first. date is
// YYYY-MM-DD; empty means today.
func (s *QuizService) Daily(ctx context.Context, userID int64, date string) ([]*model.QuizResult, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	} else {
		parsed, err := time.ParseInLocation(quizDateLayout, strings.TrimSpace(date), s.loc)
		if err != nil {
			return nil, apperror.ValidationFailed("date", "date must be in YYYY-MM-DD format")
		}
		day = parsed
	}

	results, err := s.results.ListQuizResults(ctx, userID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("service/quiz: listing results: %w", err)
	}
	return results, nil
}
