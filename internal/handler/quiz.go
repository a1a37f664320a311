package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/jiaa-auth/internal/service"
)

// QuizHandler records and lists the caller's quiz scores.
type QuizHandler struct {
	quiz   *service.QuizService
	logger *slog.Logger
}

func NewQuizHandler(quiz *service.QuizService, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{quiz: quiz, logger: logger}
}

type quizSubmitResponse struct {
	Success bool `json:"success"`
}

type quizResultResponse struct {
	Topic      string  `json:"topic"`
	Score      int     `json:"score"`
	MaxScore   int     `json:"maxScore"`
	Percentage float64 `json:"percentage"`
	CreatedAt  string  `json:"createdAt"`
}

type quizDailyResponse struct {
	Success bool                 `json:"success"`
	Data    []quizResultResponse `json:"data"`
}

// HandleSubmit → POST /api/quiz/submit
//
// Body: {"topic": "...", "score": 3, "maxScore": 4}. Unknown fields such
// as the legacy "wrong" list are ignored.
func (h *QuizHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var req service.QuizSubmission
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.quiz.Submit(r.Context(), user.ID, req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quizSubmitResponse{Success: true})
}

// HandleDaily → GET /api/quiz/daily?date=YYYY-MM-DD
func (h *QuizHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	results, err := h.quiz.Daily(r.Context(), user.ID, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := make([]quizResultResponse, 0, len(results))
	for _, res := range results {
		data = append(data, quizResultResponse{
			Topic:      res.Topic,
			Score:      res.Score,
			MaxScore:   res.MaxScore,
			Percentage: res.Percentage,
			CreatedAt:  res.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, quizDailyResponse{Success: true, Data: data})
}
