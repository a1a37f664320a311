package model

import "time"

// QuizResult is one submitted quiz score.
//
// Percentage is derived from Score and MaxScore when the result is built
// and stored alongside them, so later reads never recompute it.
type QuizResult struct {
	ID         string    `json:"id"         db:"id"` // xid
	UserID     int64     `json:"userId"     db:"user_id"`
	Topic      string    `json:"topic"      db:"topic"`
	Score      int       `json:"score"      db:"score"`
	MaxScore   int       `json:"maxScore"   db:"max_score"`
	Percentage float64   `json:"percentage" db:"percentage"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}

// QuizPercentage returns score as a percentage of maxScore, or 0 when
// maxScore is not positive.
func QuizPercentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return float64(score) / float64(maxScore) * 100
}
