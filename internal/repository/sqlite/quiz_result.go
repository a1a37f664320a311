package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jiaa-auth/internal/model"
)

// CreateQuizResult stores a submitted quiz score.
func (db *DB) CreateQuizResult(ctx context.Context, result *model.QuizResult) error {
	if result.ID == "" {
		result.ID = xid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO quiz_results (id, user_id, topic, score, max_score, percentage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.UserID,
		result.Topic,
		result.Score,
		result.MaxScore,
		result.Percentage,
		result.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting quiz result for user %d: %w", result.UserID, err)
	}
	return nil
}

// ListQuizResults returns userID's results created in [from, to), newest
// first.
func (db *DB) ListQuizResults(ctx context.Context, userID int64, from, to time.Time) ([]*model.QuizResult, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, topic, score, max_score, percentage, created_at
		 FROM quiz_results
		 WHERE user_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at DESC`,
		userID,
		from.UTC(),
		to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing quiz results for user %d: %w", userID, err)
	}
	defer rows.Close()

	results := []*model.QuizResult{}
	for rows.Next() {
		var r model.QuizResult
		if err := rows.Scan(
			&r.ID,
			&r.UserID,
			&r.Topic,
			&r.Score,
			&r.MaxScore,
			&r.Percentage,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning quiz result: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating quiz results: %w", err)
	}
	return results, nil
}
