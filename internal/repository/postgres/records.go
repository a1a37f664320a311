package postgres

import (
	"time"

	"github.com/sakif/jiaa-auth/internal/model"
)

type userRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"size:320;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Name         string `gorm:"not null;default:''"`
	Role         string `gorm:"size:16;not null;default:USER"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func (r *userRecord) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Role:         model.Role(r.Role),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type refreshTokenRecord struct {
	ID        string    `gorm:"primaryKey;size:20"`
	Token     string    `gorm:"size:64;not null;uniqueIndex"`
	UserID    int64     `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (refreshTokenRecord) TableName() string { return "refresh_tokens" }

func (r *refreshTokenRecord) toModel() *model.RefreshToken {
	return &model.RefreshToken{
		ID:        r.ID,
		Token:     r.Token,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
}

type externalTokenRecord struct {
	ID           string `gorm:"primaryKey;size:20"`
	UserID       int64  `gorm:"not null;uniqueIndex"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string `gorm:"not null;default:''"`
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (externalTokenRecord) TableName() string { return "external_tokens" }

func (r *externalTokenRecord) toModel() *model.ExternalToken {
	return &model.ExternalToken{
		ID:           r.ID,
		UserID:       r.UserID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type quizResultRecord struct {
	ID         string    `gorm:"primaryKey;size:20"`
	UserID     int64     `gorm:"not null;index:idx_quiz_results_user_created,priority:1"`
	Topic      string    `gorm:"not null"`
	Score      int       `gorm:"not null"`
	MaxScore   int       `gorm:"not null"`
	Percentage float64   `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index:idx_quiz_results_user_created,priority:2"`
}

func (quizResultRecord) TableName() string { return "quiz_results" }

func (r *quizResultRecord) toModel() *model.QuizResult {
	return &model.QuizResult{
		ID:         r.ID,
		UserID:     r.UserID,
		Topic:      r.Topic,
		Score:      r.Score,
		MaxScore:   r.MaxScore,
		Percentage: r.Percentage,
		CreatedAt:  r.CreatedAt,
	}
}
