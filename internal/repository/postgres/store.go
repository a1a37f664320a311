package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	rec := userRecord{
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Name:         user.Name,
		Role:         string(user.Role),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	*user = *rec.toModel()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}
	return rec.toModel(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", email, err)
	}
	return rec.toModel(), nil
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", user.ID).Updates(map[string]any{
		"name":          user.Name,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"updated_at":    now,
	})
	if res.Error != nil {
		return fmt.Errorf("postgres: updating user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}
	user.UpdatedAt = now
	return nil
}

// ---- refresh tokens ----

func errRefreshTokenNotFound() error {
	return &apperror.AppError{Err: apperror.ErrNotFound, Message: "refresh token not found"}
}

func (s *Store) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return createRefreshToken(s.db.WithContext(ctx), token)
}

func createRefreshToken(tx *gorm.DB, token *model.RefreshToken) error {
	if token.ID == "" {
		token.ID = xid.New().String()
	}
	rec := refreshTokenRecord{
		ID:        token.ID,
		Token:     token.Token,
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt,
	}
	if err := tx.Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("refresh token", token.ID)
		}
		return fmt.Errorf("postgres: inserting refresh token for user %d: %w", token.UserID, err)
	}
	token.CreatedAt = rec.CreatedAt
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rec refreshTokenRecord
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error; err != nil {
		if isNotFound(err) {
			return nil, errRefreshTokenNotFound()
		}
		return nil, fmt.Errorf("postgres: getting refresh token: %w", err)
	}
	return rec.toModel(), nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&refreshTokenRecord{}).Error; err != nil {
		return fmt.Errorf("postgres: deleting refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken deletes oldToken and inserts next in one transaction.
// Zero deleted rows means another request got there first.
func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, next *model.RefreshToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("token = ?", oldToken).Delete(&refreshTokenRecord{})
		if res.Error != nil {
			return fmt.Errorf("postgres: deleting rotated refresh token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errRefreshTokenNotFound()
		}
		return createRefreshToken(tx, next)
	})
}

// ---- external tokens ----

func (s *Store) GetExternalToken(ctx context.Context, userID int64) (*model.ExternalToken, error) {
	var rec externalTokenRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("external token for user", strconv.FormatInt(userID, 10))
		}
		return nil, fmt.Errorf("postgres: getting external token for user %d: %w", userID, err)
	}
	return rec.toModel(), nil
}

func (s *Store) UpsertExternalToken(ctx context.Context, token *model.ExternalToken) error {
	var expiresAt *time.Time
	if token.ExpiresAt != nil {
		t := token.ExpiresAt.UTC()
		expiresAt = &t
	}
	rec := externalTokenRecord{
		ID:           xid.New().String(),
		UserID:       token.UserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("postgres: upserting external token for user %d: %w", token.UserID, err)
	}

	stored, err := s.GetExternalToken(ctx, token.UserID)
	if err != nil {
		return err
	}
	*token = *stored
	return nil
}

// ---- quiz results ----

func (s *Store) CreateQuizResult(ctx context.Context, result *model.QuizResult) error {
	if result.ID == "" {
		result.ID = xid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	rec := quizResultRecord{
		ID:         result.ID,
		UserID:     result.UserID,
		Topic:      result.Topic,
		Score:      result.Score,
		MaxScore:   result.MaxScore,
		Percentage: result.Percentage,
		CreatedAt:  result.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("postgres: inserting quiz result for user %d: %w", result.UserID, err)
	}
	return nil
}

func (s *Store) ListQuizResults(ctx context.Context, userID int64, from, to time.Time) ([]*model.QuizResult, error) {
	var recs []quizResultRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from.UTC(), to.UTC()).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing quiz results for user %d: %w", userID, err)
	}

	results := make([]*model.QuizResult, 0, len(recs))
	for i := range recs {
		results = append(results, recs[i].toModel())
	}
	return results, nil
}
