package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/model"
)

func newRefreshToken(userID int64, token string, ttl time.Duration) *model.RefreshToken {
	return &model.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(ttl).Truncate(time.Second),
	}
}

func TestCreateAndGetRefreshToken(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ada@example.com")
	ctx := context.Background()

	rt := newRefreshToken(user.ID, "tok-1", time.Hour)
	if err := db.CreateRefreshToken(ctx, rt); err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}
	if rt.ID == "" {
		t.Error("CreateRefreshToken() should assign an ID")
	}

	got, err := db.GetRefreshToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("UserID = %d, want %d", got.UserID, user.ID)
	}
	if !got.ExpiresAt.Equal(rt.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, rt.ExpiresAt)
	}

	if _, err := db.GetRefreshToken(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetRefreshToken(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCreateRefreshToken_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateRefreshToken(context.Background(), newRefreshToken(404, "tok", time.Hour)); err == nil {
		t.Fatal("CreateRefreshToken() should fail the foreign key for an unknown user")
	}
}

func TestDeleteRefreshToken_Idempotent(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ada@example.com")
	ctx := context.Background()

	if err := db.CreateRefreshToken(ctx, newRefreshToken(user.ID, "tok", time.Hour)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := db.DeleteRefreshToken(ctx, "tok"); err != nil {
			t.Fatalf("DeleteRefreshToken() call %d error = %v", i+1, err)
		}
	}
	if _, err := db.GetRefreshToken(ctx, "tok"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("token still present after delete, err = %v", err)
	}
}

func TestRotateRefreshToken(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ada@example.com")
	ctx := context.Background()

	if err := db.CreateRefreshToken(ctx, newRefreshToken(user.ID, "old", time.Hour)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := db.RotateRefreshToken(ctx, "old", newRefreshToken(user.ID, "new", time.Hour)); err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}

	if _, err := db.GetRefreshToken(ctx, "old"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("old token should be gone, err = %v", err)
	}
	if _, err := db.GetRefreshToken(ctx, "new"); err != nil {
		t.Errorf("new token should exist, err = %v", err)
	}

	// Rotating the old token again must fail and write nothing.
	err := db.RotateRefreshToken(ctx, "old", newRefreshToken(user.ID, "newer", time.Hour))
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second rotation error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetRefreshToken(ctx, "newer"); !errors.Is(err, apperror.ErrNotFound) {
		t.Error("failed rotation must not insert its replacement")
	}
}

func TestRotateRefreshToken_InsertFailureRollsBack(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ada@example.com")
	ctx := context.Background()

	_ = db.CreateRefreshToken(ctx, newRefreshToken(user.ID, "old", time.Hour))
	_ = db.CreateRefreshToken(ctx, newRefreshToken(user.ID, "taken", time.Hour))

	// The replacement collides with an existing token string.
	if err := db.RotateRefreshToken(ctx, "old", newRefreshToken(user.ID, "taken", time.Hour)); err == nil {
		t.Fatal("RotateRefreshToken() should fail on a duplicate replacement")
	}
	if _, err := db.GetRefreshToken(ctx, "old"); err != nil {
		t.Errorf("old token should survive a rolled-back rotation, err = %v", err)
	}
}

func TestRotateRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "ada@example.com")
	ctx := context.Background()

	if err := db.CreateRefreshToken(ctx, newRefreshToken(user.ID, "contested", time.Hour)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := newRefreshToken(user.ID, "next-"+string(rune('a'+i)), time.Hour)
			errs[i] = db.RotateRefreshToken(ctx, "contested", next)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperror.ErrNotFound):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("successful rotations = %d, want exactly 1", wins)
	}
}
