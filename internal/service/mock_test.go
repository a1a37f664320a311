package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/jiaa-auth/internal/apperror"
	"github.com/sakif/jiaa-auth/internal/auth"
	"github.com/sakif/jiaa-auth/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// memStore implements the user, refresh token, external token and quiz
// result repositories in memory. It copies values in and out so tests cannot
// mutate stored state through returned pointers.

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*model.User
	refresh  map[string]*model.RefreshToken
	external map[int64]*model.ExternalToken
	quiz     []*model.QuizResult

	// failNextCreate makes the next CreateUser return a conflict after
	// storing the user, simulating a concurrent insert that won.
	failNextCreate bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*model.User),
		refresh:  make(map[string]*model.RefreshToken),
		external: make(map[int64]*model.ExternalToken),
	}
}

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperror.Conflict("user", user.Email)
		}
	}
	m.nextID++
	now := time.Now().UTC()
	stored := *user
	stored.ID = m.nextID
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.users[stored.ID] = &stored

	if m.failNextCreate {
		m.failNextCreate = false
		return apperror.Conflict("user", user.Email)
	}
	*user = stored
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	out := *u
	return &out, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *memStore) UpdateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}
	stored := *user
	stored.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = &stored
	return nil
}

func (m *memStore) CreateRefreshToken(_ context.Context, token *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[token.Token]; ok {
		return apperror.Conflict("refresh token", token.Token)
	}
	stored := *token
	m.refresh[token.Token] = &stored
	return nil
}

func (m *memStore) GetRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.refresh[token]
	if !ok {
		return nil, apperror.NotFound("refresh token", "")
	}
	out := *rt
	return &out, nil
}

func (m *memStore) DeleteRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, token)
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldToken string, next *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[oldToken]; !ok {
		return apperror.NotFound("refresh token", "")
	}
	delete(m.refresh, oldToken)
	stored := *next
	m.refresh[next.Token] = &stored
	return nil
}

func (m *memStore) GetExternalToken(_ context.Context, userID int64) (*model.ExternalToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	et, ok := m.external[userID]
	if !ok {
		return nil, apperror.NotFound("external token", strconv.FormatInt(userID, 10))
	}
	out := *et
	return &out, nil
}

func (m *memStore) UpsertExternalToken(_ context.Context, token *model.ExternalToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *token
	m.external[token.UserID] = &stored
	return nil
}

func (m *memStore) CreateQuizResult(_ context.Context, result *model.QuizResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result.ID == "" {
		result.ID = "quiz-" + strconv.Itoa(len(m.quiz)+1)
	}
	stored := *result
	m.quiz = append(m.quiz, &stored)
	return nil
}

func (m *memStore) ListQuizResults(_ context.Context, userID int64, from, to time.Time) ([]*model.QuizResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.QuizResult{}
	for _, r := range m.quiz {
		if r.UserID == userID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refresh)
}

// =========================================================================
// HELPERS
// =========================================================================

const testSecret = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock shared by services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessionService(t *testing.T) (*SessionService, *memStore, *fakeClock) {
	t.Helper()
	store := newMemStore()
	clock := newFakeClock()

	tokens, err := auth.NewTokenService(testSecret, 15*time.Minute, auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	svc := NewSessionService(store, store, tokens,
		auth.NewPasswordServiceForTest(bcrypt.MinCost),
		7*24*time.Hour, nil, discardLogger())
	svc.now = clock.Now
	return svc, store, clock
}
