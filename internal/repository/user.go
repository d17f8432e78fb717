package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

// UserDB stores accounts.
type UserDB interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// MemoryUserRepo is an in-memory UserDB. Emails and usernames are unique,
// compared case-insensitively.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string // lower(email) -> userID
	byName  map[string]string // lower(username) -> userID
}

// NewMemoryUserRepo creates an empty user repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]model.User),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

func (r *MemoryUserRepo) CreateUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	name := strings.ToLower(user.Username)
	if _, ok := r.byEmail[email]; ok {
		return fmt.Errorf("create user %s: %w", email, auctionerrors.ErrDuplicateUser)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("create user %s: %w", name, auctionerrors.ErrDuplicateUser)
	}

	r.byID[user.UserID] = user
	r.byEmail[email] = user.UserID
	r.byName[name] = user.UserID
	return nil
}

func (r *MemoryUserRepo) GetUserByID(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	return u, nil
}

func (r *MemoryUserRepo) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return model.User{}, fmt.Errorf("get user by email: %w", auctionerrors.ErrUserNotFound)
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return fmt.Errorf("update password of %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	u.PasswordHash = passwordHash
	r.byID[userID] = u
	return nil
}
