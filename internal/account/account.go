// Package account manages user accounts and their login sessions.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/auth"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// SignupInput is a new account request. ConfirmPassword must equal Password;
// nothing else about the password is checked.
type SignupInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	Location        string
}

// Service implements signup, login, logout and password changes.
type Service struct {
	users  repository.UserDB
	tokens *auth.TokenService
	cost   int
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates an account service.
func NewService(users repository.UserDB, tokens *auth.TokenService, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an account. It does not log the user in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("account: username, email and password are required: %w", auctionerrors.ErrInvalidUserDetails)
	}
	if in.Password != in.ConfirmPassword {
		return model.User{}, fmt.Errorf("account: %w", auctionerrors.ErrPasswordsDoNotMatch)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("account: hash password: %w", err)
	}

	user := model.User{
		UserID:       utils.GenerateID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Location:     in.Location,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("account: %w", err)
	}

	utils.Info("account created", map[string]any{"user_id": user.UserID, "username": user.Username})
	return user, nil
}

// Login checks email and password and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, auth.TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, auctionerrors.ErrUserNotFound) {
			return model.User{}, auth.TokenPair{}, fmt.Errorf("account: %w", auctionerrors.ErrInvalidCredentials)
		}
		return model.User{}, auth.TokenPair{}, fmt.Errorf("account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, auth.TokenPair{}, fmt.Errorf("account: %w", auctionerrors.ErrInvalidCredentials)
	}

	pair, err := s.tokens.Issue(ctx, user.UserID)
	if err != nil {
		return model.User{}, auth.TokenPair{}, fmt.Errorf("account: %w", err)
	}

	utils.Info("user logged in", map[string]any{"user_id": user.UserID})
	return user, pair, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the session family.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.tokens.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("account: %w", err)
	}
	return nil
}

// ChangePassword replaces the password of userID after checking the current
// one. The caller's session stays valid.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	if next == "" {
		return fmt.Errorf("account: new password is required: %w", auctionerrors.ErrInvalidUserDetails)
	}
	if next != confirm {
		return fmt.Errorf("account: %w", auctionerrors.ErrPasswordsDoNotMatch)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("account: %w", auctionerrors.ErrWrongPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("account: %w", err)
	}

	utils.Info("password changed", map[string]any{"user_id": userID})
	return nil
}

// Me returns the account behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("account: %w", err)
	}
	return user, nil
}
