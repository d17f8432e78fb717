package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

const uniqueViolation = "23505"

// UserRepository implements repository.UserDB on PostgreSQL.
type UserRepository struct {
	pool DBTX
}

var _ repository.UserDB = (*UserRepository)(nil)

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a new user. Email and username are stored lower-cased.
func (r *UserRepository) CreateUser(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, full_name, location, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.UserID, strings.ToLower(u.Username), strings.ToLower(u.Email), u.PasswordHash, u.FullName, u.Location, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert user: %w", auctionerrors.ErrDuplicateUser)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, userID)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getUser(ctx, `WHERE email = $1`, strings.ToLower(email))
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", auctionerrors.ErrUserNotFound)
	}
	return nil
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, full_name, location, created_at FROM users `+where, arg,
	).Scan(&u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Location, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("get user: %w", auctionerrors.ErrUserNotFound)
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
