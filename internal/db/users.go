package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidtube/internal/models"
)

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_digest, refresh_token, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type CreateUserParams struct {
	Username       string
	Email          string
	FullName       string
	AvatarURL      string
	CoverImageURL  string
	PasswordDigest string
}

func (r *UserRepository) Create(ctx context.Context, params CreateUserParams) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_digest, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, params.Username, params.Email, params.FullName, params.AvatarURL, params.CoverImageURL, params.PasswordDigest, now,
	)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:             id,
		Username:       params.Username,
		Email:          params.Email,
		FullName:       params.FullName,
		AvatarURL:      params.AvatarURL,
		CoverImageURL:  params.CoverImageURL,
		PasswordDigest: params.PasswordDigest,
		CreatedAt:      now,
	}, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetByUsernameOrEmail resolves an account by either identifier. Callers pass
// normalized (lowercase, trimmed) values; an empty identifier never matches
// because both columns are NOT NULL and non-empty.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE (username = ? AND ? != '') OR (email = ? AND ? != '')`,
		username, username, email, email))
}

// SetRefreshToken unconditionally replaces the stored refresh token. This is
// the login rotation point: any previously issued refresh token stops
// matching and is thereby revoked.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return checkRowsAffected(result)
}

// RotateRefreshToken replaces the stored refresh token only if it still
// equals current. The conditional update is the serialization point for
// concurrent refresh calls: of two racers presenting the same token, exactly
// one update matches a row and the loser gets ErrNotFound.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id, current, next string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?`,
		next, time.Now().UTC(), id, current,
	)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	return checkRowsAffected(result)
}

// ClearRefreshToken unsets the stored refresh token. Idempotent: clearing an
// already-cleared token is not an error.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordDigest string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_digest = ?, updated_at = ? WHERE id = ?`,
		passwordDigest, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateDetails(ctx context.Context, id, fullName, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, email = ?, updated_at = ? WHERE id = ?`,
		fullName, email, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating avatar: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET cover_image_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating cover image: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	var refreshToken sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.AvatarURL, &u.CoverImageURL,
		&u.PasswordDigest, &refreshToken, &u.CreatedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.RefreshToken = nullStringToPtr(refreshToken)
	u.UpdatedAt = nullTimeToPtr(updatedAt)

	return &u, nil
}
