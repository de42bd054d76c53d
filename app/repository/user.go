package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

const userColumns = `id, username, email, full_name, avatar, avatar_public_id, cover_image, cover_image_public_id,
		       password_hash, refresh_token, created_at, updated_at`

type UserRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewUserRepository(db *sql.DB, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.AvatarPublicID,
		&user.CoverImage,
		&user.CoverImagePublicID,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts user and sets its ID. A taken username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (username, email, full_name, avatar, avatar_public_id, cover_image, cover_image_public_id,
		                   password_hash, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	args := []any{
		user.Username,
		user.Email,
		user.FullName,
		user.Avatar,
		user.AvatarPublicID,
		user.CoverImage,
		user.CoverImagePublicID,
		user.PasswordHash,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	}

	if r.dialect == DialectPostgres {
		var id uint64
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return r.writeError("insert user", err)
		}
		user.ID = id
		return nil
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.writeError("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ?
	`
	return scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE email = ?
	`
	return scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), email))
}

// FindByUsernameOrEmail returns the oldest user matching either value.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE username = ? OR email = ?
		ORDER BY id LIMIT 1
	`
	return scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), username, email))
}

// Update writes the profile fields and password hash. The refresh token is
// only changed through SetRefreshToken and RotateRefreshToken.
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	query := `
		UPDATE users SET
			username = ?,
			email = ?,
			full_name = ?,
			avatar = ?,
			avatar_public_id = ?,
			cover_image = ?,
			cover_image_public_id = ?,
			password_hash = ?,
			updated_at = ?
		WHERE id = ?
	`
	user.UpdatedAt = r.now()
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		user.Username,
		user.Email,
		user.FullName,
		user.Avatar,
		user.AvatarPublicID,
		user.CoverImage,
		user.CoverImagePublicID,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return r.writeError("update user", err)
	}
	return nil
}

// UpdatePassword stores a new password hash and clears the refresh token in
// one statement, so a password change never leaves the old session alive.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, refresh_token = NULL, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), passwordHash, r.now(), userID); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetRefreshToken overwrites the stored refresh token; an invalid token clears it.
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error {
	query := `UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), token, r.now(), userID)
	return err
}

// RotateRefreshToken replaces current with next only if current is still the
// stored token. It reports whether the swap happened.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID uint64, current, next string) (bool, error) {
	query := `UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?`
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), next, r.now(), userID, current)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *UserRepository) writeError(op string, err error) error {
	if r.dialect.isDuplicate(err) {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrDuplicate, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
