package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

const (
	insertUserQuery            = `(?s)INSERT INTO users \(username, email, full_name, avatar, avatar_public_id, cover_image, cover_image_public_id,\s+password_hash, refresh_token, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?, \?, \?\)`
	insertUserPostgresQuery    = `(?s)INSERT INTO users .*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\)\s+RETURNING id`
	findByIDQuery              = `(?s)SELECT id, username, email, full_name, .*\s+FROM users WHERE id = \?`
	findByUsernameOrEmailQuery = `(?s)SELECT id, username, email, full_name, .*\s+FROM users WHERE username = \? OR email = \?\s+ORDER BY id LIMIT 1`
	findByEmailPostgresQuery   = `(?s)SELECT id, .*\s+FROM users WHERE email = \$1`
	updateUserQuery            = `(?s)UPDATE users SET\s+username = \?,\s+email = \?,\s+full_name = \?,\s+avatar = \?,\s+avatar_public_id = \?,\s+cover_image = \?,\s+cover_image_public_id = \?,\s+password_hash = \?,\s+updated_at = \?\s+WHERE id = \?`
	updatePasswordQuery        = `(?s)UPDATE users SET password_hash = \?, refresh_token = NULL, updated_at = \? WHERE id = \?`
	setRefreshTokenQuery       = `(?s)UPDATE users SET refresh_token = \?, updated_at = \? WHERE id = \?$`
	rotateRefreshTokenQuery    = `(?s)UPDATE users SET refresh_token = \?, updated_at = \? WHERE id = \? AND refresh_token = \?`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"full_name",
	"avatar",
	"avatar_public_id",
	"cover_image",
	"cover_image_public_id",
	"password_hash",
	"refresh_token",
	"created_at",
	"updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func newUser(now time.Time) *entity.User {
	return &entity.User{
		Username:       "jane",
		Email:          "jane@example.com",
		FullName:       "Jane Doe",
		Avatar:         "http://media/avatars/a.png",
		AvatarPublicID: "avatars/a.png",
		PasswordHash:   "hash",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func userRow(now time.Time) []driver.Value {
	return []driver.Value{
		uint64(1),
		"jane",
		"jane@example.com",
		"Jane Doe",
		"http://media/avatars/a.png",
		"avatars/a.png",
		"",
		"",
		"hash",
		"refresh",
		now,
		now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)
	now := time.Now()
	user := newUser(now)

	mock.ExpectExec(insertUserQuery).
		WithArgs(
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
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected ID 7, got %d", user.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreatePostgresReturningID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectPostgres)
	user := newUser(time.Now())

	mock.ExpectQuery(insertUserPostgresQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uint64(42)))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID != 42 {
		t.Fatalf("expected ID 42, got %d", user.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectExec(insertUserQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'jane' for key 'users_username_unique'"})

	err := repo.Create(context.Background(), newUser(time.Now()))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_CreateOtherErrorIsNotDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectExec(insertUserQuery).WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), newUser(time.Now()))
	if err == nil || errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestUserRepository_FindByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)
	now := time.Now()

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRow(now)...))

	user, err := repo.FindByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user == nil || user.ID != 1 || user.Username != "jane" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.HasRefreshToken("refresh") {
		t.Fatalf("expected refresh token to be loaded, got %+v", user.RefreshToken)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_FindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
}

func TestUserRepository_FindByUsernameOrEmail(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)
	now := time.Now()

	mock.ExpectQuery(findByUsernameOrEmailQuery).
		WithArgs("jane", "jane@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRow(now)...))

	user, err := repo.FindByUsernameOrEmail(context.Background(), "jane", "jane@example.com")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user == nil || user.Email != "jane@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_FindByEmailPostgresPlaceholders(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectPostgres)

	mock.ExpectQuery(findByEmailPostgresQuery).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRow(time.Now())...))

	if _, err := repo.FindByEmail(context.Background(), "jane@example.com"); err != nil {
		t.Fatalf("find failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_Update(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)
	user := newUser(time.Now())
	user.ID = 1

	mock.ExpectExec(updateUserQuery).
		WithArgs(
			user.Username,
			user.Email,
			user.FullName,
			user.Avatar,
			user.AvatarPublicID,
			user.CoverImage,
			user.CoverImagePublicID,
			user.PasswordHash,
			sqlmock.AnyArg(),
			user.ID,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePasswordClearsRefreshToken(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectExec(updatePasswordQuery).
		WithArgs("new-hash", sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updatePasswordQuery).
		WithArgs("newer-hash", sqlmock.AnyArg(), uint64(1)).
		WillReturnError(errors.New("connection reset"))

	if err := repo.UpdatePassword(context.Background(), 1, "new-hash"); err != nil {
		t.Fatalf("update password failed: %v", err)
	}
	if err := repo.UpdatePassword(context.Background(), 1, "newer-hash"); err == nil {
		t.Fatalf("expected error to be returned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_SetRefreshToken(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectExec(setRefreshTokenQuery).
		WithArgs(sql.NullString{}, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetRefreshToken(context.Background(), 1, sql.NullString{}); err != nil {
		t.Fatalf("set refresh token failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_RotateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db, repository.DialectMySQL)

	mock.ExpectExec(rotateRefreshTokenQuery).
		WithArgs("new", sqlmock.AnyArg(), uint64(1), "old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateRefreshTokenQuery).
		WithArgs("newer", sqlmock.AnyArg(), uint64(1), "old").
		WillReturnResult(sqlmock.NewResult(0, 0))

	swapped, err := repo.RotateRefreshToken(context.Background(), 1, "old", "new")
	if err != nil || !swapped {
		t.Fatalf("expected first rotation to succeed, got swapped=%v err=%v", swapped, err)
	}

	swapped, err = repo.RotateRefreshToken(context.Background(), 1, "old", "newer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swapped {
		t.Fatalf("expected stale rotation to be rejected")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDialect_Rebind(t *testing.T) {
	query := "UPDATE users SET a = ?, b = ? WHERE id = ?"

	if got := repository.DialectMySQL.Rebind(query); got != query {
		t.Fatalf("mysql rebind changed query: %s", got)
	}
	if got := repository.DialectPostgres.Rebind(query); got != "UPDATE users SET a = $1, b = $2 WHERE id = $3" {
		t.Fatalf("unexpected postgres rebind: %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	for _, name := range []string{"mysql", "Postgres", " sqlite "} {
		if _, err := repository.ParseDialect(name); err != nil {
			t.Fatalf("expected %q to parse, got %v", name, err)
		}
	}
	if _, err := repository.ParseDialect("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
