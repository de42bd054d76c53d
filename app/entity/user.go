package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID                 uint64
	Username           string
	Email              string
	FullName           string
	Avatar             string
	AvatarPublicID     string
	CoverImage         string
	CoverImagePublicID string
	PasswordHash       string
	RefreshToken       sql.NullString
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasRefreshToken reports whether token is the user's current live refresh token.
func (u *User) HasRefreshToken(token string) bool {
	return u.RefreshToken.Valid && u.RefreshToken.String != "" && u.RefreshToken.String == token
}
