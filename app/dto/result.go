package dto

import (
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

// TokenPair is a freshly issued session. The TTLs drive cookie lifetimes.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type LoginResult struct {
	User   *entity.User
	Tokens TokenPair
}
