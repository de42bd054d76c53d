package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type AccessClaims struct {
	UserID   uint64 `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID uint64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access and refresh tokens. The two kinds use
// distinct secrets so that neither can be forged from the other.
type TokenIssuer struct {
	accessSecret    []byte
	accessTokenTTL  time.Duration
	refreshSecret   []byte
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:    []byte(cfg.AccessSecret),
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshSecret:   []byte(cfg.RefreshSecret),
		refreshTokenTTL: cfg.RefreshTokenTTL,
		now:             time.Now,
	}
}

func (i *TokenIssuer) AccessTokenTTL() time.Duration {
	return i.accessTokenTTL
}

func (i *TokenIssuer) RefreshTokenTTL() time.Duration {
	return i.refreshTokenTTL
}

func (i *TokenIssuer) IssueAccess(user *entity.User) (string, error) {
	claims := &AccessClaims{
		UserID:           user.ID,
		Email:            user.Email,
		Username:         user.Username,
		FullName:         user.FullName,
		RegisteredClaims: i.registeredClaims(user.ID, i.accessTokenTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

func (i *TokenIssuer) IssueRefresh(userID uint64) (string, error) {
	claims := &RefreshClaims{
		UserID:           userID,
		RegisteredClaims: i.registeredClaims(userID, i.refreshTokenTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

func (i *TokenIssuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.verify(tokenString, i.accessSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *TokenIssuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.verify(tokenString, i.refreshSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *TokenIssuer) registeredClaims(userID uint64, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (i *TokenIssuer) verify(tokenString string, secret []byte, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.Wrap(ErrTokenExpired, err)
		}
		return apperr.Wrap(ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
