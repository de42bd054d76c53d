package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	"github.com/vibast-solutions/ms-go-accounts/app/types"
)

var (
	ErrMissingFields        = types.ErrMissingFields
	ErrEmailRequired        = types.ErrEmailRequired
	ErrPasswordRequired     = types.ErrPasswordRequired
	ErrPasswordsRequired    = types.ErrPasswordsRequired
	ErrAvatarRequired       = apperr.Validation("avatar file is missing")
	ErrTooManyFiles         = apperr.Validation("only one avatar and one cover image may be uploaded")
	ErrNotAnImage           = apperr.Validation("uploaded file is not a supported image")
	ErrRefreshTokenRequired = types.ErrRefreshTokenRequired
	ErrNothingToUpdate      = types.ErrNothingToUpdate
	ErrUserExists           = apperr.Conflict("user with email or username already exists")
	ErrEmailTaken           = apperr.Conflict("email is already in use")
	ErrUserNotFound         = apperr.NotFound("user does not exist")
	ErrInvalidCredentials   = apperr.Unauthenticated("invalid user credentials")
	ErrPasswordMismatch     = apperr.Unauthenticated("old password is incorrect")
	ErrInvalidToken         = apperr.Unauthenticated("invalid token")
	ErrTokenExpired         = apperr.Unauthenticated("token has expired")
	ErrStaleRefreshToken    = apperr.Unauthenticated("refresh token is expired or used")
	ErrUnauthorized         = apperr.Unauthenticated("unauthorized request")
	ErrRegistrationReadBack = apperr.Internal(errors.New("registered user could not be read back"))
)
