package types

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/media"

	"github.com/labstack/echo/v4"
)

const (
	AvatarField     = "avatar"
	CoverImageField = "coverImage"

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

var (
	ErrMissingFields        = apperr.Validation("all fields are required")
	ErrEmailRequired        = apperr.Validation("email is required")
	ErrPasswordRequired     = apperr.Validation("password is required")
	ErrPasswordsRequired    = apperr.Validation("old_password and new_password are required")
	ErrRefreshTokenRequired = apperr.Validation("refresh token is required")
	ErrNothingToUpdate      = apperr.Validation("fullname or email is required")
)

// RegisterRequest is a multipart registration form. Files are kept as slices
// so that the caller can reject duplicated file fields.
type RegisterRequest struct {
	FullName    string
	Email       string
	Username    string
	Password    string
	Avatars     []media.File
	CoverImages []media.File
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	// The multipart body is parsed first so that a read failure, such as an
	// exceeded body limit, surfaces here instead of being dropped by FormValue.
	form, err := ctx.MultipartForm()
	if err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
		return &RegisterRequest{
			FullName: ctx.FormValue("fullname"),
			Email:    ctx.FormValue("email"),
			Username: ctx.FormValue("username"),
			Password: ctx.FormValue("password"),
		}, nil
	}

	req := &RegisterRequest{
		FullName: firstValue(form.Value, "fullname"),
		Email:    firstValue(form.Value, "email"),
		Username: firstValue(form.Value, "username"),
		Password: firstValue(form.Value, "password"),
	}
	for _, fh := range form.File[AvatarField] {
		req.Avatars = append(req.Avatars, media.FromFileHeader(fh))
	}
	for _, fh := range form.File[CoverImageField] {
		req.CoverImages = append(req.CoverImages, media.FromFileHeader(fh))
	}

	return req, nil
}

func firstValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Validate checks that every text field carries a non-blank value.
func (r *RegisterRequest) Validate() error {
	for _, field := range []string{r.FullName, r.Email, r.Username, r.Password} {
		if strings.TrimSpace(field) == "" {
			return ErrMissingFields
		}
	}
	return nil
}

type LoginRequest struct {
	Username string
	Email    string
	Password string
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body httpdto.LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &LoginRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	}, nil
}

// Validate requires an email even when a username is supplied.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrEmailRequired
	}
	if r.Password == "" {
		return ErrPasswordRequired
	}
	return nil
}

type RefreshTokenRequest struct {
	RefreshToken string
}

// NewRefreshTokenRequestFromContext prefers the refreshToken cookie over the body.
func NewRefreshTokenRequestFromContext(ctx echo.Context) (*RefreshTokenRequest, error) {
	if cookie, err := ctx.Cookie(RefreshTokenCookie); err == nil && cookie.Value != "" {
		return &RefreshTokenRequest{RefreshToken: cookie.Value}, nil
	}

	var body httpdto.RefreshTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	token := body.RefreshToken
	if token == "" {
		token = body.RefreshTokenSnake
	}
	return &RefreshTokenRequest{RefreshToken: token}, nil
}

func (r *RefreshTokenRequest) Validate() error {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return ErrRefreshTokenRequired
	}
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string
	NewPassword string
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	var body httpdto.ChangePasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &ChangePasswordRequest{OldPassword: body.OldPassword, NewPassword: body.NewPassword}, nil
}

func (r *ChangePasswordRequest) Validate() error {
	if r.OldPassword == "" || strings.TrimSpace(r.NewPassword) == "" {
		return ErrPasswordsRequired
	}
	return nil
}

type UpdateAccountRequest struct {
	FullName string
	Email    string
}

func NewUpdateAccountRequestFromContext(ctx echo.Context) (*UpdateAccountRequest, error) {
	var body httpdto.UpdateAccountRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &UpdateAccountRequest{FullName: body.FullName, Email: body.Email}, nil
}

func (r *UpdateAccountRequest) Validate() error {
	if strings.TrimSpace(r.FullName) == "" && strings.TrimSpace(r.Email) == "" {
		return ErrNothingToUpdate
	}
	return nil
}

// UserResponse is a user record without its password hash or refresh token.
type UserResponse struct {
	ID         uint64    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewUserResponse(user *entity.User) *UserResponse {
	if user == nil {
		return nil
	}

	return &UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.Avatar,
		CoverImage: user.CoverImage,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

type LoginResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
