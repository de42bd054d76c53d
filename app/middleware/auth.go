package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// maxTokenBodySize bounds how much of a JSON body is buffered while looking
// for an accessToken field.
const maxTokenBodySize = 64 << 10

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*types.UserResponse, error)
}

type AuthMiddleware struct {
	authService authenticator
}

func NewAuthMiddleware(authService authenticator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth resolves the caller from an access token and stores the
// sanitized user under "user" and its id under "user_id".
//
// The token is looked up in the accessToken cookie, then in an accessToken
// body field, then in a Bearer Authorization header.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := accessTokenFrom(c)
		if token == "" {
			logrus.Debug("Missing access token")
			return unauthorized(c, service.ErrUnauthorized)
		}

		user, err := m.authService.Authenticate(c.Request().Context(), token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				logrus.WithError(err).Error("Failed to authenticate request")
				resp := httpdto.NewErrorResponse(err, false)
				return c.JSON(resp.StatusCode, resp)
			}
			logrus.WithError(err).Debug("Invalid or expired access token")
			return unauthorized(c, err)
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)

		return next(c)
	}
}

func unauthorized(c echo.Context, err error) error {
	resp := httpdto.NewErrorResponse(err, false)
	return c.JSON(resp.StatusCode, resp)
}

func accessTokenFrom(c echo.Context) string {
	if cookie, err := c.Cookie(types.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token := accessTokenFromBody(c); token != "" {
		return token
	}

	parts := strings.Fields(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// accessTokenFromBody reads the accessToken field without consuming the body
// for the handler.
func accessTokenFromBody(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return ""
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		body, err := io.ReadAll(io.LimitReader(req.Body, maxTokenBodySize))
		if err != nil {
			return ""
		}
		req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), req.Body))

		var payload httpdto.AccessTokenRequest
		if err = json.Unmarshal(body, &payload); err != nil {
			return ""
		}
		return payload.AccessToken
	case strings.HasPrefix(contentType, echo.MIMEApplicationForm),
		strings.HasPrefix(contentType, echo.MIMEMultipartForm):
		return c.FormValue("accessToken")
	}
	return ""
}
