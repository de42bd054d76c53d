package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var errInvalidBody = apperr.Validation("invalid request body")

// HTTPErrorHandler renders errors that reach echo, including routing errors
// and errors returned by middleware.
func HTTPErrorHandler(production bool) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var resp httpdto.ErrorResponse
		var he *echo.HTTPError
		if errors.As(err, &he) {
			resp = httpErrorResponse(he)
		} else {
			resp = httpdto.NewErrorResponse(err, !production)
			if resp.StatusCode == http.StatusInternalServerError {
				logrus.WithError(err).WithField("path", ctx.Request().URL.Path).Error("Unhandled error")
			}
		}

		var writeErr error
		if ctx.Request().Method == http.MethodHead {
			writeErr = ctx.NoContent(resp.StatusCode)
		} else {
			writeErr = ctx.JSON(resp.StatusCode, resp)
		}
		if writeErr != nil {
			logrus.WithError(writeErr).Debug("Failed to write error response")
		}
	}
}

func httpErrorResponse(he *echo.HTTPError) httpdto.ErrorResponse {
	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok {
		message = m
	}
	return httpdto.ErrorResponse{StatusCode: he.Code, Error: message}
}

// respondBindError keeps the status of transport errors raised while reading
// the body, such as 413 from the body limit, and reports anything else as an
// invalid body.
func respondBindError(ctx echo.Context, err error, production bool) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusBadRequest {
		resp := httpErrorResponse(he)
		return ctx.JSON(resp.StatusCode, resp)
	}
	return respondError(ctx, apperr.Wrap(errInvalidBody, err), production)
}

func respondError(ctx echo.Context, err error, production bool) error {
	resp := httpdto.NewErrorResponse(err, !production)
	return ctx.JSON(resp.StatusCode, resp)
}

// logFailure logs err at a level matching its kind: internal faults are
// errors, everything else is a rejected request.
func logFailure(err error, fields logrus.Fields, operation string) {
	entry := logrus.WithFields(fields)
	if apperr.KindOf(err) == apperr.KindInternal {
		entry.WithError(err).Error(operation + " failed")
		return
	}
	entry.WithField("reason", apperr.From(err).Message).Warn(operation + " rejected")
}

type cookieWriter struct {
	secure bool
}

func (w cookieWriter) set(ctx echo.Context, name, value string, ttl time.Duration) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w cookieWriter) clear(ctx echo.Context, name string) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w cookieWriter) setSession(ctx echo.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	w.set(ctx, types.AccessTokenCookie, accessToken, accessTTL)
	w.set(ctx, types.RefreshTokenCookie, refreshToken, refreshTTL)
}

func (w cookieWriter) clearSession(ctx echo.Context) {
	w.clear(ctx, types.AccessTokenCookie)
	w.clear(ctx, types.RefreshTokenCookie)
}
