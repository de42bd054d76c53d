package controller

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type UserAuthController struct {
	userAuthService service.UserAuthService
	cookies         cookieWriter
	production      bool
}

// NewUserAuthController builds the account handlers. In production cookies
// are marked Secure and error details are withheld.
func NewUserAuthController(userAuthService service.UserAuthService, production bool) *UserAuthController {
	return &UserAuthController{
		userAuthService: userAuthService,
		cookies:         cookieWriter{secure: production},
		production:      production,
	}
}

func (c *UserAuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return respondBindError(ctx, err, c.production)
	}

	fields := logrus.Fields{"username": req.Username, "email": req.Email}
	logrus.WithFields(fields).Info("Register request received")

	user, err := c.userAuthService.Register(ctx.Request().Context(), req)
	if err != nil {
		logFailure(err, fields, "Register")
		return respondError(ctx, err, c.production)
	}

	return ctx.JSON(http.StatusCreated, httpdto.NewAPIResponse(http.StatusCreated, user, "User registered successfully"))
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return respondBindError(ctx, err, c.production)
	}

	fields := logrus.Fields{"username": req.Username, "email": req.Email}
	logrus.WithFields(fields).Info("Login request received")

	result, err := c.userAuthService.Login(ctx.Request().Context(), req)
	if err != nil {
		logFailure(err, fields, "Login")
		return respondError(ctx, err, c.production)
	}

	tokens := result.Tokens
	c.cookies.setSession(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.AccessTokenTTL, tokens.RefreshTokenTTL)

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, &types.LoginResponse{
		User:         types.NewUserResponse(result.User),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "User logged in successfully"))
}

func (c *UserAuthController) RefreshToken(ctx echo.Context) error {
	req, err := types.NewRefreshTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh token request")
		return respondBindError(ctx, err, c.production)
	}

	tokens, err := c.userAuthService.RefreshToken(ctx.Request().Context(), req)
	if err != nil {
		logFailure(err, logrus.Fields{}, "Refresh token")
		return respondError(ctx, err, c.production)
	}

	c.cookies.setSession(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.AccessTokenTTL, tokens.RefreshTokenTTL)

	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, &types.TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Access token refreshed"))
}

func (c *UserAuthController) Logout(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		logrus.Warn("Logout failed: missing user_id in context")
		return respondError(ctx, service.ErrUnauthorized, c.production)
	}

	logrus.WithField("user_id", userID).Info("Logout request received")
	if err := c.userAuthService.Logout(ctx.Request().Context(), userID); err != nil {
		logFailure(err, logrus.Fields{"user_id": userID}, "Logout")
		return respondError(ctx, err, c.production)
	}

	c.cookies.clearSession(ctx)

	logrus.WithField("user_id", userID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, map[string]any{}, "User logged out"))
}

func (c *UserAuthController) CurrentUser(ctx echo.Context) error {
	user, ok := ctx.Get("user").(*types.UserResponse)
	if !ok || user == nil {
		return respondError(ctx, service.ErrUnauthorized, c.production)
	}

	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, user, "Current user fetched successfully"))
}

func (c *UserAuthController) ChangePassword(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		return respondError(ctx, service.ErrUnauthorized, c.production)
	}

	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return respondBindError(ctx, err, c.production)
	}

	if err = c.userAuthService.ChangePassword(ctx.Request().Context(), userID, req); err != nil {
		logFailure(err, logrus.Fields{"user_id": userID}, "Change password")
		return respondError(ctx, err, c.production)
	}

	c.cookies.clearSession(ctx)

	logrus.WithField("user_id", userID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, map[string]any{}, "Password changed successfully"))
}

func (c *UserAuthController) UpdateAccount(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		return respondError(ctx, service.ErrUnauthorized, c.production)
	}

	req, err := types.NewUpdateAccountRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind update account request")
		return respondBindError(ctx, err, c.production)
	}

	user, err := c.userAuthService.UpdateAccount(ctx.Request().Context(), userID, req)
	if err != nil {
		logFailure(err, logrus.Fields{"user_id": userID}, "Update account")
		return respondError(ctx, err, c.production)
	}

	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, user, "Account details updated successfully"))
}
