package controller

import (
	"context"
	"net/http"
	"time"

	httpdto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db pinger
}

func NewHealthController(db pinger) *HealthController {
	return &HealthController{db: db}
}

// Check reports liveness, and readiness of the database when one is attached.
func (c *HealthController) Check(ctx echo.Context) error {
	if c.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()

		if err := c.db.PingContext(pingCtx); err != nil {
			logrus.WithError(err).Warn("Health check failed: database unreachable")
			return ctx.JSON(http.StatusServiceUnavailable, httpdto.ErrorResponse{
				StatusCode: http.StatusServiceUnavailable,
				Error:      "database unavailable",
			})
		}
	}

	return ctx.JSON(http.StatusOK, httpdto.NewAPIResponse(http.StatusOK, "OK", "Health check passed"))
}
