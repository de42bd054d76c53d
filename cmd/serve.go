package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	accountsgrpc "github.com/vibast-solutions/ms-go-accounts/app/grpc"
	"github.com/vibast-solutions/ms-go-accounts/app/media"
	"github.com/vibast-solutions/ms-go-accounts/app/metrics"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the account service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, dialect, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := repository.Migrate(ctx, db, dialect, repository.MigrateUp); err != nil {
			logrus.WithError(err).Fatal("Failed to run migrations")
		}
	}

	store, err := media.NewStore(ctx, cfg.Media)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize media store")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics, err := metrics.New(registry)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to register metrics")
	}

	var cleanupTasks service.Tasks
	userRepo := repository.NewUserRepository(db, dialect)
	userAuthService := service.NewUserAuthService(
		userRepo,
		store,
		service.NewPasswordHasher(cfg.Password),
		service.NewTokenIssuer(cfg.JWT),
		service.WithEventRecorder(appMetrics),
		service.WithAsyncRunner(cleanupTasks.Go),
	)

	e := newHTTPServer(cfg, userAuthService, controller.NewHealthController(db), appMetrics, registry, store)
	grpcServer, healthServer := accountsgrpc.NewServer(userAuthService)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(accountsgrpc.AccountServiceName, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startHTTPServer(cfg, e)
	})
	g.Go(func() error {
		return startGRPCServer(cfg, grpcServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down servers")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		httpErr := e.Shutdown(shutdownCtx)

		// Handlers have returned, so no new cleanup can start.
		if err := cleanupTasks.Wait(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Media cleanup did not finish before shutdown")
		}
		return httpErr
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("Server stopped with error")
	}
	logrus.Info("Servers stopped")
}

func newHTTPServer(
	cfg *config.Config,
	userAuthService service.UserAuthService,
	healthController *controller.HealthController,
	appMetrics *metrics.Metrics,
	gatherer prometheus.Gatherer,
	store media.Store,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = controller.HTTPErrorHandler(cfg.IsProduction())

	// Only the path is logged; GET login carries credentials in the query.
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURIPath:   true,
		LogHost:      true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"path":       v.URIPath,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(appMetrics.Middleware())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSOrigins,
		AllowCredentials: !containsWildcard(cfg.HTTP.CORSOrigins),
	}))
	e.Use(echomiddleware.BodyLimitWithConfig(echomiddleware.BodyLimitConfig{
		Skipper: isMultipart,
		Limit:   cfg.HTTP.BodyLimit,
	}))
	e.Use(echomiddleware.BodyLimitWithConfig(echomiddleware.BodyLimitConfig{
		Skipper: func(c echo.Context) bool { return !isMultipart(c) },
		Limit:   fmt.Sprintf("%dB", cfg.HTTP.MaxUploadSize),
	}))

	userAuthController := controller.NewUserAuthController(userAuthService, cfg.IsProduction())
	authMiddleware := middleware.NewAuthMiddleware(userAuthService)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if fsStore, ok := store.(*media.FilesystemStore); ok {
		e.Static("/media", fsStore.Dir())
	}

	api := e.Group("/api/v1")
	api.GET("/healthcheck", healthController.Check)
	api.GET("/healthcheck/test", healthController.Check)

	users := api.Group("/users")
	users.POST("/register", userAuthController.Register)
	users.GET("/login", userAuthController.Login)
	users.POST("/login", userAuthController.Login)
	users.POST("/refresh-token", userAuthController.RefreshToken)

	usersProtected := users.Group("")
	usersProtected.Use(authMiddleware.RequireAuth)
	usersProtected.POST("/logout", userAuthController.Logout)
	usersProtected.GET("/current-user", userAuthController.CurrentUser)
	usersProtected.POST("/change-password", userAuthController.ChangePassword)
	usersProtected.PATCH("/update-account", userAuthController.UpdateAccount)

	return e
}

func startHTTPServer(cfg *config.Config, e *echo.Echo) error {
	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func startGRPCServer(cfg *config.Config, grpcServer *grpc.Server) error {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// containsWildcard reports whether origins allows any origin; credentials
// cannot be combined with a wildcard.
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
