package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type userKey struct{}

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*types.UserResponse, error)
}

// AuthUnaryInterceptor authenticates calls to the protected methods with the
// bearer token in the authorization metadata. Other methods pass through.
func AuthUnaryInterceptor(auth authenticator, protected ...string) gogrpc.UnaryServerInterceptor {
	guarded := make(map[string]struct{}, len(protected))
	for _, method := range protected {
		guarded[method] = struct{}{}
	}

	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if _, ok := guarded[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		token := bearerFromMetadata(ctx)
		if token == "" {
			logrus.WithField("method", info.FullMethod).Debug("Missing bearer token (grpc)")
			return nil, statusFromError(service.ErrUnauthorized)
		}

		user, err := auth.Authenticate(ctx, token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				logrus.WithError(err).WithField("method", info.FullMethod).Error("Failed to authenticate call (grpc)")
			}
			return nil, statusFromError(err)
		}

		return handler(context.WithValue(ctx, userKey{}, user), req)
	}
}

func UserFromContext(ctx context.Context) (*types.UserResponse, bool) {
	user, ok := ctx.Value(userKey{}).(*types.UserResponse)
	return user, ok && user != nil
}

func LoggingUnaryInterceptor() gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logrus.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
		}).Debug("gRPC call handled")
		return resp, err
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}

	parts := strings.Fields(values[0])
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func statusFromError(err error) error {
	appErr := apperr.From(err)
	return status.Error(appErr.Kind.GRPCCode(), appErr.Message)
}
