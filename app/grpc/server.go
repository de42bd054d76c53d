package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AccountServiceName = "accounts.v1.AccountService"

	ValidateTokenMethod = "/" + AccountServiceName + "/ValidateToken"
	CurrentUserMethod   = "/" + AccountServiceName + "/CurrentUser"
)

// AccountServiceServer is the account API exposed to other services. Messages
// are well-known protobuf types so that no generated code is needed.
type AccountServiceServer interface {
	ValidateToken(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
	CurrentUser(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
}

var AccountServiceDesc = gogrpc.ServiceDesc{
	ServiceName: AccountServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "ValidateToken", Handler: validateTokenHandler},
		{MethodName: "CurrentUser", Handler: currentUserHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "accounts/v1/account.proto",
}

func validateTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).ValidateToken(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: ValidateTokenMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).ValidateToken(ctx, req.(*wrapperspb.StringValue))
	})
}

func currentUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).CurrentUser(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: CurrentUserMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).CurrentUser(ctx, req.(*emptypb.Empty))
	})
}

type AccountServer struct {
	userAuthService service.UserAuthService
}

func NewAccountServer(userAuthService service.UserAuthService) *AccountServer {
	return &AccountServer{userAuthService: userAuthService}
}

// NewServer builds a gRPC server carrying the account service and the
// standard health service. Health starts as NOT_SERVING; the caller flips it
// once its dependencies are reachable.
func NewServer(userAuthService service.UserAuthService) (*gogrpc.Server, *health.Server) {
	srv := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(
			LoggingUnaryInterceptor(),
			AuthUnaryInterceptor(userAuthService, CurrentUserMethod),
		),
	)

	srv.RegisterService(&AccountServiceDesc, NewAccountServer(userAuthService))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(AccountServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, healthServer)

	return srv, healthServer
}

// ValidateToken never fails on a bad token; it answers valid=false instead.
func (s *AccountServer) ValidateToken(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	claims, err := s.userAuthService.ValidateAccessToken(req.GetValue())
	if err != nil {
		logrus.Debug("Validate token failed (grpc)")
		return structpb.NewStruct(map[string]any{"valid": false})
	}

	logrus.WithField("user_id", claims.UserID).Debug("Validate token succeeded (grpc)")
	return structpb.NewStruct(map[string]any{
		"valid":    true,
		"user_id":  float64(claims.UserID),
		"email":    claims.Email,
		"username": claims.Username,
		"fullname": claims.FullName,
	})
}

func (s *AccountServer) CurrentUser(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, statusFromError(service.ErrUnauthorized)
	}
	return userStruct(user)
}

func userStruct(user *types.UserResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":         float64(user.ID),
		"username":   user.Username,
		"email":      user.Email,
		"fullname":   user.FullName,
		"avatar":     user.Avatar,
		"coverImage": user.CoverImage,
		"createdAt":  user.CreatedAt.UTC().Format(timeLayout),
		"updatedAt":  user.UpdatedAt.UTC().Format(timeLayout),
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type AccountServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewAccountServiceClient(cc gogrpc.ClientConnInterface) *AccountServiceClient {
	return &AccountServiceClient{cc: cc}
}

func (c *AccountServiceClient) ValidateToken(ctx context.Context, token string, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateTokenMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccountServiceClient) CurrentUser(ctx context.Context, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CurrentUserMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
