package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates the "authorization" metadata value with authn and stores
// the [Caller] in the handler context.
//
// Missing metadata and authentication failures return Unauthenticated.
// Internal failures return their mapped code with a generic message.
func UnaryServerInterceptor(authn Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := callerFromGRPC(ctx, authn)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(authn Authenticator) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := callerFromGRPC(ss.Context(), authn)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func callerFromGRPC(ctx context.Context, authn Authenticator) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(HeaderAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	bearer := ExtractBearerToken(values[0])
	if bearer == "" {
		return ctx, status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	caller, err := authn.Authenticate(ctx, bearer)
	if err != nil {
		return ctx, toStatus(ctx, err)
	}
	return ContextWithCaller(ctx, caller), nil
}

// toStatus maps err to a gRPC status without leaking internal detail.
func toStatus(ctx context.Context, err error) error {
	e := sserr.FromError(err)
	code := e.GRPCCode()
	if code == codes.Unauthenticated {
		return status.Error(code, sserr.FailedToAuthenticate(nil).Message)
	}
	slog.ErrorContext(ctx, "auth: caller resolution failed",
		"error", err,
		"code", e.Code.String(),
	)
	return status.Error(code, "internal error")
}

// wrappedServerStream overrides Context so stream handlers see the caller.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context containing the caller.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
