package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/platform/logging"
)

// CorrelationHeader carries the request correlation ID in metadata.
const CorrelationHeader = "x-correlation-id"

// publicMethod reports whether a method may be called without a token.
func publicMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/") ||
		strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the bearer token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, the handler sees the caller through auth.FromContext.
func AuthInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if publicMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		principal, err := verifier.Verify(authHeaders[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		ctx = auth.WithPrincipal(ctx, principal)
		ctx = logging.WithUserID(ctx, principal.UserID.String())
		return handler(ctx, req)
	}
}

// LoggingInterceptor tags each call with a correlation ID and logs its outcome.
func LoggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(CorrelationHeader); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = logging.NewCorrelationID()
		}
		ctx = logging.WithCorrelationID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(CorrelationHeader, id))

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		entry := logger.WithFields(logrus.Fields{
			"correlation_id": id,
			"method":         info.FullMethod,
			"duration_ms":    time.Since(start).Milliseconds(),
			"code":           code.String(),
		})
		switch code {
		case codes.OK:
			entry.Info("grpc request")
		case codes.Internal, codes.Unavailable, codes.Unknown:
			entry.WithError(err).Error("grpc request failed")
		default:
			entry.WithError(err).Warn("grpc request rejected")
		}
		return resp, err
	}
}

// mapError converts a use case error into a gRPC status.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	appErr := apperrors.As(err)
	return status.Error(appErr.GRPCCode(), appErr.Message)
}
