package log

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// UnaryServerInterceptor returns a gRPC unary server interceptor that puts a
// request-scoped logger into the context and logs each completed call.
// Caller mistakes log at warn, server-side failures at error.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		reqID := requestIDFromMD(ctx)
		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldGRPCMethod, info.FullMethod).
			Str(FieldCommand, path.Base(info.FullMethod)).
			Logger()

		ctx = WithLogger(ctx, child)
		_ = grpc.SetHeader(ctx, metadata.Pairs(metadataKeyRequestID, reqID))

		resp, err := handler(ctx, req)

		code := status.Code(err)
		child.WithLevel(levelForCode(code)).
			Str(FieldGRPCCode, code.String()).
			Float64(FieldLatency, float64(time.Since(start).Microseconds())/1000).
			Err(err).
			Msg("unary call completed")

		return resp, err
	}
}

func levelForCode(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK:
		return zerolog.InfoLevel
	case codes.InvalidArgument, codes.NotFound, codes.Unauthenticated, codes.PermissionDenied:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func requestIDFromMD(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}
