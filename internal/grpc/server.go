package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/proxy"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	pkglog "github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
)

// Executor runs proxied commands.
type Executor interface {
	Execute(ctx context.Context, args []string) (*proxy.Reply, error)
}

type idServer struct {
	svc  service.IdentifierService
	exec Executor
}

func (s *idServer) Generate(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	kind, err := generator.ParseKind(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	id, err := s.svc.Generate(ctx, kind)
	if err != nil {
		return nil, toStatus(fmt.Errorf("failed to generate ID: %w", err))
	}
	return wrapperspb.String(id), nil
}

func (s *idServer) Exec(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	args := make([]string, len(req.GetValues()))
	for i, v := range req.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "argument %d must be a string", i)
		}
		args[i] = sv.StringValue
	}

	reply, err := s.exec.Execute(ctx, args)
	if err != nil {
		return nil, toStatus(err)
	}
	return toListValue(reply.Values()), nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, dispatch.ErrUsage), errors.Is(err, generator.ErrUnknownKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, dispatch.ErrUnknownCommand):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, generator.ErrClockRegression):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toListValue(items []any) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(items))}
	for i, item := range items {
		list.Values[i] = toValue(item)
	}
	return list
}

// toValue converts a dispatcher reply. Integers are sent as decimal
// strings since protobuf numbers are doubles and snowflakes exceed 2^53.
func toValue(v any) *structpb.Value {
	switch val := v.(type) {
	case nil:
		return structpb.NewNullValue()
	case int64:
		return structpb.NewStringValue(strconv.FormatInt(val, 10))
	case int:
		return structpb.NewStringValue(strconv.Itoa(val))
	case string:
		return structpb.NewStringValue(val)
	case bool:
		return structpb.NewBoolValue(val)
	case []any:
		return structpb.NewListValue(toListValue(val))
	case error:
		return structpb.NewStringValue(val.Error())
	default:
		return structpb.NewStringValue(fmt.Sprint(val))
	}
}

// NewServer builds a gRPC server with IDService registered.
func NewServer(svc service.IdentifierService, exec Executor, logger zerolog.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(pkglog.UnaryServerInterceptor(logger)),
	)
	RegisterIDServiceServer(s, &idServer{
		svc:  svc,
		exec: exec,
	})
	return s
}

// StartGRPCServer creates and starts the gRPC server in a background goroutine.
func StartGRPCServer(addr string, svc service.IdentifierService, exec Executor, logger zerolog.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewServer(svc, exec, logger)

	go func() {
		logger.Info().Str("addr", addr).Msg("grpc server listening")
		if err := s.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
		}
	}()

	return s, nil
}
