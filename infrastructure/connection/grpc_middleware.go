package connection

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"labspace/infrastructure"
)

// UnaryInterceptors returns the interceptor chain for the gRPC server:
// panic recovery outermost, then access logging.
func UnaryInterceptors(log *zap.Logger) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(recoverInterceptor(log), loggingInterceptor(log))
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		err = Status(err)
		log.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

func recoverInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("panic in grpc handler", zap.Any("panic", p), zap.String("method", info.FullMethod))
				err = status.Error(codes.Internal, infrastructure.ErrInternalServer.Error())
			}
		}()
		return handler(ctx, req)
	}
}

// Status converts a domain error into a gRPC status. Errors that already
// carry a status pass through unchanged.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch infrastructure.KindOf(err) {
	case infrastructure.ErrValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case infrastructure.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case infrastructure.ErrConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case infrastructure.ErrPermission:
		return status.Error(codes.PermissionDenied, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, infrastructure.ErrInternalServer.Error())
}
