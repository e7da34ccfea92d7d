package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"labspace/infrastructure"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{infrastructure.ValidationError("bad"), codes.InvalidArgument},
		{infrastructure.NotFoundError("missing"), codes.NotFound},
		{infrastructure.ConflictError("already a member"), codes.AlreadyExists},
		{infrastructure.PermissionError("no"), codes.PermissionDenied},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
		{status.Error(codes.Unavailable, "later"), codes.Unavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(Status(tc.err)), tc.err.Error())
	}
	assert.NoError(t, Status(nil))

	st, _ := status.FromError(Status(errors.New("disk on fire")))
	assert.Equal(t, infrastructure.ErrInternalServer.Error(), st.Message())
}

func TestRecoverInterceptor(t *testing.T) {
	interceptor := recoverInterceptor(zap.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
