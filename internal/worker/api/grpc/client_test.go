package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/inferencepb"
)

type fakeModelServer struct {
	resp *structpb.Struct
	err  error
	refs []string
}

func (f *fakeModelServer) Infer(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	f.refs = append(f.refs, req.GetValue())
	return f.resp, f.err
}

func newTestClient(t *testing.T, srv inferencepb.InferenceServiceServer) *InferenceClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	inferencepb.RegisterInferenceServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client, err := NewInferenceClient(
		config.RemoteConfig{Addr: "passthrough:///bufnet", KeepaliveTime: 30 * time.Second, KeepaliveTimeout: 5 * time.Second},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestInferenceClient_Infer(t *testing.T) {
	resp, err := inferencepb.NewPrediction("cat", 0.92)
	require.NoError(t, err)
	srv := &fakeModelServer{resp: resp}

	p, err := newTestClient(t, srv).Infer(context.Background(), "abc.png")
	require.NoError(t, err)
	assert.Equal(t, broker.Prediction{Label: "cat", Score: 0.92}, p)
	assert.Equal(t, []string{"abc.png"}, srv.refs)
}

func TestInferenceClient_MapsStatusErrors(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.NotFound, broker.ErrPayloadNotFound},
		{codes.InvalidArgument, broker.ErrInvalidPayload},
		{codes.Unavailable, broker.ErrModelUnavailable},
		{codes.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			srv := &fakeModelServer{err: status.Error(tt.code, "nope")}
			_, err := newTestClient(t, srv).Infer(context.Background(), "abc.png")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInferenceClient_MalformedResponse(t *testing.T) {
	srv := &fakeModelServer{resp: &structpb.Struct{}}

	_, err := newTestClient(t, srv).Infer(context.Background(), "abc.png")
	assert.ErrorContains(t, err, "malformed response")
}
