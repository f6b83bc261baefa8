package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/inferencepb"
)

// InferenceClient runs inference on a remote model server.
type InferenceClient struct {
	conn   *grpc.ClientConn
	client inferencepb.InferenceServiceClient

	addr string
}

func NewInferenceClient(cfg config.RemoteConfig, opts ...grpc.DialOption) (*InferenceClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(
			keepalive.ClientParameters{
				Time:                cfg.KeepaliveTime,
				Timeout:             cfg.KeepaliveTimeout,
				PermitWithoutStream: true,
			},
		),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inference server: %w", err)
	}

	return &InferenceClient{
		conn:   conn,
		client: inferencepb.NewInferenceServiceClient(conn),
		addr:   cfg.Addr,
	}, nil
}

func (c *InferenceClient) Infer(ctx context.Context, payloadRef string) (broker.Prediction, error) {
	resp, err := c.client.Infer(ctx, wrapperspb.String(payloadRef))
	if err != nil {
		return broker.Prediction{}, inferencepb.FromStatus(err)
	}

	label, score, err := inferencepb.ParsePrediction(resp)
	if err != nil {
		return broker.Prediction{}, fmt.Errorf("malformed response from %s: %w", c.addr, err)
	}
	return broker.Prediction{Label: label, Score: score}, nil
}

func (c *InferenceClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
