// Package inferencepb defines the InferenceService gRPC contract. Messages are
// protobuf well-known types: the request is the payload reference as a
// StringValue and the response is a Struct with "label" and "score" fields.
package inferencepb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "inferq.v1.InferenceService"
	InferFullMethod = "/inferq.v1.InferenceService/Infer"
)

type InferenceServiceServer interface {
	Infer(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

type InferenceServiceClient interface {
	Infer(ctx context.Context, req *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Infer",
			Handler:    inferHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inferq/v1/inference.proto",
}

func RegisterInferenceServiceServer(s grpc.ServiceRegistrar, srv InferenceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func inferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServiceServer).Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InferFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServiceServer).Infer(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type inferenceServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInferenceServiceClient(cc grpc.ClientConnInterface) InferenceServiceClient {
	return &inferenceServiceClient{cc: cc}
}

func (c *inferenceServiceClient) Infer(ctx context.Context, req *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InferFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewPrediction builds the response message.
func NewPrediction(label string, score float64) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"label": label,
		"score": score,
	})
}

// ParsePrediction reads label and score out of a response message.
func ParsePrediction(s *structpb.Struct) (string, float64, error) {
	fields := s.GetFields()
	label, ok := fields["label"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", 0, fmt.Errorf("prediction has no string label")
	}
	score, ok := fields["score"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return "", 0, fmt.Errorf("prediction has no numeric score")
	}
	return label.StringValue, score.NumberValue, nil
}
