package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/inferencepb"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

type InferenceService struct {
	inferencer broker.Inferencer
	logger     logging.Logger
}

func NewInferenceService(inferencer broker.Inferencer, logger logging.Logger) *InferenceService {
	return &InferenceService{
		inferencer: inferencer,
		logger:     logger,
	}
}

func (s *InferenceService) Infer(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	ref := req.GetValue()
	if ref == "" {
		return nil, status.Error(codes.InvalidArgument, "payload reference is required")
	}

	s.logger.Debug("Received inference request", "payload_ref", ref)

	prediction, err := s.inferencer.Infer(ctx, ref)
	if err != nil {
		s.logger.Error("Inference failed", "payload_ref", ref, "error", err)
		return nil, inferencepb.ToStatus(err)
	}

	resp, err := inferencepb.NewPrediction(prediction.Label, prediction.Score)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}
