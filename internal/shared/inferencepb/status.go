package inferencepb

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
)

// ToStatus maps an inference error to the gRPC status sent to workers.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, broker.ErrPayloadNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, broker.ErrInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, broker.ErrModelUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatus turns a gRPC status received by a worker back into the error
// the worker maps to a result error kind.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", broker.ErrPayloadNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", broker.ErrInvalidPayload, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", broker.ErrModelUnavailable, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	default:
		return fmt.Errorf("inference failed: %s", st.Message())
	}
}
