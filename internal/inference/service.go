// Package inference runs the image classifier on stored payloads.
package inference

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/inference/payload"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
)

type PayloadReader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

type Classifier interface {
	Classify(ctx context.Context, data []byte, mimeType string) (broker.Prediction, error)
}

// Service resolves a payload reference and classifies the payload. It is the
// in-process Inferencer used by the model server and by local workers.
type Service struct {
	payloads   PayloadReader
	classifier Classifier
	logger     logging.Logger
}

func NewService(payloads PayloadReader, classifier Classifier, logger logging.Logger) *Service {
	return &Service{payloads: payloads, classifier: classifier, logger: logger}
}

func (s *Service) Infer(ctx context.Context, ref string) (broker.Prediction, error) {
	ctx, span := observability.StartSpan(ctx, "inference.Infer", attribute.String("payload_ref", ref))
	defer span.End()

	data, err := s.payloads.Read(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return broker.Prediction{}, err
	}

	prediction, err := s.classifier.Classify(ctx, data, payload.MIMEType(ref, data))
	if err != nil {
		span.RecordError(err)
		return broker.Prediction{}, err
	}
	s.logger.Debug("Classified payload", "payload_ref", ref, "label", prediction.Label, "score", prediction.Score)
	return prediction, nil
}
