package core

import "context"

// Inferencer runs the model on the payload behind ref.
type Inferencer interface {
	Infer(ctx context.Context, payloadRef string) (Prediction, error)
}
