package interfaces

import (
	"context"
	"time"

	"stock-forecaster/internal/types"
)

// Model is a pre-trained sequence model. The window has shape [time_steps][features]
// and the result is the single scaled output.
type Model interface {
	Predict(ctx context.Context, window [][]float64) (float64, error)
}

// ModelRegistry resolves the model trained for a symbol and variant.
type ModelRegistry interface {
	Open(ctx context.Context, variant types.Variant, symbol string) (Model, error)
}

// Predictor produces an unrounded next-day price for a symbol.
type Predictor interface {
	Variant() types.Variant
	Predict(ctx context.Context, symbol string, timeSteps int, date time.Time) (float64, error)
}
