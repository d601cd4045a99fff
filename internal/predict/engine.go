package predict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/types"
)

// Engine turns a symbol's stored history into a next-day price with a
// pre-trained sequence model.
type Engine struct {
	variant  types.Variant
	store    *artifacts.Store
	registry interfaces.ModelRegistry
}

var _ interfaces.Predictor = (*Engine)(nil)

func NewEngine(variant types.Variant, store *artifacts.Store, registry interfaces.ModelRegistry) *Engine {
	return &Engine{variant: variant, store: store, registry: registry}
}

func (e *Engine) Variant() types.Variant { return e.variant }

// Predict returns the unrounded predicted close. date selects the sentiment
// partition for the sentiment variant.
func (e *Engine) Predict(ctx context.Context, symbol string, timeSteps int, date time.Time) (float64, error) {
	if timeSteps <= 0 {
		return 0, fmt.Errorf("%w: time steps must be positive, got %d", types.ErrValidation, timeSteps)
	}
	symbol = strings.ToUpper(symbol)

	model, err := e.registry.Open(ctx, e.variant, symbol)
	if err != nil {
		return 0, err
	}

	var bars []types.PriceBar
	if err := e.store.ReadRecords(artifacts.Key{Kind: artifacts.KindDataset, Symbol: symbol}, &bars); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return 0, fmt.Errorf("%w: stock data not found for %s", types.ErrNotFound, symbol)
		}
		return 0, err
	}

	var matrix [][]float64
	switch e.variant {
	case types.VariantSentiment:
		var records []types.SentimentRecord
		key := artifacts.Key{Kind: artifacts.KindSentimentTable, Symbol: symbol, Date: date}
		if err := e.store.ReadRecords(key, &records); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return 0, fmt.Errorf("%w: sentiment data not found for %s on %s", types.ErrNotFound, symbol, date.Format(types.DateLayout))
			}
			return 0, err
		}
		matrix = SentimentFeatures(bars, records)
	default:
		matrix = PriceFeatures(bars)
	}

	if len(matrix) < timeSteps {
		return 0, fmt.Errorf("%w: %s has %d rows, need %d", types.ErrInsufficientData, symbol, len(matrix), timeSteps)
	}

	scaler, err := FitMinMax(matrix)
	if err != nil {
		return 0, err
	}
	window := scaler.TransformAll(matrix[len(matrix)-timeSteps:])

	scaled, err := model.Predict(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("model inference for %s: %w", symbol, err)
	}

	// the scaler was fit jointly, so invert a full row with the price in
	// slot 0 and zeros elsewhere
	row := make([]float64, scaler.Features())
	row[0] = scaled
	return scaler.Inverse(row)[0], nil
}
