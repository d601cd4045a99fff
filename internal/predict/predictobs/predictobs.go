package predictobs

import (
	"context"
	"time"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/types"
)

type observablePredictor struct {
	predictor interfaces.Predictor
}

var _ interfaces.Predictor = (*observablePredictor)(nil)

// Wrap adds a span and structured logs around every prediction.
func Wrap(predictor interfaces.Predictor) interfaces.Predictor {
	return &observablePredictor{predictor: predictor}
}

func (o *observablePredictor) Variant() types.Variant {
	return o.predictor.Variant()
}

func (o *observablePredictor) Predict(ctx context.Context, symbol string, timeSteps int, date time.Time) (float64, error) {
	variant := string(o.predictor.Variant())
	timer := logger.StartOperation(ctx, "predict."+variant,
		"symbol", symbol,
		"variant", variant,
		"time_steps", timeSteps,
		"date", date.Format(types.DateLayout),
	)

	price, err := o.predictor.Predict(timer.GetContext(), symbol, timeSteps, date)
	if err != nil {
		timer.EndWithError(err)
		return 0, err
	}

	timer.End("price", price)
	logger.Prediction(timer.GetContext(), symbol, variant, price, "date", date.Format(types.DateLayout))
	return price, nil
}
