package types

import (
	"strconv"
	"time"
)

// RunContext is fixed once per cycle and handed to every stage.
type RunContext struct {
	RunID   string
	Date    time.Time
	Symbols map[string]string // ticker -> news query
}

// PredictionRow is the on-disk form of a PredictionResult. PredictedPrice is
// empty when the prediction failed.
type PredictionRow struct {
	Symbol         string `csv:"symbol"`
	PredictedPrice string `csv:"predicted_price"`
	Date           string `csv:"date"`
	Error          string `csv:"error"`
}

// Row converts the result for storage. Prices are stored unrounded.
func (r PredictionResult) Row() PredictionRow {
	row := PredictionRow{Symbol: r.Symbol, Date: r.Date.Format(DateLayout), Error: r.Error}
	if r.PredictedPrice != nil {
		row.PredictedPrice = strconv.FormatFloat(*r.PredictedPrice, 'f', -1, 64)
	}
	return row
}

// Price parses the stored price. ok is false for failed predictions.
func (p PredictionRow) Price() (float64, bool) {
	if p.PredictedPrice == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(p.PredictedPrice, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
