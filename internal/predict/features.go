package predict

import (
	"math"

	"stock-forecaster/internal/types"
)

// usableBars drops rows without a finite positive close.
func usableBars(bars []types.PriceBar) []types.PriceBar {
	out := make([]types.PriceBar, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// PriceFeatures is the single-column [close] matrix.
func PriceFeatures(bars []types.PriceBar) [][]float64 {
	bars = usableBars(bars)
	out := make([][]float64, len(bars))
	for i, b := range bars {
		out[i] = []float64{b.Close}
	}
	return out
}

// DailySentiment averages signed label scores per date.
func DailySentiment(records []types.SentimentRecord) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range records {
		sums[r.Date] += r.Sentiment.Score()
		counts[r.Date]++
	}
	out := make(map[string]float64, len(sums))
	for d, s := range sums {
		out[d] = s / float64(counts[d])
	}
	return out
}

// SentimentFeatures is the [close, daily sentiment] matrix. Dates without
// sentiment rows score 0.
func SentimentFeatures(bars []types.PriceBar, records []types.SentimentRecord) [][]float64 {
	daily := DailySentiment(records)
	bars = usableBars(bars)
	out := make([][]float64, len(bars))
	for i, b := range bars {
		out[i] = []float64{b.Close, daily[b.Date]}
	}
	return out
}

// Round2 rounds a price for presentation. The engine never rounds.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
