package sentiment

import (
	"math"

	"stock-forecaster/internal/types"
)

// Summarize reduces one symbol's classified articles. Labels with no records
// get a zero count and a 0.0 average.
func Summarize(date, symbol string, records []types.SentimentRecord) types.SentimentSummary {
	counts := map[types.Label]int{}
	sums := map[types.Label]float64{}
	for _, r := range records {
		counts[r.Sentiment]++
		sums[r.Sentiment] += r.Confidence
	}
	avg := func(l types.Label) float64 {
		if counts[l] == 0 {
			return 0
		}
		return round(sums[l]/float64(counts[l]), 4)
	}
	return types.SentimentSummary{
		DateCollected:         date,
		Symbol:                symbol,
		TotalArticles:         len(records),
		PositiveCount:         counts[types.LabelPositive],
		NeutralCount:          counts[types.LabelNeutral],
		NegativeCount:         counts[types.LabelNegative],
		AvgConfidencePositive: avg(types.LabelPositive),
		AvgConfidenceNeutral:  avg(types.LabelNeutral),
		AvgConfidenceNegative: avg(types.LabelNegative),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
