package artifacts

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"stock-forecaster/internal/types"
)

// Kind enumerates every artifact the pipeline persists.
type Kind int

const (
	KindDataset Kind = iota
	KindSentimentTable
	KindChart
	KindSummary
	KindCombinedSummary
	KindPrediction
	KindPredictionTable
	KindMetrics
	KindTestPlot
	KindLossPlot
)

func (k Kind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindSentimentTable:
		return "sentiment-table"
	case KindChart:
		return "chart"
	case KindSummary:
		return "summary"
	case KindCombinedSummary:
		return "combined-summary"
	case KindPrediction:
		return "prediction-result"
	case KindPredictionTable:
		return "prediction-table"
	case KindMetrics:
		return "metrics"
	case KindTestPlot:
		return "test-plot"
	case KindLossPlot:
		return "loss-plot"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// dated kinds live under a {date} partition.
func (k Kind) dated() bool {
	switch k {
	case KindSentimentTable, KindChart, KindSummary, KindCombinedSummary, KindPrediction, KindPredictionTable:
		return true
	}
	return false
}

func (k Kind) needsSymbol() bool {
	return k != KindCombinedSummary && k != KindPredictionTable
}

func (k Kind) needsVariant() bool {
	switch k {
	case KindPrediction, KindPredictionTable, KindMetrics, KindTestPlot, KindLossPlot:
		return true
	}
	return false
}

// Key identifies one artifact. Date is only read for dated kinds and
// Variant only for model-bearing kinds.
type Key struct {
	Kind    Kind
	Symbol  string
	Date    time.Time
	Variant types.Variant
}

// Resolve maps a key to its path relative to the store root. All path
// templates are defined here and nowhere else.
func Resolve(k Key) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(k.Symbol))
	if k.Kind.needsSymbol() {
		if err := checkSymbol(sym); err != nil {
			return "", err
		}
	}
	if k.Kind.needsVariant() {
		if _, err := types.ParseVariant(string(k.Variant)); err != nil {
			return "", err
		}
	}
	date := ""
	if k.Kind.dated() {
		if k.Date.IsZero() {
			return "", fmt.Errorf("%w: %s artifact requires a date", types.ErrValidation, k.Kind)
		}
		date = k.Date.Format(types.DateLayout)
	}
	v := string(k.Variant)

	switch k.Kind {
	case KindDataset:
		return filepath.Join("datasets", sym+"_daily_data.csv"), nil
	case KindSentimentTable:
		return filepath.Join("sentiment", date, sym+"_sentiment.csv"), nil
	case KindChart:
		return filepath.Join("charts", date, sym+"_chart.png"), nil
	case KindSummary:
		return filepath.Join("summary", date, sym+"_summary.csv"), nil
	case KindCombinedSummary:
		return filepath.Join("summary", date, "all_symbols_summary.csv"), nil
	case KindPrediction:
		return filepath.Join("results", date, sym+"_"+v+"_prediction.csv"), nil
	case KindPredictionTable:
		return filepath.Join("results", date, v+".csv"), nil
	case KindMetrics:
		return filepath.Join("model-metrics", v, sym+"_"+v+"_model_metrics.csv"), nil
	case KindTestPlot:
		return filepath.Join("model-metrics", v, sym+"_"+v+"_test_plot.png"), nil
	case KindLossPlot:
		return filepath.Join("model-metrics", v, sym+"_"+v+"_loss_plot.png"), nil
	}
	return "", fmt.Errorf("%w: unknown artifact kind %d", types.ErrValidation, int(k.Kind))
}

func checkSymbol(sym string) error {
	if sym == "" {
		return fmt.Errorf("%w: empty symbol", types.ErrValidation)
	}
	if strings.ContainsAny(sym, `/\`) || strings.Contains(sym, "..") {
		return fmt.Errorf("%w: invalid symbol %q", types.ErrValidation, sym)
	}
	return nil
}
