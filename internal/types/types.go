package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for partitions and table columns.
const DateLayout = "2006-01-02"

// Label is the output class of the sentiment classifier.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// Labels lists the classifier classes in reporting order.
var Labels = []Label{LabelPositive, LabelNeutral, LabelNegative}

// ParseLabel maps a raw classifier label onto the canonical lower-case set.
func ParseLabel(raw string) (Label, error) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case LabelPositive:
		return LabelPositive, nil
	case LabelNeutral:
		return LabelNeutral, nil
	case LabelNegative:
		return LabelNegative, nil
	}
	return "", fmt.Errorf("%w: unknown sentiment label %q", ErrValidation, raw)
}

// Score is the signed value of a label used as a daily sentiment feature.
func (l Label) Score() float64 {
	switch l {
	case LabelPositive:
		return 1
	case LabelNegative:
		return -1
	default:
		return 0
	}
}

// Article is a news item as returned by a news source. Never persisted on its own.
type Article struct {
	Date        string // YYYY-MM-DD, empty when the source had no publish date
	Title       string
	Description string
}

// SentimentRecord is one classified article; rows of the per-symbol sentiment table.
type SentimentRecord struct {
	Date        string  `csv:"date"`
	Title       string  `csv:"title"`
	Description string  `csv:"description"`
	Sentiment   Label   `csv:"sentiment"`
	Confidence  float64 `csv:"confidence"`
}

// SentimentSummary aggregates one symbol's sentiment table for a date.
type SentimentSummary struct {
	DateCollected         string  `csv:"date_collected" json:"date_collected"`
	Symbol                string  `csv:"symbol" json:"symbol"`
	TotalArticles         int     `csv:"total_articles" json:"total_articles"`
	PositiveCount         int     `csv:"positive_count" json:"positive_count"`
	NeutralCount          int     `csv:"neutral_count" json:"neutral_count"`
	NegativeCount         int     `csv:"negative_count" json:"negative_count"`
	AvgConfidencePositive float64 `csv:"avg_confidence_positive" json:"avg_confidence_positive"`
	AvgConfidenceNeutral  float64 `csv:"avg_confidence_neutral" json:"avg_confidence_neutral"`
	AvgConfidenceNegative float64 `csv:"avg_confidence_negative" json:"avg_confidence_negative"`
}

// Count returns the number of records with the given label.
func (s SentimentSummary) Count(l Label) int {
	switch l {
	case LabelPositive:
		return s.PositiveCount
	case LabelNeutral:
		return s.NeutralCount
	case LabelNegative:
		return s.NegativeCount
	}
	return 0
}

// AvgConfidence returns the mean confidence for the given label.
func (s SentimentSummary) AvgConfidence(l Label) float64 {
	switch l {
	case LabelPositive:
		return s.AvgConfidencePositive
	case LabelNeutral:
		return s.AvgConfidenceNeutral
	case LabelNegative:
		return s.AvgConfidenceNegative
	}
	return 0
}

// PriceBar is one daily row of a symbol's price dataset.
type PriceBar struct {
	Date   string  `csv:"Date"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume int64   `csv:"Volume"`
}

// Variant selects the feature set of the prediction engine.
type Variant string

const (
	VariantPrice     Variant = "lstm"
	VariantSentiment Variant = "lstm_senti"
)

// Variants lists every supported prediction variant.
var Variants = []Variant{VariantPrice, VariantSentiment}

// ParseVariant validates a variant name.
func ParseVariant(raw string) (Variant, error) {
	switch Variant(strings.ToLower(raw)) {
	case VariantPrice:
		return VariantPrice, nil
	case VariantSentiment, "lstm_sentiment":
		return VariantSentiment, nil
	}
	return "", fmt.Errorf("%w: unknown model variant %q", ErrValidation, raw)
}

// Features is the number of input columns the variant feeds the model.
func (v Variant) Features() int {
	if v == VariantSentiment {
		return 2
	}
	return 1
}

// PredictionResult is the outcome of one prediction for a symbol and variant.
// Exactly one of PredictedPrice and Error is set.
type PredictionResult struct {
	Symbol         string
	Variant        Variant
	Date           time.Time
	PredictedPrice *float64
	Error          string
}

// OK reports whether the prediction produced a price.
func (r PredictionResult) OK() bool {
	return r.PredictedPrice != nil && r.Error == ""
}

// SyncResult is the outcome of a repository synchronization.
type SyncResult struct {
	Pushed bool
	Reason string
}
