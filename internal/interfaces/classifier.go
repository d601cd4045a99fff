package interfaces

import "context"

// Classification is the classifier output for one input text.
type Classification struct {
	Label string
	Score float64
}

// Classifier labels a batch of texts in one call. The result has one entry per input, in order.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([]Classification, error)
}
