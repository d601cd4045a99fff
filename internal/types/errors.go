package types

import "errors"

// Error taxonomy shared by every component. Wrap with fmt.Errorf("%w: ...")
// and classify with errors.Is.
var (
	// ErrNotFound marks an expected-missing artifact ("no data yet").
	ErrNotFound = errors.New("not found")
	// ErrInsufficientData marks a feature matrix shorter than the model window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUpstream marks a failure of a news source, classifier, model server or price source.
	ErrUpstream = errors.New("upstream failure")
	// ErrValidation marks unknown symbols, variants or malformed configuration.
	ErrValidation = errors.New("validation failure")
)
