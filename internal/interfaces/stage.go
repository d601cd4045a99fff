package interfaces

import (
	"context"

	"stock-forecaster/internal/types"
)

// Stage is one coarse step of the daily cycle. Label is the human-readable
// name written to the status log.
type Stage interface {
	Name() string
	Label() string
	Run(ctx context.Context, rc types.RunContext) error
}
