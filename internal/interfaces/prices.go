package interfaces

import (
	"context"
	"time"

	"stock-forecaster/internal/types"
)

// PriceDownloader fetches the daily price history of a symbol between two dates.
type PriceDownloader interface {
	Download(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error)
}
