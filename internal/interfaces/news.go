package interfaces

import (
	"context"
	"time"

	"stock-forecaster/internal/types"
)

// NewsFetcher retrieves articles matching a query that were published on a given day.
type NewsFetcher interface {
	FetchArticles(ctx context.Context, query string, day time.Time, limit int) ([]types.Article, error)
}
