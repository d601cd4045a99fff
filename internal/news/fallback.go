package news

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

// Fallback queries Secondary when Primary errors or returns nothing.
type Fallback struct {
	Primary   interfaces.NewsFetcher
	Secondary interfaces.NewsFetcher
}

var _ interfaces.NewsFetcher = (*Fallback)(nil)

func (f *Fallback) FetchArticles(ctx context.Context, query string, day time.Time, limit int) ([]types.Article, error) {
	articles, err := f.Primary.FetchArticles(ctx, query, day, limit)
	if err == nil && len(articles) > 0 {
		return articles, nil
	}
	if f.Secondary == nil {
		return articles, err
	}

	if err != nil {
		logger.Warn(ctx, "Primary news source failed, trying fallback", "query", query, "day", day.Format(types.DateLayout), "error", err)
	} else {
		logger.Debug(ctx, "No articles from primary source, trying fallback", "query", query, "day", day.Format(types.DateLayout))
	}

	more, ferr := f.Secondary.FetchArticles(ctx, query, day, limit)
	if ferr != nil {
		if err != nil {
			return nil, errors.Join(err, ferr)
		}
		// primary succeeded empty; an empty day is not a failure
		logger.Warn(ctx, "Fallback news source failed", "query", query, "error", ferr)
		return articles, nil
	}
	return more, nil
}

// NewFetcher builds the configured news source chain.
func NewFetcher(cfg *store.Config) (interfaces.NewsFetcher, error) {
	build := func(name string) (interfaces.NewsFetcher, error) {
		switch name {
		case "newsapi":
			key := os.Getenv(cfg.News.APIKeyEnv)
			if key == "" {
				return nil, fmt.Errorf("%w: %s is not set", types.ErrValidation, cfg.News.APIKeyEnv)
			}
			return NewNewsAPIFetcher(cfg.News.BaseURL, key, cfg.News.Language, cfg.News.RequestsPerSecond), nil
		case "rss":
			return NewRSSFetcher(cfg.News.RSSURL, 30*time.Second), nil
		}
		return nil, fmt.Errorf("%w: unknown news provider %q", types.ErrValidation, name)
	}

	primary, err := build(cfg.News.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.News.Fallback == "" || cfg.News.Fallback == cfg.News.Provider {
		return primary, nil
	}
	secondary, err := build(cfg.News.Fallback)
	if err != nil {
		return nil, err
	}
	return &Fallback{Primary: primary, Secondary: secondary}, nil
}
