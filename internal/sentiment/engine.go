package sentiment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/news"
	"stock-forecaster/internal/types"
)

// Options bounds the news window collected per symbol.
type Options struct {
	WindowDays  int
	PerDayLimit int
}

func DefaultOptions() Options {
	return Options{WindowDays: 7, PerDayLimit: 14}
}

// Outcome is the per-symbol result of a run. A failed symbol carries Err and
// never stops the others.
type Outcome struct {
	Symbol  string
	Skipped bool
	Summary *types.SentimentSummary
	Err     error
}

// Engine classifies recent news per symbol and writes the sentiment table,
// chart and summary for the effective date.
type Engine struct {
	fetcher    interfaces.NewsFetcher
	classifier interfaces.Classifier
	store      *artifacts.Store
	opts       Options
}

func NewEngine(fetcher interfaces.NewsFetcher, classifier interfaces.Classifier, store *artifacts.Store, opts Options) *Engine {
	def := DefaultOptions()
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.PerDayLimit <= 0 {
		opts.PerDayLimit = def.PerDayLimit
	}
	return &Engine{fetcher: fetcher, classifier: classifier, store: store, opts: opts}
}

// collect fetches the window ending at date, newest day first. A failing day
// is logged and skipped.
func (e *Engine) collect(ctx context.Context, symbol, query string, date time.Time) []types.Article {
	var out []types.Article
	for i := 0; i < e.opts.WindowDays; i++ {
		day := date.AddDate(0, 0, -i)
		articles, err := e.fetcher.FetchArticles(ctx, query, day, e.opts.PerDayLimit)
		if err != nil {
			logger.Warn(ctx, "News fetch failed, skipping day",
				"symbol", symbol, "day", day.Format(types.DateLayout), "error", err)
			continue
		}
		for _, a := range articles {
			if a.Date == "" {
				continue
			}
			title := news.CleanText(a.Title)
			if title == "" {
				continue
			}
			out = append(out, types.Article{Date: a.Date, Title: title, Description: news.CleanText(a.Description)})
		}
	}
	return out
}

// Run processes one symbol. Zero articles across the window skips the
// symbol and clears whatever an earlier run left for the same date.
func (e *Engine) Run(ctx context.Context, symbol, query string, date time.Time) (Outcome, error) {
	articles := e.collect(ctx, symbol, query, date)
	if len(articles) == 0 {
		logger.Info(ctx, "No valid news articles found, skipping symbol", "symbol", symbol)
		if err := e.clear(symbol, date); err != nil {
			return Outcome{}, err
		}
		return Outcome{Symbol: symbol, Skipped: true}, nil
	}

	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.Title + ". " + a.Description
	}
	results, err := e.classifier.Classify(ctx, texts)
	if err != nil {
		return Outcome{}, fmt.Errorf("classify %s: %w", symbol, err)
	}
	if len(results) != len(articles) {
		return Outcome{}, fmt.Errorf("%w: classifier returned %d results for %d articles", types.ErrUpstream, len(results), len(articles))
	}

	records := make([]types.SentimentRecord, len(articles))
	for i, a := range articles {
		label, err := types.ParseLabel(results[i].Label)
		if err != nil {
			return Outcome{}, fmt.Errorf("classify %s: %w", symbol, err)
		}
		records[i] = types.SentimentRecord{
			Date:        a.Date,
			Title:       a.Title,
			Description: a.Description,
			Sentiment:   label,
			Confidence:  results[i].Score,
		}
	}

	summary := Summarize(date.Format(types.DateLayout), symbol, records)

	if err := e.store.WriteRecords(artifacts.Key{Kind: artifacts.KindSentimentTable, Symbol: symbol, Date: date}, &records); err != nil {
		return Outcome{}, err
	}
	title := fmt.Sprintf("Sentiment for %s News (Last %d Days, %d/Day)", symbol, e.opts.WindowDays, e.opts.PerDayLimit)
	chart, err := RenderChart(title, summary)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.WriteBlob(artifacts.Key{Kind: artifacts.KindChart, Symbol: symbol, Date: date}, chart); err != nil {
		return Outcome{}, err
	}
	row := []types.SentimentSummary{summary}
	if err := e.store.WriteRecords(artifacts.Key{Kind: artifacts.KindSummary, Symbol: symbol, Date: date}, &row); err != nil {
		return Outcome{}, err
	}

	logger.Info(ctx, "Sentiment summary written",
		"symbol", symbol,
		"articles", summary.TotalArticles,
		"positive", summary.PositiveCount,
		"neutral", summary.NeutralCount,
		"negative", summary.NegativeCount)
	return Outcome{Symbol: symbol, Summary: &summary}, nil
}

func (e *Engine) clear(symbol string, date time.Time) error {
	for _, kind := range []artifacts.Kind{artifacts.KindSentimentTable, artifacts.KindChart, artifacts.KindSummary} {
		if err := e.store.Remove(artifacts.Key{Kind: kind, Symbol: symbol, Date: date}); err != nil {
			return fmt.Errorf("clear stale %s for %s: %w", kind, symbol, err)
		}
	}
	return nil
}

// RunAll processes every symbol through a bounded worker pool and then
// writes the combined summary once, only when some symbol produced data.
// Outcomes are returned in symbol order.
func (e *Engine) RunAll(ctx context.Context, symbols map[string]string, date time.Time, concurrency int) ([]Outcome, error) {
	names := make([]string, 0, len(symbols))
	for s := range symbols {
		names = append(names, s)
	}
	sort.Strings(names)

	if concurrency <= 0 {
		concurrency = 1
	}
	outcomes := make([]Outcome, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sym := range names {
		g.Go(func() error {
			out, err := e.Run(gctx, sym, symbols[sym], date)
			if err != nil {
				logger.ErrorWithErr(gctx, "Sentiment analysis failed", err, "symbol", sym)
				out = Outcome{Symbol: sym, Err: err}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var combined []types.SentimentSummary
	for _, o := range outcomes {
		if o.Summary != nil {
			combined = append(combined, *o.Summary)
		}
	}
	if len(combined) == 0 {
		logger.Warn(ctx, "No data available to write combined summary", "date", date.Format(types.DateLayout))
		if err := e.store.Remove(artifacts.Key{Kind: artifacts.KindCombinedSummary, Date: date}); err != nil {
			return outcomes, fmt.Errorf("clear stale combined summary: %w", err)
		}
		return outcomes, nil
	}
	if err := e.store.WriteRecords(artifacts.Key{Kind: artifacts.KindCombinedSummary, Date: date}, &combined); err != nil {
		return outcomes, fmt.Errorf("write combined summary: %w", err)
	}
	return outcomes, nil
}
