package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/sentiment"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func limit(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// DownloadStage refreshes every symbol's full daily history.
type DownloadStage struct {
	downloader  interfaces.PriceDownloader
	store       *artifacts.Store
	start       time.Time
	concurrency int
}

func NewDownloadStage(d interfaces.PriceDownloader, st *artifacts.Store, start time.Time, concurrency int) *DownloadStage {
	return &DownloadStage{downloader: d, store: st, start: start, concurrency: concurrency}
}

func (s *DownloadStage) Name() string  { return store.StageDownload }
func (s *DownloadStage) Label() string { return "Download datasets" }

// Run fails only when no symbol could be downloaded.
func (s *DownloadStage) Run(ctx context.Context, rc types.RunContext) error {
	symbols := sortedKeys(rc.Symbols)
	if len(symbols) == 0 {
		return nil
	}
	to := rc.Date.AddDate(0, 0, 1)

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(s.concurrency))
	for _, sym := range symbols {
		g.Go(func() error {
			err := s.downloadOne(gctx, sym, to)
			if err != nil {
				logger.ErrorWithErr(gctx, "Dataset download failed", err, "symbol", sym)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sym, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(symbols) {
		return fmt.Errorf("no dataset downloaded: %w", errors.Join(errs...))
	}
	return nil
}

func (s *DownloadStage) downloadOne(ctx context.Context, symbol string, to time.Time) error {
	bars, err := s.downloader.Download(ctx, symbol, s.start, to)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: no data returned for %s", types.ErrUpstream, symbol)
	}
	if err := s.store.WriteRecords(artifacts.Key{Kind: artifacts.KindDataset, Symbol: symbol}, &bars); err != nil {
		return err
	}
	logger.Info(ctx, "Dataset saved", "symbol", symbol, "rows", len(bars), "last", bars[len(bars)-1].Date)
	return nil
}

// ClassifierOpener loads the classifier once per stage run.
type ClassifierOpener func(ctx context.Context) (interfaces.Classifier, error)

// SentimentStage aggregates news sentiment for every symbol.
type SentimentStage struct {
	open        ClassifierOpener
	fetcher     interfaces.NewsFetcher
	store       *artifacts.Store
	opts        sentiment.Options
	concurrency int
}

func NewSentimentStage(open ClassifierOpener, f interfaces.NewsFetcher, st *artifacts.Store, opts sentiment.Options, concurrency int) *SentimentStage {
	return &SentimentStage{open: open, fetcher: f, store: st, opts: opts, concurrency: concurrency}
}

func (s *SentimentStage) Name() string  { return store.StageSentiment }
func (s *SentimentStage) Label() string { return "Generate sentiment" }

// Run aborts only when the classifier cannot be loaded or the combined
// summary cannot be written. Per-symbol failures are logged.
func (s *SentimentStage) Run(ctx context.Context, rc types.RunContext) error {
	cls, err := s.open(ctx)
	if err != nil {
		return err
	}
	engine := sentiment.NewEngine(s.fetcher, cls, s.store, s.opts)
	outcomes, err := engine.RunAll(ctx, rc.Symbols, rc.Date, s.concurrency)
	if err != nil {
		return err
	}

	var done, skipped, failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Skipped:
			skipped++
		default:
			done++
		}
	}
	logger.Info(ctx, "Sentiment stage summary", "symbols", len(outcomes), "written", done, "skipped", skipped, "failed", failed)
	return nil
}

// PredictStage runs every predictor for every symbol and stores the results.
type PredictStage struct {
	predictors  []interfaces.Predictor
	store       *artifacts.Store
	timeSteps   int
	concurrency int
}

func NewPredictStage(predictors []interfaces.Predictor, st *artifacts.Store, timeSteps, concurrency int) *PredictStage {
	return &PredictStage{predictors: predictors, store: st, timeSteps: timeSteps, concurrency: concurrency}
}

func (s *PredictStage) Name() string  { return store.StagePredict }
func (s *PredictStage) Label() string { return "Save predictions" }

// Predict returns one result per symbol in symbol order. Failures land in
// the result's Error field.
func (s *PredictStage) Predict(ctx context.Context, p interfaces.Predictor, symbols []string, date time.Time) []types.PredictionResult {
	results := make([]types.PredictionResult, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(s.concurrency))
	for i, sym := range symbols {
		g.Go(func() error {
			res := types.PredictionResult{Symbol: sym, Variant: p.Variant(), Date: date}
			price, err := p.Predict(gctx, sym, s.timeSteps, date)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.PredictedPrice = &price
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run fails only when result tables cannot be written.
func (s *PredictStage) Run(ctx context.Context, rc types.RunContext) error {
	symbols := sortedKeys(rc.Symbols)
	var errs []error
	for _, p := range s.predictors {
		results := s.Predict(ctx, p, symbols, rc.Date)

		rows := make([]types.PredictionRow, 0, len(results))
		var ok int
		for _, r := range results {
			row := r.Row()
			rows = append(rows, row)
			if r.OK() {
				ok++
			}
			single := []types.PredictionRow{row}
			key := artifacts.Key{Kind: artifacts.KindPrediction, Symbol: r.Symbol, Date: rc.Date, Variant: p.Variant()}
			if err := s.store.WriteRecords(key, &single); err != nil {
				errs = append(errs, err)
			}
		}
		if len(rows) > 0 {
			key := artifacts.Key{Kind: artifacts.KindPredictionTable, Date: rc.Date, Variant: p.Variant()}
			if err := s.store.WriteRecords(key, &rows); err != nil {
				errs = append(errs, err)
			}
		}
		logger.Info(ctx, "Predictions saved", "variant", p.Variant(), "symbols", len(results), "succeeded", ok)
	}
	return errors.Join(errs...)
}

// SyncStage publishes the artifact tree.
type SyncStage struct {
	syncer interfaces.RepoSyncer
}

func NewSyncStage(syncer interfaces.RepoSyncer) *SyncStage {
	return &SyncStage{syncer: syncer}
}

func (s *SyncStage) Name() string  { return store.StageSync }
func (s *SyncStage) Label() string { return "Git sync" }

func (s *SyncStage) Run(ctx context.Context, _ types.RunContext) error {
	res, err := s.syncer.Sync(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Repository sync finished", "pushed", res.Pushed, "reason", res.Reason)
	return nil
}
