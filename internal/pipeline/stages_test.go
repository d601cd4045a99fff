package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/sentiment"
	"stock-forecaster/internal/types"
)

var cycleDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

type fakeDownloader struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	to    time.Time
}

func (f *fakeDownloader) Download(_ context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	f.to = to
	if f.fail[symbol] {
		return nil, fmt.Errorf("%w: no data returned", types.ErrUpstream)
	}
	return []types.PriceBar{
		{Date: from.Format(types.DateLayout), Close: 10},
		{Date: "2024-03-15", Close: 11},
	}, nil
}

func TestDownloadStage(t *testing.T) {
	st := artifacts.NewStore(t.TempDir())
	d := &fakeDownloader{fail: map[string]bool{"MSFT": true}}
	stage := NewDownloadStage(d, st, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 2)

	err := stage.Run(context.Background(), types.RunContext{Date: cycleDate, Symbols: tracked})
	require.NoError(t, err, "one failing symbol does not fail the stage")
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, d.calls)
	assert.Equal(t, cycleDate.AddDate(0, 0, 1), d.to)

	var bars []types.PriceBar
	require.NoError(t, st.ReadRecords(artifacts.Key{Kind: artifacts.KindDataset, Symbol: "AAPL"}, &bars))
	assert.Len(t, bars, 2)
	assert.Equal(t, "2000-01-01", bars[0].Date)
	assert.False(t, st.Exists(artifacts.Key{Kind: artifacts.KindDataset, Symbol: "MSFT"}))

	d.fail["AAPL"] = true
	err = stage.Run(context.Background(), types.RunContext{Date: cycleDate, Symbols: tracked})
	assert.ErrorIs(t, err, types.ErrUpstream)
	assert.Contains(t, err.Error(), "no dataset downloaded")
}

type fakePredictor struct {
	variant types.Variant
	prices  map[string]float64
}

func (f *fakePredictor) Variant() types.Variant { return f.variant }

func (f *fakePredictor) Predict(_ context.Context, symbol string, _ int, _ time.Time) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: model not found for %s (%s)", types.ErrNotFound, symbol, f.variant)
	}
	return p, nil
}

func TestPredictStage_WritesTables(t *testing.T) {
	st := artifacts.NewStore(t.TempDir())
	preds := []interfaces.Predictor{
		&fakePredictor{variant: types.VariantPrice, prices: map[string]float64{"AAPL": 171.23456, "MSFT": 402.5}},
		&fakePredictor{variant: types.VariantSentiment, prices: map[string]float64{"AAPL": 170.1}},
	}
	stage := NewPredictStage(preds, st, 60, 4)
	require.NoError(t, stage.Run(context.Background(), types.RunContext{Date: cycleDate, Symbols: tracked}))

	var table []types.PredictionRow
	require.NoError(t, st.ReadRecords(artifacts.Key{Kind: artifacts.KindPredictionTable, Date: cycleDate, Variant: types.VariantPrice}, &table))
	require.Len(t, table, 2)
	assert.Equal(t, "AAPL", table[0].Symbol)
	price, ok := table[0].Price()
	require.True(t, ok)
	assert.Equal(t, 171.23456, price, "stored unrounded")

	var senti []types.PredictionRow
	require.NoError(t, st.ReadRecords(artifacts.Key{Kind: artifacts.KindPredictionTable, Date: cycleDate, Variant: types.VariantSentiment}, &senti))
	require.Len(t, senti, 2)
	assert.Equal(t, "MSFT", senti[1].Symbol)
	_, ok = senti[1].Price()
	assert.False(t, ok)
	assert.Contains(t, senti[1].Error, "model not found")

	var single []types.PredictionRow
	key := artifacts.Key{Kind: artifacts.KindPrediction, Symbol: "MSFT", Date: cycleDate, Variant: types.VariantPrice}
	require.NoError(t, st.ReadRecords(key, &single))
	require.Len(t, single, 1)
	assert.Equal(t, "2024-03-15", single[0].Date)
	assert.Empty(t, single[0].Error)
}

func TestPredictStage_PredictIsolatesFailures(t *testing.T) {
	stage := NewPredictStage(nil, artifacts.NewStore(t.TempDir()), 60, 1)
	p := &fakePredictor{variant: types.VariantPrice, prices: map[string]float64{"B": 2}}

	results := stage.Predict(context.Background(), p, []string{"A", "B", "C"}, cycleDate)
	require.Len(t, results, 3)
	assert.False(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.Equal(t, 2.0, *results[1].PredictedPrice)
	assert.False(t, results[2].OK())
	assert.NotEmpty(t, results[2].Error)
}

func TestSentimentStage_ClassifierLoadFailureAborts(t *testing.T) {
	open := func(context.Context) (interfaces.Classifier, error) {
		return nil, fmt.Errorf("classifier failed to load: %w", types.ErrUpstream)
	}
	stage := NewSentimentStage(open, nil, artifacts.NewStore(t.TempDir()), sentiment.DefaultOptions(), 2)
	err := stage.Run(context.Background(), types.RunContext{Date: cycleDate, Symbols: tracked})
	assert.ErrorIs(t, err, types.ErrUpstream)
}

type stubFetcher struct{}

func (stubFetcher) FetchArticles(_ context.Context, query string, day time.Time, _ int) ([]types.Article, error) {
	if query != "Apple Inc" || !day.Equal(cycleDate) {
		return nil, nil
	}
	return []types.Article{{Date: "2024-03-15", Title: "Apple beats estimates"}}, nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, texts []string) ([]interfaces.Classification, error) {
	out := make([]interfaces.Classification, len(texts))
	for i := range texts {
		out[i] = interfaces.Classification{Label: "positive", Score: 0.9}
	}
	return out, nil
}

func TestSentimentStage_WritesCombinedSummary(t *testing.T) {
	st := artifacts.NewStore(t.TempDir())
	opened := 0
	open := func(context.Context) (interfaces.Classifier, error) {
		opened++
		return stubClassifier{}, nil
	}
	stage := NewSentimentStage(open, stubFetcher{}, st, sentiment.DefaultOptions(), 2)
	require.NoError(t, stage.Run(context.Background(), types.RunContext{Date: cycleDate, Symbols: tracked}))
	assert.Equal(t, 1, opened)

	var combined []types.SentimentSummary
	require.NoError(t, st.ReadRecords(artifacts.Key{Kind: artifacts.KindCombinedSummary, Date: cycleDate}, &combined))
	require.Len(t, combined, 1)
	assert.Equal(t, "AAPL", combined[0].Symbol)
	assert.Equal(t, 1, combined[0].PositiveCount)
}

type fakeSyncer struct {
	res types.SyncResult
	err error
}

func (f fakeSyncer) Sync(context.Context) (types.SyncResult, error) { return f.res, f.err }

func TestSyncStage(t *testing.T) {
	ok := NewSyncStage(fakeSyncer{res: types.SyncResult{Reason: "no changes to commit"}})
	assert.NoError(t, ok.Run(context.Background(), types.RunContext{}))

	bad := NewSyncStage(fakeSyncer{err: errors.New("git push failed")})
	assert.EqualError(t, bad.Run(context.Background(), types.RunContext{}), "git push failed")
	assert.Equal(t, "Git sync", bad.Label())
}
