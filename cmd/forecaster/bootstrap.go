package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/classifier"
	"stock-forecaster/internal/gitsync"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/marketdata"
	"stock-forecaster/internal/model"
	"stock-forecaster/internal/news"
	"stock-forecaster/internal/pipeline"
	"stock-forecaster/internal/pipeline/stageobs"
	"stock-forecaster/internal/predict"
	"stock-forecaster/internal/predict/predictobs"
	"stock-forecaster/internal/sentiment"
	"stock-forecaster/internal/statuslog"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/trace"
	"stock-forecaster/internal/types"
)

// initializeSystem loads .env, starts logging, reads the configuration and
// then starts tracing as configured.
func initializeSystem(path string) (*store.Config, error) {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	c, err := store.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := trace.Init(tracingOptions(c)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return c, nil
}

func tracingOptions(c *store.Config) trace.Options {
	return trace.Options{
		Enabled:     c.Tracing.Enabled,
		SampleRatio: c.Tracing.SampleRatio,
		Pretty:      c.Tracing.Pretty,
	}
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = trace.Shutdown(ctx)
	logger.Sync()
}

func openStore(cfg *store.Config) *artifacts.Store {
	return artifacts.NewStore(cfg.DataDir)
}

// buildPredictors returns one observed predictor per configured variant.
func buildPredictors(cfg *store.Config, st *artifacts.Store) []interfaces.Predictor {
	ms := cfg.Prediction.ModelServer
	registry := model.NewTFServingRegistry(ms.BaseURL, ms.NameTemplate, time.Duration(ms.TimeoutSeconds)*time.Second)

	var out []interfaces.Predictor
	for _, v := range cfg.PredictionVariants() {
		out = append(out, predictobs.Wrap(predict.NewEngine(v, st, registry)))
	}
	return out
}

// buildStages builds the requested stages in configured order. An empty
// only list means every configured stage. Sync is built only when enabled.
func buildStages(cfg *store.Config, st *artifacts.Store, only []string) ([]interfaces.Stage, error) {
	names := cfg.Pipeline.Stages
	if len(only) > 0 {
		want := make(map[string]bool, len(only))
		for _, n := range only {
			want[n] = true
		}
		var filtered []string
		for _, n := range names {
			if want[n] {
				filtered = append(filtered, n)
				delete(want, n)
			}
		}
		if len(want) > 0 {
			return nil, fmt.Errorf("%w: requested stages are not configured: %v", types.ErrValidation, only)
		}
		names = filtered
	}

	var stages []interfaces.Stage
	for _, name := range names {
		var s interfaces.Stage
		switch name {
		case store.StageDownload:
			d, err := marketdata.NewDownloader(cfg)
			if err != nil {
				return nil, err
			}
			s = pipeline.NewDownloadStage(d, st, cfg.PriceStart(), cfg.Pipeline.Concurrency)
		case store.StageSentiment:
			f, err := news.NewFetcher(cfg)
			if err != nil {
				return nil, err
			}
			open := func(ctx context.Context) (interfaces.Classifier, error) {
				c, err := classifier.Open(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return c, nil
			}
			opts := sentiment.Options{WindowDays: cfg.Sentiment.WindowDays, PerDayLimit: cfg.Sentiment.PerDayLimit}
			s = pipeline.NewSentimentStage(open, f, st, opts, cfg.Pipeline.Concurrency)
		case store.StagePredict:
			s = pipeline.NewPredictStage(buildPredictors(cfg, st), st, cfg.Prediction.TimeSteps, cfg.Pipeline.Concurrency)
		case store.StageSync:
			if !cfg.Sync.Enabled {
				continue
			}
			s = pipeline.NewSyncStage(gitsync.FromConfig(cfg))
		}
		stages = append(stages, stageobs.Wrap(s))
	}
	return stages, nil
}

func buildOrchestrator(cfg *store.Config, only []string) (*pipeline.Orchestrator, error) {
	st := openStore(cfg)
	stages, err := buildStages(cfg, st, only)
	if err != nil {
		return nil, err
	}
	status := statuslog.New(filepath.Clean(cfg.StatusLog))
	return pipeline.NewOrchestrator(stages, cfg.Symbols, cfg.Cutover(), status,
		pipeline.WithPolicies(cfg.Pipeline.OnFailure)), nil
}
