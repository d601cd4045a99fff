package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/pipeline"
	"stock-forecaster/internal/predict"
	"stock-forecaster/internal/server"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

var (
	cfgPath string
	cfg     *store.Config
)

var rootCmd = &cobra.Command{
	Use:           "forecaster",
	Short:         "Sentiment-augmented daily stock forecaster",
	Long:          "Downloads daily prices, scores recent news sentiment and produces next-day price forecasts from pre-trained sequence models.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := initializeSystem(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownSystem()
	},
}

var (
	runSymbols []string
	runStages  []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one daily cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orch, err := buildOrchestrator(cfg, runStages)
		if err != nil {
			return err
		}
		report, err := orch.RunCycleFor(ctx, runSymbols)
		if err != nil {
			return err
		}
		for _, s := range report.Stages {
			fields := []any{"run_id", report.RunID, "stage", s.Label, "outcome", s.Outcome}
			if s.Err != nil {
				fields = append(fields, "error", s.Err.Error())
			}
			logger.Info(ctx, "Stage result", fields...)
		}
		if report.Failed() {
			return errors.New("daily update failed")
		}
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run cycles on the configured cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched, err := startScheduler()
		if err != nil {
			return err
		}
		<-ctx.Done()
		return stopScheduler(sched)
	},
}

var withScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve artifacts and live predictions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if withScheduler {
			sched, err := startScheduler()
			if err != nil {
				return err
			}
			defer func() { _ = stopScheduler(sched) }()
		}

		st := openStore(cfg)
		srv := server.New(st, buildPredictors(cfg, st), cfg.Symbols, cfg.Cutover())
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

var (
	predictSymbol  string
	predictVariant string
	predictDays    int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the next close for one symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := types.ParseVariant(predictVariant)
		if err != nil {
			return err
		}
		sym := strings.ToUpper(predictSymbol)
		if _, ok := cfg.Symbols[sym]; !ok {
			return fmt.Errorf("%w: unknown symbol %s", types.ErrValidation, sym)
		}
		days := predictDays
		if days <= 0 {
			days = cfg.Prediction.TimeSteps
		}

		st := openStore(cfg)
		date := artifacts.EffectiveDate(time.Now(), cfg.Cutover())
		for _, p := range buildPredictors(cfg, st) {
			if p.Variant() != v {
				continue
			}
			price, err := p.Predict(ctx, sym, days, date)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"date":                         date.Format(types.DateLayout),
				"stock":                        sym,
				"predicted_price_for_tommorow": predict.Round2(price),
			})
		}
		return fmt.Errorf("%w: variant %s is not configured", types.ErrValidation, v)
	},
}

func startScheduler() (*pipeline.Scheduler, error) {
	orch, err := buildOrchestrator(cfg, nil)
	if err != nil {
		return nil, err
	}
	sched, err := pipeline.NewScheduler(orch, cfg.Schedule.Cycle)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(); err != nil {
		return nil, err
	}
	return sched, nil
}

// stopScheduler waits up to an hour for an active cycle to finish.
func stopScheduler(s *pipeline.Scheduler) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	return s.Stop(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML configuration")

	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "restrict the cycle to these tickers")
	runCmd.Flags().StringSliceVar(&runStages, "stages", nil, "restrict the cycle to these stages")

	serveCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the daily scheduler in this process")

	predictCmd.Flags().StringVar(&predictSymbol, "symbol", "", "ticker to predict")
	predictCmd.Flags().StringVar(&predictVariant, "variant", string(types.VariantPrice), "model variant (lstm or lstm_senti)")
	predictCmd.Flags().IntVar(&predictDays, "days", 0, "window length, defaults to prediction.time_steps")
	_ = predictCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(runCmd, scheduleCmd, serveCmd, predictCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
