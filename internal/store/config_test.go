package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecaster/internal/types"
)

const minimalYAML = `
symbols:
  AAPL: "Apple stock"
  TSLA: "Tesla stock"
`

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "logs/scheduler_log.csv", cfg.StatusLog)
	assert.Equal(t, "30 2 * * *", cfg.Schedule.Cycle)
	assert.Equal(t, []string{StageDownload, StageSentiment, StagePredict, StageSync}, cfg.Pipeline.Stages)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 7, cfg.Sentiment.WindowDays)
	assert.Equal(t, 14, cfg.Sentiment.PerDayLimit)
	assert.Equal(t, 60, cfg.Prediction.TimeSteps)
	assert.Equal(t, []types.Variant{types.VariantPrice, types.VariantSentiment}, cfg.PredictionVariants())
	assert.Equal(t, "{symbol}_{variant}", cfg.Prediction.ModelServer.NameTemplate)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, 2.0, cfg.Prices.RequestsPerSecond)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), cfg.PriceStart())

	co := cfg.Cutover()
	assert.Equal(t, 2, co.Hour)
	assert.Equal(t, 0, co.Minute)
}

func TestParseConfig_Overrides(t *testing.T) {
	raw := minimalYAML + `
schedule:
  cutover_utc: "02:45"
pipeline:
  stages: [sentiment, predict]
  on_failure:
    sentiment: abort
prediction:
  time_steps: 30
  variants: [lstm_senti]
`
	cfg, err := ParseConfig([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.Cutover().Minute)
	assert.Equal(t, []string{StageSentiment, StagePredict}, cfg.Pipeline.Stages)
	assert.Equal(t, PolicyAbort, cfg.FailurePolicy(StageSentiment))
	assert.Equal(t, PolicyContinue, cfg.FailurePolicy(StagePredict))
	assert.Equal(t, 30, cfg.Prediction.TimeSteps)
	assert.Equal(t, []types.Variant{types.VariantSentiment}, cfg.PredictionVariants())
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"no symbols":     `data_dir: x`,
		"empty query":    "symbols:\n  AAPL: \"\"\n",
		"bad stage":      minimalYAML + "pipeline:\n  stages: [train]\n",
		"bad policy":     minimalYAML + "pipeline:\n  on_failure:\n    predict: retry\n",
		"bad cutover":    minimalYAML + "schedule:\n  cutover_utc: \"25:99\"\n",
		"bad variant":    minimalYAML + "prediction:\n  variants: [gru]\n",
		"bad source":     minimalYAML + "prices:\n  source: bloomberg\n",
		"bad start date": minimalYAML + "prices:\n  start_date: 01/01/2000\n",
		"bad provider":   minimalYAML + "news:\n  provider: twitter\n",
		"negative rate":  minimalYAML + "prices:\n  requests_per_second: -1\n",
		"bad sampling":   minimalYAML + "tracing:\n  sample_ratio: 1.5\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestParseConfig_Tracing(t *testing.T) {
	t.Setenv("LOG_TRACING_ENABLED", "")
	cfg, err := ParseConfig([]byte(minimalYAML + "tracing:\n  enabled: true\n  sample_ratio: 0.25\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)

	cfg, err = ParseConfig([]byte(minimalYAML))
	require.NoError(t, err)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)

	t.Setenv("LOG_TRACING_ENABLED", "true")
	cfg, err = ParseConfig([]byte(minimalYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled, "environment overrides the file")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, cfg.SortedSymbols())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
