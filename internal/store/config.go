package store

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/types"
)

// Stage names accepted in pipeline.stages.
const (
	StageDownload  = "download"
	StageSentiment = "sentiment"
	StagePredict   = "predict"
	StageSync      = "sync"
)

// Continuation policies for pipeline.on_failure.
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

type Config struct {
	DataDir   string            `yaml:"data_dir"`
	StatusLog string            `yaml:"status_log"`
	Symbols   map[string]string `yaml:"symbols"`
	Schedule  struct {
		Cycle      string `yaml:"cycle"`
		CutoverUTC string `yaml:"cutover_utc"`
	} `yaml:"schedule"`
	Pipeline struct {
		Stages      []string          `yaml:"stages"`
		OnFailure   map[string]string `yaml:"on_failure"`
		Concurrency int               `yaml:"concurrency"`
	} `yaml:"pipeline"`
	Sentiment struct {
		WindowDays  int `yaml:"window_days"`
		PerDayLimit int `yaml:"per_day_limit"`
	} `yaml:"sentiment"`
	Classifier struct {
		Endpoint       string `yaml:"endpoint"`
		APIKeyEnv      string `yaml:"api_key_env"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"classifier"`
	News struct {
		Provider          string  `yaml:"provider"`
		Fallback          string  `yaml:"fallback"`
		BaseURL           string  `yaml:"base_url"`
		RSSURL            string  `yaml:"rss_url"`
		APIKeyEnv         string  `yaml:"api_key_env"`
		Language          string  `yaml:"language"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"news"`
	Prices struct {
		Source            string  `yaml:"source"`
		StartDate         string  `yaml:"start_date"`
		BaseURL           string  `yaml:"base_url"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Kite              struct {
			APIKeyEnv      string         `yaml:"api_key_env"`
			AccessTokenEnv string         `yaml:"access_token_env"`
			Instruments    map[string]int `yaml:"instruments"`
		} `yaml:"kite"`
	} `yaml:"prices"`
	Prediction struct {
		TimeSteps   int      `yaml:"time_steps"`
		Variants    []string `yaml:"variants"`
		ModelServer struct {
			BaseURL        string `yaml:"base_url"`
			NameTemplate   string `yaml:"name_template"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
		} `yaml:"model_server"`
	} `yaml:"prediction"`
	Sync struct {
		Enabled   bool   `yaml:"enabled"`
		RepoDir   string `yaml:"repo_dir"`
		RemoteURL string `yaml:"remote_url"`
		TokenEnv  string `yaml:"token_env"`
	} `yaml:"sync"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		SampleRatio float64 `yaml:"sample_ratio"`
		Pretty      bool    `yaml:"pretty"`
	} `yaml:"tracing"`
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	for sym, query := range c.Symbols {
		if strings.TrimSpace(sym) == "" {
			return errors.New("symbols contains an empty ticker")
		}
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("symbol '%s' has no news query", sym)
		}
	}
	if _, err := artifacts.ParseCutover(c.Schedule.CutoverUTC); err != nil {
		return fmt.Errorf("schedule.cutover_utc: %v", err)
	}
	for _, st := range c.Pipeline.Stages {
		switch st {
		case StageDownload, StageSentiment, StagePredict, StageSync:
		default:
			return fmt.Errorf("invalid stage '%s': must be one of download, sentiment, predict, sync", st)
		}
	}
	for st, p := range c.Pipeline.OnFailure {
		if p != PolicyContinue && p != PolicyAbort {
			return fmt.Errorf("pipeline.on_failure.%s must be 'continue' or 'abort', got '%s'", st, p)
		}
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	if c.Sentiment.WindowDays <= 0 || c.Sentiment.PerDayLimit <= 0 {
		return errors.New("sentiment.window_days and sentiment.per_day_limit must be positive")
	}
	if c.News.Provider != "newsapi" && c.News.Provider != "rss" {
		return fmt.Errorf("invalid news.provider '%s': must be 'newsapi' or 'rss'", c.News.Provider)
	}
	if c.News.Fallback != "" && c.News.Fallback != "rss" && c.News.Fallback != "newsapi" {
		return fmt.Errorf("invalid news.fallback '%s'", c.News.Fallback)
	}
	if c.Prices.Source != "yahoo" && c.Prices.Source != "kite" {
		return fmt.Errorf("invalid prices.source '%s': must be 'yahoo' or 'kite'", c.Prices.Source)
	}
	if _, err := time.Parse(types.DateLayout, c.Prices.StartDate); err != nil {
		return fmt.Errorf("prices.start_date must be YYYY-MM-DD, got '%s'", c.Prices.StartDate)
	}
	if c.Prices.RequestsPerSecond < 0 {
		return fmt.Errorf("prices.requests_per_second cannot be negative, got %v", c.Prices.RequestsPerSecond)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	if c.Prediction.TimeSteps <= 0 {
		return fmt.Errorf("prediction.time_steps must be positive, got %d", c.Prediction.TimeSteps)
	}
	for _, v := range c.Prediction.Variants {
		if _, err := types.ParseVariant(v); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads, defaults and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML bytes, applies defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	if v := os.Getenv("LOG_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: config validation failed: %v", types.ErrValidation, err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if len(c.Symbols) > 0 {
		upper := make(map[string]string, len(c.Symbols))
		for sym, q := range c.Symbols {
			upper[strings.ToUpper(strings.TrimSpace(sym))] = q
		}
		c.Symbols = upper
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.StatusLog == "" {
		c.StatusLog = "logs/scheduler_log.csv"
	}
	if c.Schedule.Cycle == "" {
		c.Schedule.Cycle = "30 2 * * *"
	}
	if c.Schedule.CutoverUTC == "" {
		c.Schedule.CutoverUTC = "02:00"
	}
	if len(c.Pipeline.Stages) == 0 {
		c.Pipeline.Stages = []string{StageDownload, StageSentiment, StagePredict, StageSync}
	}
	if c.Pipeline.Concurrency == 0 {
		c.Pipeline.Concurrency = 4
	}
	if c.Sentiment.WindowDays == 0 {
		c.Sentiment.WindowDays = 7
	}
	if c.Sentiment.PerDayLimit == 0 {
		c.Sentiment.PerDayLimit = 14
	}
	if c.Classifier.Endpoint == "" {
		c.Classifier.Endpoint = "https://api-inference.huggingface.co/models/ProsusAI/finbert"
	}
	if c.Classifier.APIKeyEnv == "" {
		c.Classifier.APIKeyEnv = "HF_API_TOKEN"
	}
	if c.Classifier.TimeoutSeconds == 0 {
		c.Classifier.TimeoutSeconds = 120
	}
	if c.News.Provider == "" {
		c.News.Provider = "newsapi"
	}
	if c.News.BaseURL == "" {
		c.News.BaseURL = "https://newsapi.org"
	}
	if c.News.RSSURL == "" {
		c.News.RSSURL = "https://news.google.com/rss/search"
	}
	if c.News.APIKeyEnv == "" {
		c.News.APIKeyEnv = "NEWS_API_KEY"
	}
	if c.News.Language == "" {
		c.News.Language = "en"
	}
	if c.News.RequestsPerSecond == 0 {
		c.News.RequestsPerSecond = 5
	}
	if c.Prices.Source == "" {
		c.Prices.Source = "yahoo"
	}
	if c.Prices.StartDate == "" {
		c.Prices.StartDate = "2000-01-01"
	}
	if c.Prices.BaseURL == "" {
		c.Prices.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Prices.RequestsPerSecond == 0 {
		c.Prices.RequestsPerSecond = 2
	}
	if c.Prices.Kite.APIKeyEnv == "" {
		c.Prices.Kite.APIKeyEnv = "KITE_API_KEY"
	}
	if c.Prices.Kite.AccessTokenEnv == "" {
		c.Prices.Kite.AccessTokenEnv = "KITE_ACCESS_TOKEN"
	}
	if c.Prediction.TimeSteps == 0 {
		c.Prediction.TimeSteps = 60
	}
	if len(c.Prediction.Variants) == 0 {
		c.Prediction.Variants = []string{string(types.VariantPrice), string(types.VariantSentiment)}
	}
	if c.Prediction.ModelServer.BaseURL == "" {
		c.Prediction.ModelServer.BaseURL = "http://localhost:8501"
	}
	if c.Prediction.ModelServer.NameTemplate == "" {
		c.Prediction.ModelServer.NameTemplate = "{symbol}_{variant}"
	}
	if c.Prediction.ModelServer.TimeoutSeconds == 0 {
		c.Prediction.ModelServer.TimeoutSeconds = 60
	}
	if c.Sync.RepoDir == "" {
		c.Sync.RepoDir = "."
	}
	if c.Sync.TokenEnv == "" {
		c.Sync.TokenEnv = "GIT_TOKEN"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

// SortedSymbols returns the tracked tickers in a stable order.
func (c *Config) SortedSymbols() []string {
	out := make([]string, 0, len(c.Symbols))
	for s := range c.Symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FailurePolicy returns the continuation policy of a stage.
func (c *Config) FailurePolicy(stage string) string {
	if p, ok := c.Pipeline.OnFailure[stage]; ok {
		return p
	}
	return PolicyContinue
}

// PredictionVariants returns the configured variants, parsed.
func (c *Config) PredictionVariants() []types.Variant {
	out := make([]types.Variant, 0, len(c.Prediction.Variants))
	for _, v := range c.Prediction.Variants {
		if pv, err := types.ParseVariant(v); err == nil {
			out = append(out, pv)
		}
	}
	return out
}

// Cutover returns the parsed schedule.cutover_utc. Valid after LoadConfig.
func (c *Config) Cutover() artifacts.Cutover {
	co, _ := artifacts.ParseCutover(c.Schedule.CutoverUTC)
	return co
}

// PriceStart returns the parsed prices.start_date. Valid after LoadConfig.
func (c *Config) PriceStart() time.Time {
	start, _ := time.Parse(types.DateLayout, c.Prices.StartDate)
	return start
}
