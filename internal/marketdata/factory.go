package marketdata

import (
	"fmt"
	"os"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

// NewDownloader builds the configured price source.
func NewDownloader(cfg *store.Config) (interfaces.PriceDownloader, error) {
	switch cfg.Prices.Source {
	case "yahoo":
		return NewYahooDownloader(cfg.Prices.BaseURL, cfg.Prices.RequestsPerSecond), nil
	case "kite":
		apiKey := os.Getenv(cfg.Prices.Kite.APIKeyEnv)
		token := os.Getenv(cfg.Prices.Kite.AccessTokenEnv)
		if apiKey == "" || token == "" {
			return nil, fmt.Errorf("%w: %s and %s must be set for the kite price source",
				types.ErrValidation, cfg.Prices.Kite.APIKeyEnv, cfg.Prices.Kite.AccessTokenEnv)
		}
		return NewKiteDownloader(apiKey, token, cfg.Prices.Kite.Instruments), nil
	}
	return nil, fmt.Errorf("%w: unknown price source %q", types.ErrValidation, cfg.Prices.Source)
}
