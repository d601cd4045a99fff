package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/types"
)

// historicalSource is the subset of the Kite Connect client used here.
type historicalSource interface {
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// maxDayWindow is the widest range Kite Connect serves for day candles.
const maxDayWindow = 2000

// KiteDownloader pulls daily candles from Zerodha Kite Connect. Symbols are
// mapped to instrument tokens through configuration.
type KiteDownloader struct {
	kc          historicalSource
	instruments map[string]int
}

var _ interfaces.PriceDownloader = (*KiteDownloader)(nil)

func NewKiteDownloader(apiKey, accessToken string, instruments map[string]int) *KiteDownloader {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return newKiteDownloader(kc, instruments)
}

func newKiteDownloader(src historicalSource, instruments map[string]int) *KiteDownloader {
	m := make(map[string]int, len(instruments))
	for sym, tok := range instruments {
		m[strings.ToUpper(sym)] = tok
	}
	return &KiteDownloader{kc: src, instruments: m}
}

func (k *KiteDownloader) Download(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	token, ok := k.instruments[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: no kite instrument token for %s", types.ErrValidation, symbol)
	}

	var bars []types.PriceBar
	last := ""
	for _, w := range dayWindows(from, to, maxDayWindow) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := k.kc.GetHistoricalData(token, "day", w[0], w[1], false, false)
		if err != nil {
			return nil, fmt.Errorf("%w: kite historical data for %s: %v", types.ErrUpstream, symbol, err)
		}
		for _, c := range candles {
			date := c.Date.Format(types.DateLayout) // exchange-local trading day
			if date <= last {
				continue
			}
			last = date
			bars = append(bars, types.PriceBar{
				Date:   date,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: int64(c.Volume),
			})
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data returned for %s", types.ErrUpstream, symbol)
	}
	return bars, nil
}

// dayWindows splits [from, to] into consecutive ranges of at most size days.
// Adjacent windows share no day.
func dayWindows(from, to time.Time, size int) [][2]time.Time {
	var out [][2]time.Time
	for start := from; !start.After(to); {
		end := start.AddDate(0, 0, size-1)
		if end.After(to) {
			end = to
		}
		out = append(out, [2]time.Time{start, end})
		start = end.AddDate(0, 0, 1)
	}
	return out
}
