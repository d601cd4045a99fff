package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock-forecaster/internal/api"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/types"
)

const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooDownloader pulls daily bars from the Yahoo Finance chart API.
type YahooDownloader struct {
	client *api.Client
}

var _ interfaces.PriceDownloader = (*YahooDownloader)(nil)

func NewYahooDownloader(baseURL string, requestsPerSecond float64) *YahooDownloader {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &YahooDownloader{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(baseURL, "/")),
			api.WithHeaders(api.YahooFinanceHeaders()),
			api.WithRateLimit(requestsPerSecond),
			api.WithTimeout(60*time.Second),
		),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				GMTOffset            int    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooDownloader) Download(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	params.Set("period2", strconv.FormatInt(to.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	resp, err := y.client.DoWithRetry(ctx, api.Request{
		Method: "GET",
		Path:   "/v8/finance/chart/" + url.PathEscape(symbol),
		Query:  params,
	}, nil)
	if err != nil {
		return nil, err
	}
	var cr chartResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return nil, err
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo %s: %s", types.ErrUpstream, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no data returned for %s", types.ErrUpstream, symbol)
	}

	res := cr.Chart.Result[0]
	q := res.Indicators.Quote[0]
	loc := exchangeLocation(res.Meta.ExchangeTimezoneName, res.Meta.GMTOffset)
	bars := make([]types.PriceBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		cl := at(q.Close, i)
		if cl == nil {
			continue
		}
		bar := types.PriceBar{
			Date:  time.Unix(ts, 0).In(loc).Format(types.DateLayout),
			Close: *cl,
			Open:  value(at(q.Open, i)),
			High:  value(at(q.High, i)),
			Low:   value(at(q.Low, i)),
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			bar.Volume = *q.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data returned for %s", types.ErrUpstream, symbol)
	}
	return bars, nil
}

// exchangeLocation resolves the zone a bar's trading day is labelled in.
// The IANA name wins, then the fixed offset, then UTC.
func exchangeLocation(name string, offset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if offset != 0 {
		return time.FixedZone("", offset)
	}
	return time.UTC
}

func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
