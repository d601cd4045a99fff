package news

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"stock-forecaster/internal/api"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/types"
)

// NewsAPIFetcher queries the NewsAPI "everything" endpoint for one day.
type NewsAPIFetcher struct {
	client   *api.Client
	apiKey   string
	language string
}

var _ interfaces.NewsFetcher = (*NewsAPIFetcher)(nil)

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func NewNewsAPIFetcher(baseURL, apiKey, language string, requestsPerSecond float64) *NewsAPIFetcher {
	return &NewsAPIFetcher{
		client: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(30*time.Second),
			api.WithRateLimit(requestsPerSecond),
			api.WithLogging(true),
		),
		apiKey:   apiKey,
		language: language,
	}
}

func (f *NewsAPIFetcher) FetchArticles(ctx context.Context, query string, day time.Time, limit int) ([]types.Article, error) {
	d := day.Format(types.DateLayout)
	params := url.Values{}
	params.Set("q", query)
	params.Set("from", d)
	params.Set("to", d)
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("language", f.language)
	params.Set("apiKey", f.apiKey)

	var resp newsAPIResponse
	if err := f.client.GetJSON(ctx, "/v2/everything", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("%w: newsapi %s: %s", types.ErrUpstream, resp.Code, resp.Message)
	}

	out := make([]types.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if limit > 0 && len(out) >= limit {
			break
		}
		date := ""
		if len(a.PublishedAt) >= 10 {
			date = a.PublishedAt[:10]
		}
		out = append(out, types.Article{Date: date, Title: a.Title, Description: a.Description})
	}
	return out, nil
}
