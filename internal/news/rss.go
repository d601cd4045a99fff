package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/types"
)

const DefaultRSSURL = "https://news.google.com/rss/search"

// RSSFetcher reads a Google News style RSS search feed restricted to one day.
type RSSFetcher struct {
	feedURL string
	timeout time.Duration
}

var _ interfaces.NewsFetcher = (*RSSFetcher)(nil)

func NewRSSFetcher(feedURL string, timeout time.Duration) *RSSFetcher {
	if feedURL == "" {
		feedURL = DefaultRSSURL
	}
	return &RSSFetcher{feedURL: feedURL, timeout: timeout}
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

func parsePubDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(types.DateLayout)
		}
	}
	return ""
}

func (f *RSSFetcher) searchURL(query string, day time.Time) string {
	q := fmt.Sprintf("%s after:%s before:%s", query,
		day.Format(types.DateLayout), day.AddDate(0, 0, 1).Format(types.DateLayout))
	params := url.Values{}
	params.Set("q", q)
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")
	return f.feedURL + "?" + params.Encode()
}

func (f *RSSFetcher) FetchArticles(ctx context.Context, query string, day time.Time, limit int) ([]types.Article, error) {
	articles := []types.Article{}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(f.feedURL)),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	})

	c.OnXML("//item", func(e *colly.XMLElement) {
		if limit > 0 && len(articles) >= limit {
			return
		}
		articles = append(articles, types.Article{
			Date:        parsePubDate(e.ChildText("pubDate")),
			Title:       e.ChildText("title"),
			Description: StripHTML(e.ChildText("description")),
		})
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
		logger.Warn(ctx, "RSS fetch error", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	if err := c.Visit(f.searchURL(query, day)); err != nil {
		return nil, fmt.Errorf("%w: rss visit: %v", types.ErrUpstream, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, fmt.Errorf("%w: rss: %v", types.ErrUpstream, visitErr)
	}
	return articles, nil
}

func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
