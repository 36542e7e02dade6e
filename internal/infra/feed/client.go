// Package feed provides the client for the upstream feed service.
// It speaks both the service's JSON endpoints and its Atom/RSS feeds
// (parsed with gofeed) with reliability patterns around every call.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"genesis-connector/internal/resilience/circuitbreaker"
	"genesis-connector/internal/resilience/retry"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
)

const userAgent = "Genesis-Connector/1.0.0"

// maxFeedBodySize bounds JSON endpoint responses.
const maxFeedBodySize = 32 << 20

// ErrFeedUnavailable is returned when the upstream feed service cannot be
// reached at all (connection-level failures, including after the last
// retry). A fetch whose response carries a failing HTTP status returns a
// *retry.HTTPError instead; Health alone also reports a 5xx answer as
// ErrFeedUnavailable. Callers treat ErrFeedUnavailable as a
// dependency-down condition, not a per-article failure.
var ErrFeedUnavailable = errors.New("feed service unavailable")

// Article is a normalized feed entry. Missing ids are synthesized during
// normalization so ID is always non-empty when URL is.
type Article struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	MPName         string `json:"mp_name"`
	MPID           string `json:"mp_id"`
	PublishTime    int64  `json:"publish_time"` // Unix seconds
	Description    string `json:"description"`
	ContentSnippet string `json:"content_snippet"`
	Priority       int    `json:"priority"`
}

// Client fetches and normalizes articles from the upstream feed service.
// It includes circuit breaker and retry logic for improved reliability.
type Client struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewClient creates a feed client for the service at baseURL (no trailing
// slash) using the given HTTP client.
func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{
		baseURL:        baseURL,
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// Health checks that the upstream feed service answers at all. A single
// entry is enough; the body is discarded.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/feeds/all.atom?limit=1", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrFeedUnavailable, resp.StatusCode)
	}
	return nil
}

// Recent returns articles published since the given time via
// /articles/recent.json. The endpoint takes a millisecond epoch.
func (c *Client) Recent(ctx context.Context, since time.Time, limit int) ([]Article, error) {
	url := fmt.Sprintf("%s/articles/recent.json?since=%d&limit=%d",
		c.baseURL, since.UnixMilli(), limit)
	return c.fetchJSON(ctx, url)
}

// All returns the full recent article list from the service's combined
// Atom feed, falling back transparently to RSS (gofeed's universal parser
// handles both formats).
func (c *Client) All(ctx context.Context, limit int) ([]Article, error) {
	feedURL := fmt.Sprintf("%s/feeds/all.atom?limit=%d", c.baseURL, limit)

	var articles []Article
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doFetchFeed(ctx, feedURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", "feed-fetch"),
					slog.String("url", feedURL),
					slog.String("state", c.circuitBreaker.State().String()))
			}
			return err
		}
		articles = cbResult.([]Article)
		return nil
	})
	if retryErr != nil {
		return nil, wrapUnavailable(retryErr)
	}
	return articles, nil
}

// FeedArticles returns one publisher's articles, trying the JSON endpoints
// in order: /feeds/{id}/articles.json, then /feeds/{id}.json.
func (c *Client) FeedArticles(ctx context.Context, feedID string, limit int) ([]Article, error) {
	endpoints := []string{
		fmt.Sprintf("%s/feeds/%s/articles.json?limit=%d", c.baseURL, feedID, limit),
		fmt.Sprintf("%s/feeds/%s.json?limit=%d", c.baseURL, feedID, limit),
	}
	var lastErr error
	for _, url := range endpoints {
		articles, err := c.fetchJSON(ctx, url)
		if err == nil {
			return articles, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// doFetchFeed performs the actual Atom/RSS fetch without retry or circuit
// breaker, and normalizes the parsed entries.
func (c *Client) doFetchFeed(ctx context.Context, feedURL string) ([]Article, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = c.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &retry.HTTPError{StatusCode: httpErr.StatusCode, Message: httpErr.Status}
		}
		return nil, err
	}

	articles := make([]Article, 0, len(feed.Items))
	for _, it := range feed.Items {
		article, err := normalizeFeedItem(it)
		if err != nil {
			slog.Debug("skipping unnormalizable feed entry",
				slog.String("title", it.Title),
				slog.Any("error", err))
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// fetchJSON GETs a JSON article list with retry and circuit breaker and
// normalizes the entries.
func (c *Client) fetchJSON(ctx context.Context, url string) ([]Article, error) {
	var articles []Article
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doFetchJSON(ctx, url)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", "feed-fetch"),
					slog.String("url", url),
					slog.String("state", c.circuitBreaker.State().String()))
			}
			return err
		}
		articles = cbResult.([]Article)
		return nil
	})
	if retryErr != nil {
		return nil, wrapUnavailable(retryErr)
	}
	return articles, nil
}

func (c *Client) doFetchJSON(ctx context.Context, url string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodySize))
	if err != nil {
		return nil, err
	}
	return decodeJSONArticles(body)
}

// decodeJSONArticles accepts either a bare array or an object wrapping the
// list under "articles".
func decodeJSONArticles(body []byte) ([]Article, error) {
	var raw []rawArticle
	if err := json.Unmarshal(body, &raw); err != nil {
		var wrapper struct {
			Articles []rawArticle `json:"articles"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("malformed article list: %w", err)
		}
		raw = wrapper.Articles
	}

	articles := make([]Article, 0, len(raw))
	for i := range raw {
		article, err := normalizeRawArticle(&raw[i])
		if err != nil {
			slog.Debug("skipping unnormalizable article entry", slog.Any("error", err))
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// wrapUnavailable maps transport-level failures to ErrFeedUnavailable
// while letting HTTP status errors through unchanged.
func wrapUnavailable(err error) error {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
}
