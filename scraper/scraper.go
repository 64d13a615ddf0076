package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/appchangelog/config"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Fetcher retrieves store pages one at a time through a colly collector.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     *lru.Cache[string, []byte]
	Metrics   *Metrics
}

// NewFetcher builds a fetcher configured from cfg. A nil metrics disables
// instrumentation.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// Status checks happen in Fetch so every 2xx counts as success.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch downloads the page behind storeURL over plain HTTP and returns its
// body. Every failure is reported as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, storeURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail(storeURL, err)
	}

	target, err := downgradeScheme(storeURL)
	if err != nil {
		return nil, f.fail(storeURL, err)
	}

	if f.cache != nil {
		if body, ok := f.cache.Get(target); ok {
			f.Metrics.IncRequest("cache")
			slog.Debug("page cache hit", slog.String("url", target))
			return body, nil
		}
	}

	var (
		body       []byte
		statusCode int
	)
	c := f.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	f.Metrics.IncRequest("network")
	start := time.Now()
	visitErr := c.Visit(target)
	f.Metrics.ObserveDuration(time.Since(start))

	if visitErr != nil {
		return nil, f.fail(target, classifyError(visitErr, statusCode))
	}
	if statusCode < http.StatusOK || statusCode > 299 {
		return nil, f.fail(target, classifyError(nil, statusCode))
	}
	if body == nil {
		return nil, f.fail(target, fmt.Errorf("no response received"))
	}

	if f.cache != nil {
		f.cache.Add(target, body)
	}
	return body, nil
}

func (f *Fetcher) fail(target string, err error) *FetchError {
	fetchErr := &FetchError{URL: target, Err: err}
	f.Metrics.IncFetchError(fetchErr.Class())
	return fetchErr
}

// downgradeScheme rewrites an http(s) store URL to plain http.
func downgradeScheme(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse store url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("store url must include a host")
	}
	parsed.Scheme = "http"
	return parsed.String(), nil
}

// WithTransport replaces the HTTP transport used for page requests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}
