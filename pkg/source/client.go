// Package source fetches single pages of the Part D spending dataset from
// the CMS data API, falling back through parameter naming strategies when
// the preferred one is rejected.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/cache"
	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/logging"
)

var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_source_requests_total",
		Help: "Total source requests by strategy and status",
	}, []string{"strategy", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "partd_source_request_duration_seconds",
		Help:    "Source request duration in seconds by strategy",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"strategy"})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partd_source_errors_total",
		Help: "Total source errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the Medicare Part D Spending by Drug dataset.
	DefaultBaseURL = "https://data.cms.gov/data-api/v1/dataset/7e0b4365-fd63-4a29-8f5e-e0ac9f66a81b/data"

	// DefaultUserAgent identifies the pipeline to the data API.
	DefaultUserAgent = "partd-savings/1.0 (+https://github.com/Sternrassler/partd-savings)"

	// DefaultTimeout bounds every single request.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the largest page the data API serves.
	MaxPageSize = 5000

	// maxBodyBytes guards against runaway responses.
	maxBodyBytes = 256 << 20
)

// PageCache stores raw page bodies. *cache.Manager satisfies it.
type PageCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is the dataset data endpoint. Existing query parameters are kept.
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxPageSize clamps the requested page size.
	MaxPageSize int

	// Strategies are tried in order for every page.
	Strategies []ParamStrategy

	// Cache is optional. Nil disables response caching.
	Cache PageCache

	// CacheTTL applies when the response carries no freshness headers.
	CacheTTL time.Duration

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns the configuration for the public CMS endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		UserAgent:   DefaultUserAgent,
		Timeout:     DefaultTimeout,
		MaxPageSize: MaxPageSize,
		Strategies:  DefaultStrategies(),
		CacheTTL:    cache.DefaultTTL,
	}
}

// Client fetches pages from the data API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one pagination strategy is required")
	}
	for _, s := range cfg.Strategies {
		if s.Name == "" || s.SizeParam == "" || s.OffsetParam == "" {
			return nil, fmt.Errorf("strategy %q is incomplete", s.Name)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentSource),
	}, nil
}

// Page is the outcome of fetching one page.
type Page struct {
	// Records are the rows in source order. Empty when every strategy failed.
	Records []dataset.RawRecord

	// Strategy names the strategy that produced Records.
	Strategy string

	// FromCache reports whether Records came from the page cache.
	FromCache bool

	// PageSize is the page size actually requested after clamping. A page
	// shorter than PageSize is the last one.
	PageSize int

	// Failures lists the strategies that failed, in the order tried.
	Failures []*SourceError
}

// Len returns the number of records on the page.
func (p Page) Len() int {
	return len(p.Records)
}

// Err returns nil when a strategy succeeded. Otherwise it wraps
// ErrAllStrategiesFailed together with every recorded failure.
func (p Page) Err() error {
	if p.Strategy != "" {
		return nil
	}
	errs := []error{ErrAllStrategiesFailed}
	for _, f := range p.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// PageSize clamps a requested page size to [1, MaxPageSize].
func (c *Client) PageSize(requested int) int {
	switch {
	case requested <= 0:
		return 1
	case requested > c.config.MaxPageSize:
		return c.config.MaxPageSize
	default:
		return requested
	}
}

// FetchPage retrieves up to pageSize records starting at offset.
// It never returns an error: when every strategy fails the page is empty
// and Page.Err describes why.
func (c *Client) FetchPage(ctx context.Context, pageSize, offset int) Page {
	pageSize = c.PageSize(pageSize)
	if offset < 0 {
		offset = 0
	}

	logger := c.logger.With().Int("offset", offset).Int("page_size", pageSize).Logger()

	page := withFallback(ctx, logger, c.config.Strategies, func(ctx context.Context, s ParamStrategy) ([]dataset.RawRecord, bool, *SourceError) {
		return c.attempt(ctx, logger, s, pageSize, offset)
	})
	page.PageSize = pageSize
	return page
}

// requestURL builds the URL for one strategy.
func (c *Client) requestURL(s ParamStrategy, pageSize, offset int) (*url.URL, url.Values) {
	u := *c.baseURL
	q := u.Query()
	s.Apply(q, pageSize, offset)
	u.RawQuery = q.Encode()
	return &u, q
}

// CacheEndpoint is the endpoint part of every cache key this client
// writes.
func (c *Client) CacheEndpoint() string {
	return c.baseURL.Host + c.baseURL.Path
}

func (c *Client) cacheKey(q url.Values) cache.CacheKey {
	return cache.CacheKey{
		Endpoint:    c.CacheEndpoint(),
		QueryParams: q,
	}
}

// attempt performs one strategy: cache lookup, request, decode, cache store.
func (c *Client) attempt(ctx context.Context, logger zerolog.Logger, s ParamStrategy, pageSize, offset int) ([]dataset.RawRecord, bool, *SourceError) {
	u, q := c.requestURL(s, pageSize, offset)
	key := c.cacheKey(q)

	if records, ok := c.fromCache(ctx, logger, s, key); ok {
		return records, true, nil
	}

	body, header, failure := c.get(ctx, logger, s, u)
	if failure != nil {
		return nil, false, failure
	}

	records, err := decodeRecords(body)
	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		sourceRequestsTotal.WithLabelValues(s.Name, "decode_error").Inc()
		return nil, false, &SourceError{
			Strategy:   s.Name,
			StatusCode: http.StatusOK,
			Class:      ErrorClassDecode,
			Message:    "response is not a JSON array of objects",
			Err:        err,
		}
	}

	sourceRequestsTotal.WithLabelValues(s.Name, "200").Inc()
	logger.Debug().
		Str("strategy", s.Name).
		Int("rows", len(records)).
		Msg("Page decoded")

	c.store(ctx, logger, s, key, body, header)
	return records, false, nil
}

// get executes the HTTP request. Only 2xx bodies are returned.
func (c *Client) get(ctx context.Context, logger zerolog.Logger, s ParamStrategy, u *url.URL) ([]byte, http.Header, *SourceError) {
	startTime := time.Now()
	defer func() {
		sourceRequestDuration.WithLabelValues(s.Name).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, &SourceError{
			Strategy: s.Name,
			Class:    ErrorClassClient,
			Message:  "create request",
			Err:      err,
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	logger.Debug().
		Str("strategy", s.Name).
		Str("url", u.String()).
		Msg("Executing source request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		sourceRequestsTotal.WithLabelValues(s.Name, "network_error").Inc()
		return nil, nil, &SourceError{
			Strategy: s.Name,
			Class:    ErrorClassNetwork,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		class := classifyStatus(resp.StatusCode)
		sourceErrorsTotal.WithLabelValues(string(class)).Inc()
		sourceRequestsTotal.WithLabelValues(s.Name, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, nil, &SourceError{
			Strategy:   s.Name,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		sourceRequestsTotal.WithLabelValues(s.Name, "network_error").Inc()
		return nil, nil, &SourceError{
			Strategy:   s.Name,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	return body, resp.Header, nil
}

// fromCache returns cached records for key. Cache errors are logged and
// treated as misses.
func (c *Client) fromCache(ctx context.Context, logger zerolog.Logger, s ParamStrategy, key cache.CacheKey) ([]dataset.RawRecord, bool) {
	if c.config.Cache == nil {
		return nil, false
	}

	entry, err := c.config.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Str("strategy", s.Name).Msg("Cache get error")
		}
		return nil, false
	}

	records, err := decodeRecords(entry.Data)
	if err != nil {
		logger.Warn().Err(err).Str("strategy", s.Name).Msg("Cached page is not decodable, refetching")
		return nil, false
	}

	sourceRequestsTotal.WithLabelValues(s.Name, "cache").Inc()
	logger.Debug().
		Str("strategy", s.Name).
		Int("rows", len(records)).
		Dur("ttl", entry.TTL()).
		Msg("Page served from cache")
	return records, true
}

// store writes a successful body to the cache. Errors are logged only.
func (c *Client) store(ctx context.Context, logger zerolog.Logger, s ParamStrategy, key cache.CacheKey, body []byte, header http.Header) {
	if c.config.Cache == nil {
		return
	}

	entry := cache.NewEntry(body, s.Name, header, c.config.CacheTTL)
	if entry.TTL() <= 0 {
		return
	}
	if err := c.config.Cache.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Str("strategy", s.Name).Msg("Failed to cache page")
		return
	}
	logger.Debug().
		Str("strategy", s.Name).
		Dur("ttl", entry.TTL()).
		Msg("Cached page")
}

// decodeRecords parses a JSON array of objects. Numbers are kept as
// json.Number so no precision is lost before normalization.
func decodeRecords(body []byte) ([]dataset.RawRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("expected JSON array")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var records []dataset.RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON array")
	}

	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
	}
	if records == nil {
		records = []dataset.RawRecord{}
	}
	return records, nil
}
