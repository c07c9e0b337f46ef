// Package price provides the live WLD price.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/wldsell/service/metrics"
	"github.com/itchyny/gojq"
	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when no price has ever been fetched.
var ErrNoPrice = errors.New("no price available")

// Price is one observation of the WLD price.
type Price struct {
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
}

// Source returns the current price.
type Source interface {
	Current(ctx context.Context) (Price, error)
}

// HTTPSource fetches a JSON document and extracts the price with a jq
// expression, e.g. `.["worldcoin-wld"].usd` for CoinGecko.
type HTTPSource struct {
	url        string
	code       *gojq.Code
	httpClient *http.Client
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewHTTPSource compiles expr and returns a source reading from url.
func NewHTTPSource(url, expr string, httpClient *http.Client, m *metrics.Metrics) (*HTTPSource, error) {
	code, err := compile(expr)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		url:        url,
		code:       code,
		httpClient: httpClient,
		metrics:    m,
		now:        time.Now,
	}, nil
}

func compile(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression %q: %w", expr, err)
	}
	return code, nil
}

// Current fetches the price from upstream.
func (s *HTTPSource) Current(ctx context.Context) (Price, error) {
	start := time.Now()
	p, err := s.fetch(ctx)
	if s.metrics != nil {
		f, _ := p.Price.Float64()
		s.metrics.RecordPriceFetch(time.Since(start).Seconds(), f, err)
	}
	return p, err
}

func (s *HTTPSource) fetch(ctx context.Context) (Price, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Price{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Price{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Price{}, fmt.Errorf("price source returned status %d: %s", resp.StatusCode, string(body))
	}

	var doc any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Price{}, fmt.Errorf("failed to decode price document: %w", err)
	}

	value, err := Extract(s.code, doc)
	if err != nil {
		return Price{}, err
	}

	return Price{
		Symbol:    "WLD",
		Currency:  "USD",
		Price:     value,
		FetchedAt: s.now().UTC(),
	}, nil
}

// Extract runs code against doc and converts the first result to a
// positive decimal.
func Extract(code *gojq.Code, doc any) (decimal.Decimal, error) {
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return decimal.Zero, fmt.Errorf("jq expression produced no result")
	}
	if err, isErr := v.(error); isErr {
		return decimal.Zero, fmt.Errorf("jq expression failed: %w", err)
	}

	var d decimal.Decimal
	var err error
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case string:
		d, err = decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("jq result %v (%T) is not a number", v, v)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %v: %w", v, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be positive, got %s", d)
	}
	return d, nil
}

// CachedSource serves a cached price for ttl. When upstream fails it
// keeps serving the last good price, marked stale.
type CachedSource struct {
	upstream Source
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	last    Price
	hasLast bool
}

// NewCachedSource wraps upstream with a ttl cache.
func NewCachedSource(upstream Source, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &CachedSource{
		upstream: upstream,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Current returns the cached price, refreshing it when older than ttl.
func (c *CachedSource) Current(ctx context.Context) (Price, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasLast && c.now().Sub(c.last.FetchedAt) < c.ttl {
		return c.last, nil
	}

	p, err := c.upstream.Current(ctx)
	if err != nil {
		if !c.hasLast {
			return Price{}, fmt.Errorf("%w: %v", ErrNoPrice, err)
		}
		c.logger.WarnContext(ctx, "price refresh failed, serving last price",
			"last_fetched_at", c.last.FetchedAt,
			"error", err,
		)
		stale := c.last
		stale.Stale = true
		return stale, nil
	}

	c.last = p
	c.hasLast = true
	return p, nil
}

// Poller periodically reads a Source and hands every fresh price to OnTick.
type Poller struct {
	source   Source
	interval time.Duration
	onTick   func(ctx context.Context, p Price)
	logger   *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(source Source, interval time.Duration, onTick func(ctx context.Context, p Price), logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Poller{
		source:   source,
		interval: interval,
		onTick:   onTick,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last time.Time
	for {
		price, err := p.source.Current(ctx)
		switch {
		case err != nil:
			p.logger.WarnContext(ctx, "price poll failed", "error", err)
		case !price.Stale && price.FetchedAt.After(last):
			last = price.FetchedAt
			p.onTick(ctx, price)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
