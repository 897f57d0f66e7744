// Package fmp adapts the Financial Modeling Prep company profile endpoint
// to the fundamentals.Provider interface. Unlike Alpha Vantage, FMP serves
// batched lookups (comma-joined symbols), so a whole portfolio usually
// costs a handful of quota units instead of one per ticker.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/quota"
)

const (
	DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

	// Free-tier daily allowance; FMP has no published minute window, the
	// limiter below just keeps requests polite.
	DefaultPerDay    = 250
	DefaultPerMinute = 10

	DefaultBatchSize = 25

	confidence = 80
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=fmp_test -destination=mock_http_client_test.go -source=fmp.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Limits  quota.Limits
	// BatchSize caps symbols per request; FMP truncates very long paths.
	BatchSize int
}

type Client struct {
	cfg        Config
	httpClient HTTPClient
	tracker    *quota.Tracker
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the transport, used by tests to stub responses.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(cfg Config, tracker *quota.Tracker, log zerolog.Logger, opts ...Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "fmp"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Limits == (quota.Limits{}) {
		cfg.Limits = quota.Limits{PerMinute: DefaultPerMinute, PerDay: DefaultPerDay}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	tracker.SetLimits(cfg.Name, cfg.Limits)
	rps := rate.Limit(2)
	if cfg.Limits.PerMinute > 0 {
		rps = rate.Limit(float64(cfg.Limits.PerMinute) / 60.0)
	}
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		tracker:    tracker,
		limiter:    rate.NewLimiter(rps, 1),
		log:        log.With().Str("provider", cfg.Name).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) IsAvailable() bool { return c.tracker.CanCall(c.cfg.Name) }

func (c *Client) RateLimitStatus() quota.Status { return c.tracker.Status(c.cfg.Name) }

func (c *Client) FetchOne(ctx context.Context, ticker string) (*fundamentals.Record, error) {
	out, err := c.FetchMany(ctx, []string{ticker})
	if err != nil {
		return nil, err
	}
	rec, ok := out[ticker]
	if !ok {
		return nil, fmt.Errorf("%s: no result for %s", c.cfg.Name, ticker)
	}
	return rec, nil
}

func (c *Client) FetchMany(ctx context.Context, tickers []string) (map[string]*fundamentals.Record, error) {
	out := make(map[string]*fundamentals.Record, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}
	var firstErr error
	for _, batch := range chunk(tickers, c.cfg.BatchSize) {
		if !c.tracker.Reserve(c.cfg.Name) {
			if len(out) == 0 {
				return nil, fmt.Errorf("%s: %w", c.cfg.Name, fundamentals.ErrQuotaExceeded)
			}
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return out, err
		}
		if err := c.fetchBatch(ctx, batch, out); err != nil {
			c.log.Warn().Strs("tickers", batch).Err(err).Msg("batch failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, batch []string, out map[string]*fundamentals.Record) error {
	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	reqURL := fmt.Sprintf("%s/profile/%s?%s", c.cfg.BaseURL, url.PathEscape(strings.Join(batch, ",")), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	c.log.Debug().Int("symbols", len(batch)).Msg("profile request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &fundamentals.APIError{
			Provider:   c.cfg.Name,
			Endpoint:   c.cfg.BaseURL + "/profile",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(b)),
		}
	}

	var profiles []profile
	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return fmt.Errorf("%s: decode: %w", c.cfg.Name, err)
	}

	bySymbol := make(map[string]profile, len(profiles))
	for _, p := range profiles {
		bySymbol[fundamentals.NormalizeTicker(p.Symbol)] = p
	}
	// The batch response is authoritative: a requested symbol missing from
	// a successful response is a confirmed not-found, not a failure.
	for _, t := range batch {
		if p, ok := bySymbol[fundamentals.NormalizeTicker(t)]; ok {
			out[t] = c.normalize(p)
		} else {
			out[t] = nil
		}
	}
	return nil
}

// profile mirrors the /profile response entry. Numeric fields occasionally
// arrive as strings, so they decode through optNum.
type profile struct {
	Symbol            string `json:"symbol"`
	CompanyName       string `json:"companyName"`
	Sector            string `json:"sector"`
	Industry          string `json:"industry"`
	Country           string `json:"country"`
	ExchangeShortName string `json:"exchangeShortName"`
	Price             optNum `json:"price"`
	MktCap            optNum `json:"mktCap"`
	Beta              optNum `json:"beta"`
	LastDiv           optNum `json:"lastDiv"`
}

func (c *Client) normalize(p profile) *fundamentals.Record {
	rec := &fundamentals.Record{
		Ticker:          fundamentals.NormalizeTicker(p.Symbol),
		CompanyName:     strings.TrimSpace(p.CompanyName),
		Sector:          strings.TrimSpace(p.Sector),
		Industry:        strings.TrimSpace(p.Industry),
		Country:         strings.TrimSpace(p.Country),
		Exchange:        strings.TrimSpace(p.ExchangeShortName),
		MarketCap:       p.MktCap.v,
		Beta:            p.Beta.v,
		SourceProvider:  c.cfg.Name,
		ConfidenceScore: confidence,
		RetrievedAt:     time.Now().UTC(),
	}
	// The profile carries the annual dividend in currency units, not a
	// yield; derive the percentage when a price is present.
	if p.LastDiv.v != nil && p.Price.v != nil && *p.Price.v > 0 {
		rec.DividendYield = fundamentals.Float(*p.LastDiv.v / *p.Price.v)
	}
	return rec
}

// optNum decodes a number that may be a JSON number, a quoted number, a
// sentinel string, or null. Sentinels become nil, never zero.
type optNum struct {
	v *float64
}

func (o *optNum) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		o.v = &f
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.v = fundamentals.ParseOptionalNumber(s)
		return nil
	}
	o.v = nil
	return nil
}

func chunk(in []string, size int) [][]string {
	if size <= 0 || len(in) <= size {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j])
	}
	return out
}
