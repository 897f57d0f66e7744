// Package alphavantage adapts the Alpha Vantage company OVERVIEW endpoint
// to the fundamentals.Provider interface. The free tier is tightly limited
// (25 calls/day, 5/minute) and has no batch lookup, so FetchMany is a
// bounded-concurrency loop of single lookups that stops issuing requests
// the moment quota runs out.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/quota"
	"foliodash/internal/httpx"
)

const (
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// Free-tier limits published by Alpha Vantage.
	DefaultPerMinute = 5
	DefaultPerDay    = 25

	confidence = 90
)

type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Limits  quota.Limits
	// MaxConcurrency bounds parallel lookups in FetchMany. Defaults to 2;
	// the per-minute quota makes wider fan-out pointless.
	MaxConcurrency int
}

type Client struct {
	cfg     Config
	client  *httpx.Client
	tracker *quota.Tracker
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(cfg Config, hc *httpx.Client, tracker *quota.Tracker, log zerolog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "alphavantage"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Limits == (quota.Limits{}) {
		cfg.Limits = quota.Limits{PerMinute: DefaultPerMinute, PerDay: DefaultPerDay}
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 2
	}
	tracker.SetLimits(cfg.Name, cfg.Limits)
	// Pace just under the per-minute window so bursts cannot trip upstream
	// throttling before the tracker refuses the call.
	rps := rate.Limit(1)
	if cfg.Limits.PerMinute > 0 {
		rps = rate.Limit(float64(cfg.Limits.PerMinute) / 60.0)
	}
	return &Client{
		cfg:     cfg,
		client:  hc,
		tracker: tracker,
		limiter: rate.NewLimiter(rps, 1),
		log:     log.With().Str("provider", cfg.Name).Logger(),
	}
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) IsAvailable() bool { return c.tracker.CanCall(c.cfg.Name) }

func (c *Client) RateLimitStatus() quota.Status { return c.tracker.Status(c.cfg.Name) }

// overview mirrors the OVERVIEW response. Every numeric field arrives as a
// string and may hold the sentinel "None" or "-".
type overview struct {
	Symbol        string `json:"Symbol"`
	Name          string `json:"Name"`
	Exchange      string `json:"Exchange"`
	Country       string `json:"Country"`
	Sector        string `json:"Sector"`
	Industry      string `json:"Industry"`
	MarketCap     string `json:"MarketCapitalization"`
	PERatio       string `json:"PERatio"`
	EPS           string `json:"EPS"`
	DividendYield string `json:"DividendYield"`
	Beta          string `json:"Beta"`

	// Set instead of data when the key is throttled or invalid. Alpha
	// Vantage reports both with HTTP 200.
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (c *Client) FetchOne(ctx context.Context, ticker string) (*fundamentals.Record, error) {
	if !c.tracker.Reserve(c.cfg.Name) {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, fundamentals.ErrQuotaExceeded)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", "OVERVIEW")
	q.Set("symbol", ticker)
	q.Set("apikey", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("ticker", ticker).Msg("overview request")
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &fundamentals.APIError{
			Provider:   c.cfg.Name,
			Endpoint:   c.cfg.BaseURL,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(b)),
		}
	}

	var ov overview
	if err := json.NewDecoder(resp.Body).Decode(&ov); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", c.cfg.Name, err)
	}
	if msg := throttleMessage(ov); msg != "" {
		c.log.Warn().Str("detail", msg).Msg("throttled upstream")
		return nil, fmt.Errorf("%s: %s: %w", c.cfg.Name, msg, fundamentals.ErrQuotaExceeded)
	}
	// An empty object is the provider's way of confirming it has no data
	// for the symbol.
	if ov.Symbol == "" && ov.Name == "" {
		return nil, nil
	}
	return c.normalize(ov), nil
}

func (c *Client) FetchMany(ctx context.Context, tickers []string) (map[string]*fundamentals.Record, error) {
	out := make(map[string]*fundamentals.Record, len(tickers))
	var (
		mu       sync.Mutex
		quotaHit bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)
	for _, t := range tickers {
		mu.Lock()
		stop := quotaHit
		mu.Unlock()
		if stop {
			break
		}
		g.Go(func() error {
			rec, err := c.FetchOne(gctx, t)
			if err != nil {
				if isQuota(err) {
					mu.Lock()
					quotaHit = true
					mu.Unlock()
				} else {
					c.log.Warn().Str("ticker", t).Err(err).Msg("lookup failed")
				}
				return nil // best-effort: absence marks the failure
			}
			mu.Lock()
			out[t] = rec // nil = confirmed not found
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 && quotaHit {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, fundamentals.ErrQuotaExceeded)
	}
	return out, nil
}

func (c *Client) normalize(ov overview) *fundamentals.Record {
	return &fundamentals.Record{
		Ticker:          fundamentals.NormalizeTicker(ov.Symbol),
		CompanyName:     strings.TrimSpace(ov.Name),
		Sector:          titleCase(ov.Sector),
		Industry:        titleCase(ov.Industry),
		Country:         strings.TrimSpace(ov.Country),
		Exchange:        strings.TrimSpace(ov.Exchange),
		MarketCap:       fundamentals.ParseOptionalNumber(ov.MarketCap),
		PERatio:         fundamentals.ParseOptionalNumber(ov.PERatio),
		EPS:             fundamentals.ParseOptionalNumber(ov.EPS),
		DividendYield:   fundamentals.ParseOptionalNumber(ov.DividendYield),
		Beta:            fundamentals.ParseOptionalNumber(ov.Beta),
		SourceProvider:  c.cfg.Name,
		ConfidenceScore: confidence,
		RetrievedAt:     time.Now().UTC(),
	}
}

func throttleMessage(ov overview) string {
	if strings.TrimSpace(ov.Note) != "" {
		return strings.TrimSpace(ov.Note)
	}
	if msg := strings.TrimSpace(ov.Information); msg != "" && strings.Contains(strings.ToLower(msg), "rate limit") {
		return msg
	}
	return ""
}

func isQuota(err error) bool {
	return errors.Is(err, fundamentals.ErrQuotaExceeded)
}

// titleCase converts Alpha Vantage's SHOUTED sector names ("TECHNOLOGY")
// into the display casing the rest of the pipeline uses.
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s != strings.ToUpper(s) {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
