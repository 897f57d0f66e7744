package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"foliodash/internal/fundamentals/quota"
)

// Record is the normalized company-fundamentals shape returned by all
// providers. Optional numeric fields are nil when the upstream reported a
// missing-value sentinel ("None", "-", empty); they are never defaulted to
// zero. Records are immutable once created; a newer fetch supersedes rather
// than mutates.
type Record struct {
	Ticker          string    `json:"ticker"`
	CompanyName     string    `json:"company_name"`
	Sector          string    `json:"sector"`
	Industry        string    `json:"industry"`
	Country         string    `json:"country"`
	Exchange        string    `json:"exchange"`
	MarketCap       *float64  `json:"market_cap,omitempty"`
	PERatio         *float64  `json:"pe_ratio,omitempty"`
	EPS             *float64  `json:"eps,omitempty"`
	DividendYield   *float64  `json:"dividend_yield,omitempty"`
	Beta            *float64  `json:"beta,omitempty"`
	SourceProvider  string    `json:"source_provider"`
	ConfidenceScore int       `json:"confidence_score"`
	RetrievedAt     time.Time `json:"retrieved_at"`
}

// Provider is implemented by each upstream fundamentals source.
//
// FetchOne returns (nil, nil) when the provider confirms it has no data for
// the ticker; that is distinct from an error, which means the lookup failed
// and may be retried later.
//
// FetchMany is best-effort: a nil map value means confirmed-not-found, a
// ticker absent from the map means that lookup failed. The call as a whole
// only errors when nothing could be attempted (e.g. quota exhausted before
// the first request).
type Provider interface {
	Name() string
	FetchOne(ctx context.Context, ticker string) (*Record, error)
	FetchMany(ctx context.Context, tickers []string) (map[string]*Record, error)
	IsAvailable() bool
	RateLimitStatus() quota.Status
}

// ErrQuotaExceeded marks a provider-level rate-limit rejection, either a 429
// or an internally detected limit. The aggregator skips to the next provider
// instead of retrying; the fallback policy fails fast instead of backing off.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// ErrNotFound marks a provider-confirmed "no data for this ticker".
var ErrNotFound = errors.New("ticker not found")

// APIError is a non-2xx or transport-level failure from a provider endpoint.
// It classifies as transient unless the status is 429.
type APIError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s -> %d: %s", e.Provider, e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == 429 {
		return ErrQuotaExceeded
	}
	return nil
}

// ParseOptionalNumber parses a numeric field that providers may report with
// a missing-value sentinel. It returns nil for absent, never zero.
func ParseOptionalNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "none", "null", "n/a", "na", "-", "--":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 { return &v }

// NormalizeTicker canonicalizes a raw symbol: trimmed, upper-cased, with
// internal whitespace removed. Exchange suffixes (".AX", ".L") are kept as
// part of the symbol since providers key on them.
func NormalizeTicker(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.Join(strings.Fields(s), "")
}
