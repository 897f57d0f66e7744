// Package positions converts raw brokerage position records into the
// canonical shape the enrichment pipeline works on, joins them with
// fundamentals, and computes portfolio weights and allocation breakdowns.
package positions

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"foliodash/internal/fundamentals"
)

// RawPosition is one record as the brokerage API reports it.
type RawPosition struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	Currency     string  `json:"currency"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// Position is the canonical shape after normalization.
type Position struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	CurrentPrice float64 `json:"current_price"`
	Currency     string  `json:"currency"`
	UnrealizedPL float64 `json:"unrealized_pl"`
	Region       string  `json:"region"`
}

// Account is the brokerage account summary.
type Account struct {
	TotalValue float64 `json:"total_value"`
	Cash       float64 `json:"cash"`
	Currency   string  `json:"currency"`
}

// Source is the brokerage position/account API boundary.
type Source interface {
	GetPositions(ctx context.Context) ([]RawPosition, error)
	GetAccount(ctx context.Context) (Account, error)
}

// Normalize converts raw records, dropping empty symbols and zero-quantity
// rows. Unrealized P&L is derived when the brokerage omits it.
func Normalize(raw []RawPosition) []Position {
	out := make([]Position, 0, len(raw))
	for _, r := range raw {
		ticker := fundamentals.NormalizeTicker(r.Symbol)
		if ticker == "" || r.Quantity == 0 {
			continue
		}
		p := Position{
			Ticker:       ticker,
			Quantity:     r.Quantity,
			AveragePrice: r.AverageCost,
			CurrentPrice: r.CurrentPrice,
			Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
			UnrealizedPL: r.UnrealizedPL,
			Region:       deriveRegion(ticker, r.Currency),
		}
		if p.UnrealizedPL == 0 && p.AveragePrice != 0 {
			p.UnrealizedPL = (p.CurrentPrice - p.AveragePrice) * p.Quantity
		}
		out = append(out, p)
	}
	return out
}

// Tickers extracts the enrichment key list, in position order.
func Tickers(ps []Position) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Ticker)
	}
	return out
}

// suffixRegion maps exchange suffixes to regions; the fundamentals record
// refines this once enrichment succeeds.
var suffixRegion = map[string]string{
	".AX": "Australia",
	".L":  "United Kingdom",
	".TO": "Canada",
	".V":  "Canada",
	".DE": "Germany",
	".F":  "Germany",
	".PA": "France",
	".AS": "Netherlands",
	".SW": "Switzerland",
	".HK": "Hong Kong",
	".T":  "Japan",
	".KS": "South Korea",
	".NZ": "New Zealand",
}

var currencyRegion = map[string]string{
	"USD": "United States",
	"CAD": "Canada",
	"GBP": "United Kingdom",
	"GBX": "United Kingdom",
	"EUR": "Europe",
	"CHF": "Switzerland",
	"AUD": "Australia",
	"NZD": "New Zealand",
	"JPY": "Japan",
	"HKD": "Hong Kong",
	"KRW": "South Korea",
}

func deriveRegion(ticker, currency string) string {
	if idx := strings.LastIndex(ticker, "."); idx > 0 {
		if region, ok := suffixRegion[ticker[idx:]]; ok {
			return region
		}
	}
	if region, ok := currencyRegion[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return region
	}
	return "Unknown"
}

// Dedup wraps a Source so concurrent callers share one in-flight request
// per key instead of issuing duplicates. Awaiting I/O yields control, so
// two dashboard panels asking for positions at once would otherwise both
// hit the brokerage API.
type Dedup struct {
	src Source
	sf  singleflight.Group
}

func NewDedup(src Source) *Dedup {
	return &Dedup{src: src}
}

func (d *Dedup) GetPositions(ctx context.Context) ([]RawPosition, error) {
	v, err, _ := d.sf.Do("positions", func() (any, error) {
		return d.src.GetPositions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]RawPosition), nil
}

func (d *Dedup) GetAccount(ctx context.Context) (Account, error) {
	v, err, _ := d.sf.Do("account", func() (any, error) {
		return d.src.GetAccount(ctx)
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

// SliceSource serves a fixed set of positions; used for the demo portfolio
// and in tests.
type SliceSource struct {
	Positions []RawPosition
	Account   Account
}

func (s *SliceSource) GetPositions(context.Context) ([]RawPosition, error) {
	return s.Positions, nil
}

func (s *SliceSource) GetAccount(context.Context) (Account, error) {
	return s.Account, nil
}
