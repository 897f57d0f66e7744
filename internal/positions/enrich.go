package positions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/aggregate"
	"foliodash/internal/fundamentals/cache"
	"foliodash/internal/fundamentals/fallback"
)

// EnrichedPosition joins a brokerage position with its fundamentals record
// (nil when unavailable) plus derived dashboard fields. Weight is the share
// of total portfolio market value, in percent; weights across a portfolio
// sum to ~100 when total value is positive.
type EnrichedPosition struct {
	Position
	Fundamentals *fundamentals.Record `json:"fundamentals,omitempty"`
	MarketValue  float64              `json:"market_value"`
	PnLPercent   float64              `json:"pnl_percent"`
	Weight       float64              `json:"weight"`
}

// Summary is the dashboard-facing account of one enrichment pass.
type Summary struct {
	TotalProcessed  int    `json:"total_processed"`
	FromCache       int    `json:"from_cache"`
	FreshlyFetched  int    `json:"freshly_fetched"`
	SkippedOrFailed int    `json:"skipped_or_failed"`
	DailyAPIUsage   string `json:"daily_api_usage"`
	CacheHitRate    string `json:"cache_hit_rate"`
}

// PortfolioView is everything the dashboard needs for the main screen.
type PortfolioView struct {
	Positions []EnrichedPosition `json:"positions"`
	Account   Account            `json:"account"`
	Summary   Summary            `json:"summary"`
}

// Enricher drives the full pipeline: positions -> tickers -> aggregation ->
// join -> weights, wrapped in the fallback chain. It keeps the last good
// view in memory as the cache tier for whole-portfolio degradation.
type Enricher struct {
	source Source
	agg    *aggregate.Service
	cache  *cache.Cache
	policy *fallback.Policy
	log    zerolog.Logger

	// Demo tier hooks; nil disables the demo portfolio.
	DemoPositions func() []RawPosition
	DemoAccount   func() Account
	DemoRecords   func() map[string]*fundamentals.Record

	mu       sync.Mutex
	lastView *PortfolioView
	lastAt   time.Time
}

func NewEnricher(src Source, agg *aggregate.Service, c *cache.Cache, policy *fallback.Policy, log zerolog.Logger) *Enricher {
	return &Enricher{source: src, agg: agg, cache: c, policy: policy, log: log}
}

// Portfolio fetches, normalizes, and enriches the current positions. The
// result is always usable: live, stale, demo, or an explained failure.
func (e *Enricher) Portfolio(ctx context.Context) fallback.Result[PortfolioView] {
	res := fallback.Execute(ctx, e.policy, "portfolio", fallback.Options[PortfolioView]{
		EstimatedCalls: 0, // positions themselves cost no provider quota
		Primary: func(ctx context.Context) (PortfolioView, error) {
			return e.buildView(ctx)
		},
		Cache: e.staleView,
		Demo:  e.demoView,
	})
	if res.Source == fallback.SourcePrimary {
		e.mu.Lock()
		v := res.Data
		e.lastView = &v
		e.lastAt = time.Now()
		e.mu.Unlock()
	}
	return res
}

func (e *Enricher) buildView(ctx context.Context) (PortfolioView, error) {
	raw, err := e.source.GetPositions(ctx)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("brokerage positions: %w", err)
	}
	account, err := e.source.GetAccount(ctx)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("brokerage account: %w", err)
	}

	ps := Normalize(raw)
	recs, aggSum := e.agg.Enrich(ctx, Tickers(ps))
	enriched := Join(ps, recs)
	ComputeWeights(enriched)

	return PortfolioView{
		Positions: enriched,
		Account:   account,
		Summary: Summary{
			TotalProcessed:  aggSum.TotalRequested,
			FromCache:       aggSum.FromCache,
			FreshlyFetched:  aggSum.FreshlyFetched,
			SkippedOrFailed: aggSum.Failed,
			DailyAPIUsage:   e.agg.DailyUsage(),
			CacheHitRate:    e.agg.CacheHitRate(),
		},
	}, nil
}

func (e *Enricher) staleView() (PortfolioView, time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastView == nil {
		return PortfolioView{}, 0, false
	}
	return *e.lastView, time.Since(e.lastAt), true
}

func (e *Enricher) demoView() PortfolioView {
	if e.DemoPositions == nil || e.DemoRecords == nil {
		return PortfolioView{}
	}
	ps := Normalize(e.DemoPositions())
	enriched := Join(ps, e.DemoRecords())
	ComputeWeights(enriched)
	var account Account
	if e.DemoAccount != nil {
		account = e.DemoAccount()
	}
	return PortfolioView{
		Positions: enriched,
		Account:   account,
		Summary: Summary{
			TotalProcessed: len(enriched),
			DailyAPIUsage:  e.agg.DailyUsage(),
			CacheHitRate:   e.agg.CacheHitRate(),
		},
	}
}

// EnrichView is the response shape for ad-hoc ticker enrichment.
type EnrichView struct {
	Records map[string]*fundamentals.Record `json:"records"`
	Summary Summary                         `json:"summary"`
}

// EnrichTickers resolves an arbitrary ticker list through the same fallback
// chain. The primary tier fails only when nothing at all could be resolved;
// partial results are a success.
func (e *Enricher) EnrichTickers(ctx context.Context, tickers []string) fallback.Result[EnrichView] {
	return fallback.Execute(ctx, e.policy, "enrich", fallback.Options[EnrichView]{
		EstimatedCalls: len(tickers),
		CapacityCheck: func() (bool, []string) {
			// Cached tickers need no capacity; only preflight when a
			// provider call is unavoidable. Contains keeps the probe out
			// of the hit/miss stats.
			for _, t := range tickers {
				if !e.cache.Contains(fundamentals.NormalizeTicker(t)) {
					if e.agg.AnyAvailable() {
						return true, nil
					}
					return false, e.agg.ExhaustedProviders()
				}
			}
			return true, nil
		},
		Primary: func(ctx context.Context) (EnrichView, error) {
			recs, sum := e.agg.Enrich(ctx, tickers)
			if len(recs) == 0 && sum.Failed > 0 && sum.FromCache == 0 {
				if !e.agg.AnyAvailable() {
					return EnrichView{}, fmt.Errorf("enrich: %s: %w", strings.Join(e.agg.ExhaustedProviders(), "; "), fundamentals.ErrQuotaExceeded)
				}
				return EnrichView{}, errors.New("enrich: every provider failed")
			}
			return EnrichView{Records: recs, Summary: e.summary(sum)}, nil
		},
		Cache: func() (EnrichView, time.Duration, bool) {
			recs := make(map[string]*fundamentals.Record, len(tickers))
			var oldest time.Duration
			for _, t := range tickers {
				norm := fundamentals.NormalizeTicker(t)
				rec, age, ok := e.cache.GetStale(norm)
				if !ok || rec == nil {
					continue
				}
				recs[norm] = rec
				if age > oldest {
					oldest = age
				}
			}
			if len(recs) == 0 {
				return EnrichView{}, 0, false
			}
			return EnrichView{Records: recs, Summary: e.summary(aggregate.Summary{
				TotalRequested: len(tickers),
				FromCache:      len(recs),
				Failed:         len(tickers) - len(recs),
			})}, oldest, true
		},
		Demo: func() EnrichView {
			if e.DemoRecords == nil {
				return EnrichView{}
			}
			all := e.DemoRecords()
			recs := make(map[string]*fundamentals.Record, len(tickers))
			for _, t := range tickers {
				norm := fundamentals.NormalizeTicker(t)
				if rec, ok := all[norm]; ok {
					recs[norm] = rec
				}
			}
			return EnrichView{Records: recs, Summary: e.summary(aggregate.Summary{
				TotalRequested: len(tickers),
			})}
		},
	})
}

func (e *Enricher) summary(s aggregate.Summary) Summary {
	return Summary{
		TotalProcessed:  s.TotalRequested,
		FromCache:       s.FromCache,
		FreshlyFetched:  s.FreshlyFetched,
		SkippedOrFailed: s.Failed,
		DailyAPIUsage:   e.agg.DailyUsage(),
		CacheHitRate:    e.agg.CacheHitRate(),
	}
}

// Join pairs each position with its record; positions without a record keep
// nil fundamentals and the suffix-derived region.
func Join(ps []Position, recs map[string]*fundamentals.Record) []EnrichedPosition {
	out := make([]EnrichedPosition, 0, len(ps))
	for _, p := range ps {
		ep := EnrichedPosition{
			Position:    p,
			MarketValue: p.CurrentPrice * p.Quantity,
		}
		if rec, ok := recs[p.Ticker]; ok && rec != nil {
			ep.Fundamentals = rec
			if rec.Country != "" {
				ep.Region = rec.Country
			}
		}
		if cost := p.AveragePrice * p.Quantity; cost != 0 {
			ep.PnLPercent = (ep.MarketValue - cost) / cost * 100
		}
		out = append(out, ep)
	}
	return out
}

// ComputeWeights fills Weight as percent of total market value. Weights sum
// to ~100 (floating point) for a portfolio with positive total value.
func ComputeWeights(eps []EnrichedPosition) {
	var total float64
	for _, ep := range eps {
		total += ep.MarketValue
	}
	if total <= 0 {
		return
	}
	for i := range eps {
		eps[i].Weight = eps[i].MarketValue / total * 100
	}
}
