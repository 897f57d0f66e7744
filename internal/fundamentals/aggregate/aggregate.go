// Package aggregate resolves a ticker list to fundamentals records by
// consulting the cache first and then walking the provider list in priority
// order. The batch never fails as a whole: tickers that every provider
// refused are simply absent from the result, uncached, and retryable on
// the next pass.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/cache"
	"foliodash/internal/fundamentals/quota"
)

// Summary accounts for one enrichment pass. A confirmed "no data for this
// ticker" counts as fetched (or cached), not failed; only tickers that all
// providers failed or refused count as Failed.
type Summary struct {
	TotalRequested int `json:"total_requested"`
	FromCache      int `json:"from_cache"`
	FreshlyFetched int `json:"freshly_fetched"`
	Failed         int `json:"failed"`
}

// ProviderStatus is the dashboard-facing quota view of one provider.
type ProviderStatus struct {
	quota.Status
	Warning string `json:"warning,omitempty"`
}

type Service struct {
	providers []fundamentals.Provider
	cache     *cache.Cache
	log       zerolog.Logger
}

// New builds a service. Provider order is the static priority order; the
// first provider that yields a result for a ticker wins.
func New(c *cache.Cache, log zerolog.Logger, providers ...fundamentals.Provider) *Service {
	return &Service{providers: providers, cache: c, log: log}
}

// Enrich resolves tickers to records. The returned map holds only tickers
// with data; confirmed-null tickers are resolved (and cached) but omitted.
// It never returns an error: degradation is expressed through the summary.
func (s *Service) Enrich(ctx context.Context, tickers []string) (map[string]*fundamentals.Record, Summary) {
	wanted := dedupe(tickers)
	out := make(map[string]*fundamentals.Record, len(wanted))
	sum := Summary{TotalRequested: len(wanted)}

	// Cache pass. A confirmed-null hit resolves the ticker without
	// spending quota.
	var remaining []string
	for _, t := range wanted {
		rec, ok := s.cache.Get(t)
		if !ok {
			remaining = append(remaining, t)
			continue
		}
		sum.FromCache++
		if rec != nil {
			out[t] = rec
		}
	}

	// Provider fallthrough for the rest.
	for _, p := range s.providers {
		if len(remaining) == 0 {
			break
		}
		if !p.IsAvailable() {
			s.log.Debug().Str("provider", p.Name()).Msg("skipping exhausted provider")
			continue
		}
		res, err := p.FetchMany(ctx, remaining)
		if err != nil {
			if errors.Is(err, fundamentals.ErrQuotaExceeded) {
				s.log.Warn().Str("provider", p.Name()).Msg("quota exceeded, falling through")
			} else {
				s.log.Warn().Str("provider", p.Name()).Err(err).Msg("provider failed, falling through")
			}
			continue
		}
		var next []string
		for _, t := range remaining {
			rec, ok := res[t]
			if !ok {
				next = append(next, t)
				continue
			}
			s.cache.Set(t, rec)
			sum.FreshlyFetched++
			if rec != nil {
				out[t] = rec
			}
		}
		remaining = next
	}

	sum.Failed = len(remaining)
	if sum.Failed > 0 {
		s.log.Warn().Strs("tickers", remaining).Msg("unresolved after all providers")
	}
	return out, sum
}

// Statuses reports the quota state of every provider in priority order.
func (s *Service) Statuses() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(s.providers))
	for _, p := range s.providers {
		st := p.RateLimitStatus()
		ps := ProviderStatus{Status: st}
		switch {
		case !st.CanCall:
			ps.Warning = fmt.Sprintf("%s is rate limited; waiting for a window to reset", st.Provider)
		case st.LimitDay > 0 && st.RemainingDay <= st.LimitDay/5:
			ps.Warning = fmt.Sprintf("%s has %d of %d daily calls left", st.Provider, st.RemainingDay, st.LimitDay)
		}
		out = append(out, ps)
	}
	return out
}

// AnyAvailable reports whether at least one provider can take a call now.
func (s *Service) AnyAvailable() bool {
	for _, p := range s.providers {
		if p.IsAvailable() {
			return true
		}
	}
	return false
}

// ExhaustedProviders names each provider that cannot take a call right now,
// as reason strings for a degraded or failed response.
func (s *Service) ExhaustedProviders() []string {
	var out []string
	for _, p := range s.providers {
		if !p.IsAvailable() {
			out = append(out, fmt.Sprintf("%s: quota exhausted", p.Name()))
		}
	}
	return out
}

// DailyUsage renders summed "used/limit" across providers for the
// dashboard summary line. Providers without a daily limit are skipped.
func (s *Service) DailyUsage() string {
	used, limit := 0, 0
	for _, p := range s.providers {
		st := p.RateLimitStatus()
		if st.LimitDay <= 0 {
			continue
		}
		used += st.UsedDay
		limit += st.LimitDay
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

// CacheHitRate renders the cache hit percentage, e.g. "66.7%".
func (s *Service) CacheHitRate() string {
	return fmt.Sprintf("%.1f%%", s.cache.HitRate()*100)
}

func dedupe(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		t := fundamentals.NormalizeTicker(raw)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
