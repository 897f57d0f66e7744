// Package fallback wraps an aggregation operation with the degradation
// chain primary -> stale cache -> demo data. Results carry the path taken
// and a user-facing message so the dashboard can show staleness or demo
// banners without re-deriving the decision.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"foliodash/internal/fundamentals"
)

// Source names which tier of the chain produced the result.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceCache   Source = "cache"
	SourceDemo    Source = "demo"
	SourceFailed  Source = "failed"
)

// Result wraps an operation's output with degradation metadata.
// Source == SourceCache implies Stale; SourceDemo data is synthetic and
// must never be written back to a cache.
type Result[T any] struct {
	Data             T        `json:"data"`
	Source           Source   `json:"source"`
	Stale            bool     `json:"stale"`
	StaleAgeMs       int64    `json:"stale_age_ms,omitempty"`
	DegradedFeatures []string `json:"degraded_features,omitempty"`
	Message          string   `json:"message"`
	Reasons          []string `json:"reasons,omitempty"`
}

// Options declares the tiers for one operation. Primary is required; Cache
// and Demo are optional tiers consulted in that order when primary cannot
// serve. CapacityCheck is a synchronous quota probe: when it reports false
// the primary tier is skipped outright, since retrying cannot help until a
// window resets. Its reasons name what is exhausted, one entry per provider,
// and are carried into the result so a failed response explains itself.
type Options[T any] struct {
	EstimatedCalls int
	CapacityCheck  func() (bool, []string)
	Primary        func(ctx context.Context) (T, error)
	Cache          func() (T, time.Duration, bool)
	Demo           func() T
}

type Policy struct {
	// MaxAttempts bounds whole-pipeline retries for transient errors.
	MaxAttempts int
	// BaseDelay seeds exponential backoff: base * 2^(attempt-1).
	BaseDelay   time.Duration
	DemoEnabled bool
	Log         zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(maxAttempts int, baseDelay time.Duration, demoEnabled bool, log zerolog.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		DemoEnabled: demoEnabled,
		Log:         log,
		sleep:       sleepCtx,
	}
}

// Execute runs the degradation chain for one operation. It never returns an
// error: a fully exhausted chain yields Source == SourceFailed with the
// per-tier reasons, and the caller renders that as a partial/empty state.
func Execute[T any](ctx context.Context, p *Policy, operation string, opts Options[T]) Result[T] {
	var reasons []string

	skipPrimary := false
	if opts.EstimatedCalls > 0 && opts.CapacityCheck != nil {
		if ok, why := opts.CapacityCheck(); !ok {
			skipPrimary = true
			if len(why) == 0 {
				why = []string{"all providers are quota exhausted"}
			}
			reasons = append(reasons, why...)
			p.Log.Warn().Str("operation", operation).Strs("exhausted", why).Msg("skipping primary, no provider capacity")
		}
	}
	if !skipPrimary {
		data, err := tryPrimary(ctx, p, operation, opts.Primary)
		if err == nil {
			return Result[T]{
				Data:    data,
				Source:  SourcePrimary,
				Message: "Live data.",
			}
		}
		reasons = append(reasons, err.Error())
	}

	if opts.Cache != nil {
		if data, age, ok := opts.Cache(); ok {
			p.Log.Info().Str("operation", operation).Dur("age", age).Msg("serving stale cache")
			return Result[T]{
				Data:             data,
				Source:           SourceCache,
				Stale:            true,
				StaleAgeMs:       age.Milliseconds(),
				DegradedFeatures: []string{"live_fundamentals"},
				Message:          fmt.Sprintf("Showing cached data from %s ago because live providers are unavailable.", humanAge(age)),
				Reasons:          reasons,
			}
		}
		reasons = append(reasons, "no cached data available")
	}

	if p.DemoEnabled && opts.Demo != nil {
		p.Log.Warn().Str("operation", operation).Msg("serving demo data")
		return Result[T]{
			Data:             opts.Demo(),
			Source:           SourceDemo,
			DegradedFeatures: []string{"live_fundamentals", "real_positions"},
			Message:          "Showing demo data because API limits were reached. Values are synthetic.",
			Reasons:          reasons,
		}
	}

	p.Log.Error().Str("operation", operation).Strs("reasons", reasons).Msg("all fallback tiers exhausted")
	return Result[T]{
		Source:  SourceFailed,
		Message: "Data is temporarily unavailable; API limits were reached and no cached data exists.",
		Reasons: reasons,
	}
}

// tryPrimary retries transient failures with exponential backoff. Quota
// exhaustion fails fast: the window will not reset within any sane backoff.
func tryPrimary[T any](ctx context.Context, p *Policy, operation string, primary func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		data, err := primary(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, fundamentals.ErrQuotaExceeded) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.BaseDelay * time.Duration(1<<(attempt-1))
		p.Log.Warn().Str("operation", operation).Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("primary failed, retrying")
		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func humanAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "moments"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%d hours", int(age.Hours()))
	default:
		return fmt.Sprintf("%d days", int(age.Hours()/24))
	}
}
