package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"foliodash/internal/config"
	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/aggregate"
	"foliodash/internal/fundamentals/alphavantage"
	"foliodash/internal/fundamentals/cache"
	"foliodash/internal/fundamentals/demo"
	"foliodash/internal/fundamentals/fallback"
	"foliodash/internal/fundamentals/fmp"
	"foliodash/internal/fundamentals/quota"
	"foliodash/internal/httpx"
	"foliodash/internal/kvstore"
	"foliodash/internal/logging"
	"foliodash/internal/positions"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// Logger isn't configured yet; fail plainly.
		println("config:", err.Error())
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	tracker := quota.NewTracker()
	store := kvstore.NewMemory()
	fundamentalsCache := cache.New(store, time.Duration(cfg.Cache.TTLHours)*time.Hour, log)

	var providers []fundamentals.Provider
	if cfg.AlphaVantage.Enabled {
		if cfg.AlphaVantage.APIKey == "" {
			log.Warn().Msg("alphavantage enabled but ALPHAVANTAGE_API_KEY not set; skipping")
		} else {
			providers = append(providers, alphavantage.New(alphavantage.Config{
				BaseURL:        cfg.AlphaVantage.Endpoint,
				APIKey:         cfg.AlphaVantage.APIKey,
				Limits:         quota.Limits{PerMinute: cfg.AlphaVantage.PerMinute, PerDay: cfg.AlphaVantage.PerDay},
				MaxConcurrency: cfg.AlphaVantage.MaxConcurrency,
			}, httpClient, tracker, log))
		}
	}
	if cfg.FMP.Enabled {
		if cfg.FMP.APIKey == "" {
			log.Warn().Msg("fmp enabled but FMP_API_KEY not set; skipping")
		} else {
			providers = append(providers, fmp.New(fmp.Config{
				BaseURL:   cfg.FMP.Endpoint,
				APIKey:    cfg.FMP.APIKey,
				Limits:    quota.Limits{PerMinute: cfg.FMP.PerMinute, PerDay: cfg.FMP.PerDay},
				BatchSize: cfg.FMP.BatchSize,
			}, tracker, log, fmp.WithHTTPClient(httpClient.HTTP)))
		}
	}
	if len(providers) == 0 {
		log.Warn().Msg("no fundamentals providers configured; dashboard will run on cache and demo data only")
	}

	agg := aggregate.New(fundamentalsCache, log, providers...)
	policy := fallback.New(cfg.Fallback.MaxAttempts, time.Duration(cfg.Fallback.BaseDelayMs)*time.Millisecond, cfg.Fallback.DemoEnabled, log)

	// The brokerage API is an external collaborator; until one is wired in,
	// the demo portfolio stands in as the position source.
	source := positions.NewDedup(&positions.SliceSource{
		Positions: demo.Portfolio(),
		Account:   demo.Account(),
	})

	enricher := positions.NewEnricher(source, agg, fundamentalsCache, policy, log)
	if cfg.Fallback.DemoEnabled {
		enricher.DemoPositions = demo.Portfolio
		enricher.DemoAccount = demo.Account
		enricher.DemoRecords = demo.Records
	}

	app := &application{
		enricher: enricher,
		agg:      agg,
		cache:    fundamentalsCache,
		log:      log,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Int("providers", len(providers)).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
