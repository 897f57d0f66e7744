// Command fetch enriches a comma-separated ticker list once and prints the
// result as JSON. It mirrors the server's provider wiring without the
// router; handy for checking API keys and quota state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"foliodash/internal/config"
	"foliodash/internal/fundamentals"
	"foliodash/internal/fundamentals/aggregate"
	"foliodash/internal/fundamentals/alphavantage"
	"foliodash/internal/fundamentals/cache"
	"foliodash/internal/fundamentals/fmp"
	"foliodash/internal/fundamentals/quota"
	"foliodash/internal/httpx"
	"foliodash/internal/kvstore"
	"foliodash/internal/logging"
)

func main() {
	var tickersCSV string
	var timeout int
	var configPath string
	var showStatus bool

	flag.StringVar(&tickersCSV, "tickers", getenv("TICKERS", "AAPL,MSFT,GOOGL"), "comma-separated ticker symbols")
	flag.IntVar(&timeout, "timeout", 30, "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.BoolVar(&showStatus, "status", false, "also print provider quota status")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, true)

	httpClient := httpx.New(time.Duration(timeout) * time.Second)
	tracker := quota.NewTracker()
	store := kvstore.NewMemory()
	fundamentalsCache := cache.New(store, time.Duration(cfg.Cache.TTLHours)*time.Hour, log)

	var providers []fundamentals.Provider
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey != "" {
		providers = append(providers, alphavantage.New(alphavantage.Config{
			BaseURL: cfg.AlphaVantage.Endpoint,
			APIKey:  cfg.AlphaVantage.APIKey,
			Limits:  quota.Limits{PerMinute: cfg.AlphaVantage.PerMinute, PerDay: cfg.AlphaVantage.PerDay},
		}, httpClient, tracker, log))
	}
	if cfg.FMP.Enabled && cfg.FMP.APIKey != "" {
		providers = append(providers, fmp.New(fmp.Config{
			BaseURL:   cfg.FMP.Endpoint,
			APIKey:    cfg.FMP.APIKey,
			Limits:    quota.Limits{PerMinute: cfg.FMP.PerMinute, PerDay: cfg.FMP.PerDay},
			BatchSize: cfg.FMP.BatchSize,
		}, tracker, log, fmp.WithHTTPClient(httpClient.HTTP)))
	}
	if len(providers) == 0 {
		fmt.Fprintln(os.Stderr, "no providers configured; set ALPHAVANTAGE_API_KEY or FMP_API_KEY")
		os.Exit(1)
	}

	tickers := splitCSV(tickersCSV)
	if len(tickers) == 0 {
		fmt.Fprintln(os.Stderr, "no tickers provided")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	agg := aggregate.New(fundamentalsCache, log, providers...)
	records, summary := agg.Enrich(ctx, tickers)

	out := struct {
		Records map[string]*fundamentals.Record `json:"records"`
		Summary aggregate.Summary               `json:"summary"`
		Status  []aggregate.ProviderStatus      `json:"status,omitempty"`
	}{Records: records, Summary: summary}
	if showStatus {
		out.Status = agg.Statuses()
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))

	if summary.Failed > 0 {
		os.Exit(2)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
