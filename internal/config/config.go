package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Log struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

type AlphaVantage struct {
	Enabled        bool   `json:"enabled"`
	APIKey         string `json:"api_key"`
	Endpoint       string `json:"endpoint"`
	PerMinute      int    `json:"per_minute"`
	PerDay         int    `json:"per_day"`
	MaxConcurrency int    `json:"max_concurrency"`
}

type FMP struct {
	Enabled   bool   `json:"enabled"`
	APIKey    string `json:"api_key"`
	Endpoint  string `json:"endpoint"`
	PerMinute int    `json:"per_minute"`
	PerDay    int    `json:"per_day"`
	BatchSize int    `json:"batch_size"`
}

type Cache struct {
	TTLHours int `json:"ttl_hours"`
}

type Fallback struct {
	MaxAttempts int  `json:"max_attempts"`
	BaseDelayMs int  `json:"base_delay_ms"`
	DemoEnabled bool `json:"demo_enabled"`
}

type Config struct {
	Server       Server       `json:"server"`
	Log          Log          `json:"log"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	FMP          FMP          `json:"fmp"`
	Cache        Cache        `json:"cache"`
	Fallback     Fallback     `json:"fallback"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 20},
		Log:    Log{Level: "info", Pretty: false},
		AlphaVantage: AlphaVantage{
			Enabled:        true,
			PerMinute:      5,
			PerDay:         25,
			MaxConcurrency: 2,
		},
		FMP: FMP{
			Enabled:   true,
			PerMinute: 10,
			PerDay:    250,
			BatchSize: 25,
		},
		Cache:    Cache{TTLHours: 24},
		Fallback: Fallback{MaxAttempts: 3, BaseDelayMs: 500, DemoEnabled: true},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v, ok := envBool("LOG_PRETTY"); ok {
		cfg.Log.Pretty = v
	}

	if v, ok := envBool("ALPHAVANTAGE_ENABLED"); ok {
		cfg.AlphaVantage.Enabled = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_ENDPOINT"); v != "" {
		cfg.AlphaVantage.Endpoint = v
	}
	if v := envInt("ALPHAVANTAGE_PER_MINUTE"); v > 0 {
		cfg.AlphaVantage.PerMinute = v
	}
	if v := envInt("ALPHAVANTAGE_PER_DAY"); v > 0 {
		cfg.AlphaVantage.PerDay = v
	}

	if v, ok := envBool("FMP_ENABLED"); ok {
		cfg.FMP.Enabled = v
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.FMP.APIKey = v
	}
	if v := os.Getenv("FMP_ENDPOINT"); v != "" {
		cfg.FMP.Endpoint = v
	}
	if v := envInt("FMP_PER_MINUTE"); v > 0 {
		cfg.FMP.PerMinute = v
	}
	if v := envInt("FMP_PER_DAY"); v > 0 {
		cfg.FMP.PerDay = v
	}
	if v := envInt("FMP_BATCH_SIZE"); v > 0 {
		cfg.FMP.BatchSize = v
	}

	if v := envInt("CACHE_TTL_HOURS"); v > 0 {
		cfg.Cache.TTLHours = v
	}

	if v := envInt("FALLBACK_MAX_ATTEMPTS"); v > 0 {
		cfg.Fallback.MaxAttempts = v
	}
	if v := envInt("FALLBACK_BASE_DELAY_MS"); v > 0 {
		cfg.Fallback.BaseDelayMs = v
	}
	if v, ok := envBool("FALLBACK_DEMO_ENABLED"); ok {
		cfg.Fallback.DemoEnabled = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	var x int
	_, _ = fmt.Sscanf(v, "%d", &x)
	return x
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}
