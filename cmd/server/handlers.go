package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"foliodash/internal/fundamentals/aggregate"
	"foliodash/internal/fundamentals/cache"
	"foliodash/internal/fundamentals/fallback"
	"foliodash/internal/positions"
)

const maxTickersPerRequest = 500

type application struct {
	enricher *positions.Enricher
	agg      *aggregate.Service
	cache    *cache.Cache
	log      zerolog.Logger
}

func (a *application) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/portfolio", a.handlePortfolio)
		r.Get("/portfolio/allocation", a.handleAllocation)
		r.Post("/enrich", a.handleEnrich)
		r.Get("/providers", a.handleProviders)
		r.Post("/cache/clear", a.handleCacheClear)
	})
	return r
}

func (a *application) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	res := a.enricher.Portfolio(r.Context())
	status := http.StatusOK
	if res.Source == fallback.SourceFailed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

type allocationResponse struct {
	Allocation positions.AllocationView `json:"allocation"`
	Source     fallback.Source          `json:"source"`
	Stale      bool                     `json:"stale"`
	Message    string                   `json:"message"`
}

func (a *application) handleAllocation(w http.ResponseWriter, r *http.Request) {
	res := a.enricher.Portfolio(r.Context())
	if res.Source == fallback.SourceFailed {
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSON(w, http.StatusOK, allocationResponse{
		Allocation: positions.Allocations(res.Data.Positions),
		Source:     res.Source,
		Stale:      res.Stale,
		Message:    res.Message,
	})
}

type enrichRequest struct {
	Tickers []string `json:"tickers"`
}

func (a *application) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var body enrichRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(body.Tickers) == 0 {
		http.Error(w, "tickers cannot be empty", http.StatusBadRequest)
		return
	}
	if len(body.Tickers) > maxTickersPerRequest {
		http.Error(w, "too many tickers (max 500)", http.StatusBadRequest)
		return
	}
	res := a.enricher.EnrichTickers(r.Context(), body.Tickers)
	status := http.StatusOK
	if res.Source == fallback.SourceFailed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

type providersResponse struct {
	Providers []aggregate.ProviderStatus `json:"providers"`
	AsOf      time.Time                  `json:"as_of"`
}

func (a *application) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Providers: a.agg.Statuses(),
		AsOf:      time.Now().UTC(),
	})
}

func (a *application) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	a.cache.Clear()
	a.log.Info().Msg("fundamentals cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// requestLogger logs method, path, status, and latency for every request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
