// Package demo holds the synthetic dataset served when every provider is
// exhausted and the cache is empty. Records are tagged with the "demo"
// source and a low confidence score; the fallback layer never writes them
// back to the cache.
package demo

import (
	"time"

	"foliodash/internal/fundamentals"
)

const ProviderName = "demo"

const confidence = 30

// Records returns synthetic fundamentals for a handful of well-known
// tickers, keyed by symbol. Fresh copies on every call so callers can't
// mutate the dataset.
func Records() map[string]*fundamentals.Record {
	now := time.Now().UTC()
	out := make(map[string]*fundamentals.Record, len(dataset))
	for _, d := range dataset {
		out[d.ticker] = &fundamentals.Record{
			Ticker:          d.ticker,
			CompanyName:     d.name,
			Sector:          d.sector,
			Industry:        d.industry,
			Country:         d.country,
			Exchange:        d.exchange,
			MarketCap:       fundamentals.Float(d.marketCap),
			PERatio:         fundamentals.Float(d.pe),
			EPS:             fundamentals.Float(d.eps),
			DividendYield:   fundamentals.Float(d.yield),
			Beta:            fundamentals.Float(d.beta),
			SourceProvider:  ProviderName,
			ConfidenceScore: confidence,
			RetrievedAt:     now,
		}
	}
	return out
}

// Get returns the synthetic record for one ticker, or nil.
func Get(ticker string) *fundamentals.Record {
	return Records()[fundamentals.NormalizeTicker(ticker)]
}

type row struct {
	ticker, name, sector, industry, country, exchange string
	marketCap, pe, eps, yield, beta                   float64
}

var dataset = []row{
	{"AAPL", "Apple Inc", "Technology", "Consumer Electronics", "USA", "NASDAQ", 3.4e12, 33.1, 6.6, 0.0044, 1.24},
	{"MSFT", "Microsoft Corporation", "Technology", "Software - Infrastructure", "USA", "NASDAQ", 3.1e12, 36.4, 11.6, 0.0072, 0.90},
	{"GOOGL", "Alphabet Inc", "Communication Services", "Internet Content & Information", "USA", "NASDAQ", 2.1e12, 24.8, 7.0, 0.0047, 1.05},
	{"AMZN", "Amazon.com Inc", "Consumer Cyclical", "Internet Retail", "USA", "NASDAQ", 1.9e12, 40.2, 4.6, 0, 1.15},
	{"NVDA", "NVIDIA Corporation", "Technology", "Semiconductors", "USA", "NASDAQ", 3.0e12, 55.9, 2.2, 0.0003, 1.67},
	{"JPM", "JPMorgan Chase & Co", "Financial Services", "Banks - Diversified", "USA", "NYSE", 6.0e11, 12.3, 16.9, 0.0221, 1.10},
	{"JNJ", "Johnson & Johnson", "Healthcare", "Drug Manufacturers - General", "USA", "NYSE", 3.8e11, 14.9, 10.5, 0.0309, 0.52},
	{"XOM", "Exxon Mobil Corporation", "Energy", "Oil & Gas Integrated", "USA", "NYSE", 4.7e11, 13.6, 8.1, 0.0331, 0.88},
	{"ASML", "ASML Holding NV", "Technology", "Semiconductor Equipment & Materials", "Netherlands", "NASDAQ", 3.5e11, 34.0, 20.8, 0.0078, 1.30},
	{"BHP.AX", "BHP Group Limited", "Basic Materials", "Other Industrial Metals & Mining", "Australia", "ASX", 1.5e11, 11.2, 3.9, 0.0550, 0.85},
}
