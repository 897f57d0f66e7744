package positions

import "sort"

// Bucket is one slice of an allocation breakdown.
type Bucket struct {
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
	Positions int     `json:"positions"`
}

// AllocationView feeds the sector/geography/exchange charts.
type AllocationView struct {
	Sector   []Bucket `json:"sector"`
	Country  []Bucket `json:"country"`
	Exchange []Bucket `json:"exchange"`
}

// Allocations groups enriched positions by sector, country, and exchange.
// Positions without fundamentals land in "Unknown" (sector/exchange) or
// their suffix-derived region.
func Allocations(eps []EnrichedPosition) AllocationView {
	return AllocationView{
		Sector: buckets(eps, func(ep EnrichedPosition) string {
			if ep.Fundamentals != nil {
				return ep.Fundamentals.Sector
			}
			return ""
		}),
		Country: buckets(eps, func(ep EnrichedPosition) string {
			return ep.Region
		}),
		Exchange: buckets(eps, func(ep EnrichedPosition) string {
			if ep.Fundamentals != nil {
				return ep.Fundamentals.Exchange
			}
			return ""
		}),
	}
}

func buckets(eps []EnrichedPosition, key func(EnrichedPosition) string) []Bucket {
	byLabel := make(map[string]*Bucket)
	var total float64
	for _, ep := range eps {
		label := key(ep)
		if label == "" {
			label = "Unknown"
		}
		b, ok := byLabel[label]
		if !ok {
			b = &Bucket{Label: label}
			byLabel[label] = b
		}
		b.Value += ep.MarketValue
		b.Positions++
		total += ep.MarketValue
	}
	out := make([]Bucket, 0, len(byLabel))
	for _, b := range byLabel {
		if total > 0 {
			b.Weight = b.Value / total * 100
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}
