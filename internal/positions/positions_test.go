package positions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foliodash/internal/fundamentals"
)

func TestNormalize_DropsEmptyAndZeroQuantity(t *testing.T) {
	out := Normalize([]RawPosition{
		{Symbol: "AAPL", Quantity: 10, AverageCost: 150, CurrentPrice: 230, Currency: "usd"},
		{Symbol: "  ", Quantity: 5, CurrentPrice: 10},
		{Symbol: "MSFT", Quantity: 0, CurrentPrice: 400},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "AAPL", out[0].Ticker)
	assert.Equal(t, "USD", out[0].Currency)
}

func TestNormalize_DerivesUnrealizedPL(t *testing.T) {
	out := Normalize([]RawPosition{
		{Symbol: "AAPL", Quantity: 10, AverageCost: 150, CurrentPrice: 230},
		// Brokerage-reported P&L wins over the derived figure.
		{Symbol: "MSFT", Quantity: 2, AverageCost: 300, CurrentPrice: 400, UnrealizedPL: 123.45},
		// No average cost: nothing to derive from.
		{Symbol: "GOOGL", Quantity: 3, CurrentPrice: 180},
	})
	require.Len(t, out, 3)
	assert.InDelta(t, 800.0, out[0].UnrealizedPL, 1e-9)
	assert.InDelta(t, 123.45, out[1].UnrealizedPL, 1e-9)
	assert.Zero(t, out[2].UnrealizedPL)
}

func TestDeriveRegion(t *testing.T) {
	cases := []struct {
		ticker, currency, want string
	}{
		{"BHP.AX", "AUD", "Australia"},
		{"SHEL.L", "GBP", "United Kingdom"},
		{"SAP.DE", "EUR", "Germany"},
		{"AAPL", "USD", "United States"},
		{"ABC.XX", "EUR", "Europe"}, // unknown suffix falls back to currency
		{"MYSTERY", "", "Unknown"},
		{".AX", "", "Unknown"}, // leading dot is not a suffix
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, deriveRegion(tc.ticker, tc.currency), "ticker=%s currency=%s", tc.ticker, tc.currency)
	}
}

func TestJoin(t *testing.T) {
	ps := Normalize([]RawPosition{
		{Symbol: "AAPL", Quantity: 10, AverageCost: 150, CurrentPrice: 230, Currency: "USD"},
		{Symbol: "UNKNOWN.AX", Quantity: 5, AverageCost: 20, CurrentPrice: 25, Currency: "AUD"},
	})
	recs := map[string]*fundamentals.Record{
		"AAPL": {Ticker: "AAPL", Sector: "Technology", Country: "USA"},
	}

	eps := Join(ps, recs)
	require.Len(t, eps, 2)

	assert.Equal(t, 2300.0, eps[0].MarketValue)
	assert.InDelta(t, (2300.0-1500.0)/1500.0*100, eps[0].PnLPercent, 1e-9)
	require.NotNil(t, eps[0].Fundamentals)
	// The record's country overrides the suffix/currency guess.
	assert.Equal(t, "USA", eps[0].Region)

	assert.Nil(t, eps[1].Fundamentals)
	assert.Equal(t, "Australia", eps[1].Region, "unenriched position keeps the suffix-derived region")
	assert.Equal(t, 125.0, eps[1].MarketValue)
}

func TestComputeWeights_SumToHundred(t *testing.T) {
	eps := []EnrichedPosition{
		{MarketValue: 2300},
		{MarketValue: 125},
		{MarketValue: 9411.37},
		{MarketValue: 0.03},
	}
	ComputeWeights(eps)

	var sum float64
	for _, ep := range eps {
		assert.GreaterOrEqual(t, ep.Weight, 0.0)
		sum += ep.Weight
	}
	assert.InDelta(t, 100.0, sum, 0.01)
}

func TestComputeWeights_ZeroTotalIsNoop(t *testing.T) {
	eps := []EnrichedPosition{{MarketValue: 0}, {MarketValue: 0}}
	ComputeWeights(eps)
	for _, ep := range eps {
		assert.Zero(t, ep.Weight)
	}
}

func TestAllocations(t *testing.T) {
	tech := &fundamentals.Record{Sector: "Technology", Exchange: "NASDAQ"}
	energy := &fundamentals.Record{Sector: "Energy", Exchange: "NYSE"}
	eps := []EnrichedPosition{
		{Position: Position{Region: "United States"}, Fundamentals: tech, MarketValue: 6000},
		{Position: Position{Region: "United States"}, Fundamentals: energy, MarketValue: 3000},
		{Position: Position{Region: "Australia"}, MarketValue: 1000}, // no fundamentals
	}

	av := Allocations(eps)

	require.Len(t, av.Sector, 3)
	assert.Equal(t, Bucket{Label: "Technology", Value: 6000, Weight: 60, Positions: 1}, av.Sector[0])
	assert.Equal(t, "Energy", av.Sector[1].Label)
	assert.Equal(t, "Unknown", av.Sector[2].Label)
	assert.InDelta(t, 10.0, av.Sector[2].Weight, 1e-9)

	require.Len(t, av.Country, 2)
	assert.Equal(t, "United States", av.Country[0].Label)
	assert.Equal(t, 2, av.Country[0].Positions)
	assert.Equal(t, "Australia", av.Country[1].Label)

	require.Len(t, av.Exchange, 3)
	assert.Equal(t, "NASDAQ", av.Exchange[0].Label)
}

func TestAllocations_TieBreaksByLabel(t *testing.T) {
	eps := []EnrichedPosition{
		{Fundamentals: &fundamentals.Record{Sector: "Beta"}, MarketValue: 100},
		{Fundamentals: &fundamentals.Record{Sector: "Alpha"}, MarketValue: 100},
	}
	av := Allocations(eps)
	require.Len(t, av.Sector, 2)
	assert.Equal(t, "Alpha", av.Sector[0].Label)
	assert.Equal(t, "Beta", av.Sector[1].Label)
}

// blockingSource stalls GetPositions until released so concurrent callers
// pile onto one in-flight request.
type blockingSource struct {
	release chan struct{}
	calls   atomic.Int64
}

func (b *blockingSource) GetPositions(context.Context) ([]RawPosition, error) {
	b.calls.Add(1)
	<-b.release
	return []RawPosition{{Symbol: "AAPL", Quantity: 1, CurrentPrice: 230}}, nil
}

func (b *blockingSource) GetAccount(context.Context) (Account, error) {
	return Account{TotalValue: 230}, nil
}

func TestDedup_SharesInFlightRequest(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	d := NewDedup(src)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]RawPosition, callers)
	errs := make([]error, callers)
	wg.Add(callers)
	for i := range callers {
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.GetPositions(context.Background())
		}()
	}

	// Wait for the first caller to reach the source, give the rest a moment
	// to join the in-flight call, then release.
	for src.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), src.calls.Load(), "concurrent callers must share one request")
	for _, out := range results {
		require.Len(t, out, 1)
		assert.Equal(t, "AAPL", out[0].Symbol)
	}
}

func TestSliceSource(t *testing.T) {
	s := &SliceSource{
		Positions: []RawPosition{{Symbol: "AAPL", Quantity: 1}},
		Account:   Account{TotalValue: 100, Cash: 10, Currency: "USD"},
	}
	ps, err := s.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, ps, 1)
	acct, err := s.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, acct.TotalValue)
}
