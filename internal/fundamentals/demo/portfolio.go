package demo

import "foliodash/internal/positions"

// Portfolio returns the synthetic brokerage positions shown when no real
// brokerage source is reachable.
func Portfolio() []positions.RawPosition {
	return []positions.RawPosition{
		{Symbol: "AAPL", Quantity: 25, AverageCost: 168.40, CurrentPrice: 228.10, Currency: "USD"},
		{Symbol: "MSFT", Quantity: 12, AverageCost: 310.25, CurrentPrice: 425.60, Currency: "USD"},
		{Symbol: "GOOGL", Quantity: 18, AverageCost: 131.70, CurrentPrice: 176.35, Currency: "USD"},
		{Symbol: "NVDA", Quantity: 30, AverageCost: 46.20, CurrentPrice: 122.80, Currency: "USD"},
		{Symbol: "JPM", Quantity: 15, AverageCost: 145.00, CurrentPrice: 205.40, Currency: "USD"},
		{Symbol: "ASML", Quantity: 4, AverageCost: 640.00, CurrentPrice: 872.50, Currency: "USD"},
		{Symbol: "BHP.AX", Quantity: 120, AverageCost: 38.90, CurrentPrice: 42.15, Currency: "AUD"},
	}
}

// Account returns the account summary matching Portfolio.
func Account() positions.Account {
	var total float64
	for _, p := range Portfolio() {
		total += p.Quantity * p.CurrentPrice
	}
	cash := 2500.0
	return positions.Account{TotalValue: total + cash, Cash: cash, Currency: "USD"}
}
