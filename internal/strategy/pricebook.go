package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Demand levels for known items.
const (
	DemandHigh   = "high"
	DemandMedium = "medium"
)

// KnownItem is one entry in the static table of high-liquidity items.
type KnownItem struct {
	BasePrice decimal.Decimal
	Demand    string
	Markup    decimal.Decimal
}

// knownItems is the built-in table of items with established market depth.
var knownItems = map[string]KnownItem{
	"12.7mm Rifle Bullets": {BasePrice: decimal.NewFromFloat(15.0), Demand: DemandHigh, Markup: decimal.NewFromFloat(1.15)},
	"7.62mm Rifle Bullets": {BasePrice: decimal.NewFromFloat(12.0), Demand: DemandHigh, Markup: decimal.NewFromFloat(1.15)},
	"5.56mm Rifle Bullets": {BasePrice: decimal.NewFromFloat(10.0), Demand: DemandHigh, Markup: decimal.NewFromFloat(1.15)},
	"9mm Rifle Bullets":    {BasePrice: decimal.NewFromFloat(10.0), Demand: DemandHigh, Markup: decimal.NewFromFloat(1.15)},
	"12 Gauge Shells":      {BasePrice: decimal.NewFromFloat(8.0), Demand: DemandMedium, Markup: decimal.NewFromFloat(1.20)},
	"Pain Killers":         {BasePrice: decimal.NewFromFloat(25.0), Demand: DemandHigh, Markup: decimal.NewFromFloat(1.30)},
	"Bandages":             {BasePrice: decimal.NewFromFloat(15.0), Demand: DemandMedium, Markup: decimal.NewFromFloat(1.25)},
}

// KnownItemFor returns the static table entry for an item, if any.
func KnownItemFor(itemName string) (KnownItem, bool) {
	entry, ok := knownItems[itemName]
	return entry, ok
}

// demandMultiplier converts a demand level into an estimation multiplier.
func demandMultiplier(demand string) decimal.Decimal {
	if demand == DemandHigh {
		return decimal.NewFromFloat(1.2)
	}
	return decimal.NewFromFloat(1.1)
}

// demandScoreBonus converts a demand level into a priority bonus.
func demandScoreBonus(demand string) decimal.Decimal {
	switch demand {
	case DemandHigh:
		return decimal.NewFromFloat(1.3)
	case DemandMedium:
		return decimal.NewFromFloat(1.1)
	default:
		return decimal.NewFromFloat(1.0)
	}
}

// minHistorySamples is how many observations an item needs before its
// trailing average participates in pricing.
const minHistorySamples = 3

// trailingSamples is how many recent observations feed the average.
const trailingSamples = 5

// PriceHistory keeps a bounded trailing window of observed unit prices per
// item. Each strategy owns its own history; it is reset only via Reset.
type PriceHistory struct {
	mu     sync.Mutex
	window int
	prices map[string][]decimal.Decimal
}

// NewPriceHistory creates a history with the given per-item window.
func NewPriceHistory(window int) *PriceHistory {
	if window <= 0 {
		window = 20
	}
	return &PriceHistory{
		window: window,
		prices: make(map[string][]decimal.Decimal),
	}
}

// Record appends one observed unit price, trimming to the window.
func (h *PriceHistory) Record(itemName string, price decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.prices[itemName], price)
	if len(list) > h.window {
		list = list[len(list)-h.window:]
	}
	h.prices[itemName] = list
}

// TrailingAverage returns the average of the most recent samples and whether
// enough history exists to use it.
func (h *PriceHistory) TrailingAverage(itemName string) (decimal.Decimal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.prices[itemName]
	if len(list) < minHistorySamples {
		return decimal.Zero, false
	}
	recent := list
	if len(recent) > trailingSamples {
		recent = recent[len(recent)-trailingSamples:]
	}
	sum := decimal.Zero
	for _, p := range recent {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(recent)))), true
}

// Reset drops all recorded history.
func (h *PriceHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = make(map[string][]decimal.Decimal)
}
