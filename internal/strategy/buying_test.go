package strategy

import (
	"fmt"
	"testing"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyingConfig() (config.MarketSearchConfig, config.BuyingConfig) {
	cfg := config.DefaultConfig()
	return cfg.Market, cfg.Buying
}

func snapshotWithFunds(funds int64) *core.ResourceSnapshot {
	return &core.ResourceSnapshot{
		Cash:           funds,
		InventoryTotal: 26,
		StorageTotal:   40,
	}
}

func listing(name string, unitPrice float64, qty int) core.MarketListing {
	return core.MarketListing{
		ItemName:  name,
		Seller:    "seller",
		UnitPrice: decimal.NewFromFloat(unitPrice),
		Quantity:  qty,
	}
}

func TestEvaluateAcceptsProfitableTarget(t *testing.T) {
	market, cfg := buyingConfig()
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 8.0, 100),
	}, snapshotWithFunds(100_000))

	require.Len(t, opps, 1)
	opp := opps[0]
	// Table-based estimate: base 15 x high-demand 1.2 = 18.
	assert.True(t, opp.EstimatedSellPrice.Equal(decimal.NewFromInt(18)), "estimate %s", opp.EstimatedSellPrice)
	// Margin (18-8)/8 = 1.25.
	assert.True(t, opp.ProfitMargin.Equal(decimal.NewFromFloat(1.25)), "margin %s", opp.ProfitMargin)
	assert.Equal(t, core.RiskLow, opp.Risk)
	assert.Equal(t, CategoryAmmo, opp.Category)
	assert.True(t, opp.PriorityScore.GreaterThan(decimal.Zero))
	assert.True(t, opp.EstimatedSellPrice.GreaterThan(opp.Listing.UnitPrice))
}

func TestEvaluateRejectsOverPriceCap(t *testing.T) {
	market, cfg := buyingConfig()
	// Cap for 12.7mm is 13.0; a 14.0 listing is out.
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 14.0, 100),
	}, snapshotWithFunds(100_000))
	assert.Empty(t, opps)
}

func TestEvaluateRejectsNonTarget(t *testing.T) {
	market, cfg := buyingConfig()
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("Rusty Sword", 1.0, 10),
	}, snapshotWithFunds(100_000))
	assert.Empty(t, opps)
}

func TestEvaluateZeroCapsProduceNoOpportunities(t *testing.T) {
	market, cfg := buyingConfig()
	for i := range market.MaxPricePerUnit {
		market.MaxPricePerUnit[i] = 0
	}
	b := NewBuying(market, cfg, mock.NopLogger{})

	var listings []core.MarketListing
	for _, name := range market.TargetItems {
		listings = append(listings, listing(name, 1.0, 10))
	}
	opps := b.Evaluate(listings, snapshotWithFunds(100_000))
	assert.Empty(t, opps)
}

func TestEvaluateRejectsBeyondFunds(t *testing.T) {
	market, cfg := buyingConfig()
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 8.0, 100), // total 800
	}, snapshotWithFunds(500))
	assert.Empty(t, opps)
}

func TestEvaluateSanityBounds(t *testing.T) {
	market, cfg := buyingConfig()
	market.TargetItems = append(market.TargetItems, "Pricey Bullets")
	market.MaxPricePerUnit = append(market.MaxPricePerUnit, 200_000)
	cfg.MaxItemTotalPrice = 100_000_000
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 8.0, 20_000),  // quantity above sanity bound
		listing("Pricey Bullets", 150_000, 1),         // unit price above sanity bound
		listing("12.7mm Rifle Bullets", 0, 10),        // non-positive price
	}, snapshotWithFunds(1_000_000_000))
	assert.Empty(t, opps)
}

func TestEvaluateMarginFilter(t *testing.T) {
	market, cfg := buyingConfig()
	cfg.MinProfitMargin = 0.5
	b := NewBuying(market, cfg, mock.NopLogger{})

	// Estimate 18; price 13 gives margin ~0.38 < 0.5.
	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 13.0, 100),
	}, snapshotWithFunds(100_000))
	assert.Empty(t, opps)
}

func TestBudgetCapAcrossOpportunities(t *testing.T) {
	market, cfg := buyingConfig()
	cfg.MaxTotalInvestment = 1_500
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 8.0, 100), // 800
		listing("12.7mm Rifle Bullets", 9.0, 100), // 900
		listing("12.7mm Rifle Bullets", 10.0, 50), // 500
	}, snapshotWithFunds(1_000_000))

	var invested int64
	for _, opp := range opps {
		invested += opp.Listing.TotalPrice().Round(0).IntPart()
	}
	assert.LessOrEqual(t, invested, cfg.MaxTotalInvestment)
	assert.NotEmpty(t, opps)
}

func TestDiversificationLimit(t *testing.T) {
	market, cfg := buyingConfig()
	cfg.DiversificationLimit = 2
	cfg.MaxTotalInvestment = 10_000_000
	b := NewBuying(market, cfg, mock.NopLogger{})

	var listings []core.MarketListing
	for i := 0; i < 6; i++ {
		listings = append(listings, listing("12.7mm Rifle Bullets", 8.0+float64(i)*0.1, 100))
	}
	opps := b.Evaluate(listings, snapshotWithFunds(10_000_000))

	perCategory := map[string]int{}
	for _, opp := range opps {
		perCategory[opp.Category]++
	}
	for category, count := range perCategory {
		assert.LessOrEqual(t, count, cfg.DiversificationLimit, "category %s", category)
	}
}

func TestHighRiskCap(t *testing.T) {
	market, cfg := buyingConfig()
	cfg.MaxHighRiskPurchases = 1
	cfg.DiversificationLimit = 100
	cfg.MaxTotalInvestment = 10_000_000
	// Misc items are high risk and unknown, so the category multiplier
	// carries the margin.
	for i := 0; i < 5; i++ {
		market.TargetItems = append(market.TargetItems, fmt.Sprintf("Odd Trinket %d", i))
		market.MaxPricePerUnit = append(market.MaxPricePerUnit, 1_000)
	}
	b := NewBuying(market, cfg, mock.NopLogger{})

	var listings []core.MarketListing
	for i := 0; i < 5; i++ {
		listings = append(listings, listing(fmt.Sprintf("Odd Trinket %d", i), 100, 10))
	}
	opps := b.Evaluate(listings, snapshotWithFunds(10_000_000))

	high := 0
	for _, opp := range opps {
		if opp.Risk == core.RiskHigh {
			high++
		}
	}
	assert.LessOrEqual(t, high, cfg.MaxHighRiskPurchases)
	assert.Equal(t, 1, high)
}

func TestRiskEscalation(t *testing.T) {
	market, cfg := buyingConfig()
	market.TargetItems = append(market.TargetItems, "Golden Bullets", "Bulk Bullets")
	market.MaxPricePerUnit = append(market.MaxPricePerUnit, 100_000, 50)
	cfg.MaxItemTotalPrice = 10_000_000
	cfg.MaxTotalInvestment = 10_000_000
	b := NewBuying(market, cfg, mock.NopLogger{})

	snapshot := snapshotWithFunds(10_000_000)

	// Unit price above 30k escalates low (ammo) to medium.
	opps := b.Evaluate([]core.MarketListing{listing("Golden Bullets", 40_000, 1)}, snapshot)
	require.Len(t, opps, 1)
	assert.Equal(t, core.RiskMedium, opps[0].Risk)

	// Quantity above 5k does the same.
	opps = b.Evaluate([]core.MarketListing{listing("Bulk Bullets", 2.0, 6_000)}, snapshot)
	require.Len(t, opps, 1)
	assert.Equal(t, core.RiskMedium, opps[0].Risk)
}

func TestOrderingByPriority(t *testing.T) {
	market, cfg := buyingConfig()
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 12.0, 100),
		listing("12.7mm Rifle Bullets", 8.0, 100),
	}, snapshotWithFunds(1_000_000))
	require.Len(t, opps, 2)
	assert.True(t, opps[0].PriorityScore.GreaterThanOrEqual(opps[1].PriorityScore))
	// Cheaper listing has the bigger margin, so it comes first.
	assert.True(t, opps[0].Listing.UnitPrice.Equal(decimal.NewFromInt(8)))
}

func TestHistoryEstimateForUnknownItems(t *testing.T) {
	market, cfg := buyingConfig()
	market.TargetItems = append(market.TargetItems, "Weird Gadget")
	market.MaxPricePerUnit = append(market.MaxPricePerUnit, 1_000)
	b := NewBuying(market, cfg, mock.NopLogger{})

	for i := 0; i < 4; i++ {
		b.RecordObservedPrice("Weird Gadget", decimal.NewFromInt(200))
	}
	// Trailing average 200 x 1.10 = 220 estimate; price 100 passes margin.
	opps := b.Evaluate([]core.MarketListing{listing("Weird Gadget", 100, 1)}, snapshotWithFunds(100_000))
	require.Len(t, opps, 1)
	assert.True(t, opps[0].EstimatedSellPrice.Equal(decimal.NewFromInt(220)),
		"estimate %s", opps[0].EstimatedSellPrice)
}

func TestRecordPurchaseAndStatistics(t *testing.T) {
	market, cfg := buyingConfig()
	b := NewBuying(market, cfg, mock.NopLogger{})

	opps := b.Evaluate([]core.MarketListing{
		listing("12.7mm Rifle Bullets", 8.0, 100),
	}, snapshotWithFunds(100_000))
	require.Len(t, opps, 1)

	b.RecordPurchase(&opps[0])
	stats := b.Statistics()
	assert.Equal(t, 1, stats["total_purchases"])

	b.Reset()
	assert.Equal(t, 0, b.Statistics()["total_purchases"])
}
