package strategy

import (
	"sort"

	"auto_trader/internal/config"
	"auto_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Hard sanity bounds on listings regardless of configuration.
var (
	maxSaneQuantity  = 10_000
	maxSaneUnitPrice = decimal.NewFromInt(100_000)
)

// priceEscalation thresholds bump the risk tier one level.
var (
	riskPriceThreshold = decimal.NewFromInt(30_000)
	riskQtyThreshold   = 5_000
)

// purchaseHistoryCap bounds the retained purchase history.
const purchaseHistoryCap = 100

// Buying scores candidate listings and enforces portfolio constraints. It
// owns its price and purchase history; nothing here touches the browser.
type Buying struct {
	market  config.MarketSearchConfig
	cfg     config.BuyingConfig
	history *PriceHistory
	logger  core.ILogger

	purchases []core.PurchaseOpportunity
}

// NewBuying creates the buying strategy.
func NewBuying(market config.MarketSearchConfig, cfg config.BuyingConfig, logger core.ILogger) *Buying {
	b := &Buying{
		market:  market,
		cfg:     cfg,
		history: NewPriceHistory(cfg.PriceHistoryWindow),
		logger:  logger.WithField("component", "buying_strategy"),
	}
	minMult := decimal.NewFromFloat(1 + cfg.MinProfitMargin)
	for category, mult := range sellMultipliers {
		if mult.LessThanOrEqual(minMult) {
			b.logger.Warn("category multiplier cannot reject unknown items",
				"category", category, "multiplier", mult, "min_margin", cfg.MinProfitMargin)
		}
	}
	return b
}

// Evaluate produces accepted opportunities ordered by priority, highest
// first, under the budget, diversification and risk caps.
func (b *Buying) Evaluate(listings []core.MarketListing, snapshot *core.ResourceSnapshot) []core.PurchaseOpportunity {
	var candidates []core.PurchaseOpportunity
	for i := range listings {
		if opp, ok := b.evaluateOne(&listings[i], snapshot); ok {
			candidates = append(candidates, opp)
		}
	}

	sortByPriority(candidates)
	accepted := b.applyPortfolioConstraints(candidates)
	b.logger.Info("evaluation complete",
		"listings", len(listings), "candidates", len(candidates), "accepted", len(accepted))
	return accepted
}

func (b *Buying) evaluateOne(listing *core.MarketListing, snapshot *core.ResourceSnapshot) (core.PurchaseOpportunity, bool) {
	var opp core.PurchaseOpportunity

	maxUnit, targeted := b.maxUnitPriceFor(listing.ItemName)
	if !targeted {
		return opp, false
	}
	if listing.Quantity < 1 || listing.Quantity > maxSaneQuantity {
		return opp, false
	}
	if listing.UnitPrice.LessThanOrEqual(decimal.Zero) || listing.UnitPrice.GreaterThan(maxSaneUnitPrice) {
		return opp, false
	}
	if listing.UnitPrice.GreaterThan(maxUnit) {
		return opp, false
	}
	total := listing.TotalPrice()
	if total.GreaterThan(decimal.NewFromInt(b.cfg.MaxItemTotalPrice)) {
		return opp, false
	}
	if total.GreaterThan(decimal.NewFromInt(snapshot.TotalFunds())) {
		return opp, false
	}

	estimated := b.estimateSellPrice(listing)
	if estimated.LessThanOrEqual(listing.UnitPrice) {
		return opp, false
	}
	margin := estimated.Sub(listing.UnitPrice).Div(listing.UnitPrice)
	if margin.LessThan(decimal.NewFromFloat(b.cfg.MinProfitMargin)) {
		return opp, false
	}

	category := Categorize(listing.ItemName)
	risk := b.assessRisk(listing, category)

	opp = core.PurchaseOpportunity{
		Listing:            *listing,
		EstimatedSellPrice: estimated,
		ProfitMargin:       margin,
		Risk:               risk,
		Category:           category,
	}
	opp.PriorityScore = b.priorityScore(&opp)
	return opp, true
}

func (b *Buying) maxUnitPriceFor(itemName string) (decimal.Decimal, bool) {
	for i, name := range b.market.TargetItems {
		if name == itemName {
			return decimal.NewFromFloat(b.market.MaxPricePerUnit[i]), true
		}
	}
	return decimal.Zero, false
}

// estimateSellPrice prefers, in order: the static table, the trailing local
// price history, and the category multiplier applied to the listing price.
func (b *Buying) estimateSellPrice(listing *core.MarketListing) decimal.Decimal {
	if entry, ok := KnownItemFor(listing.ItemName); ok {
		return entry.BasePrice.Mul(demandMultiplier(entry.Demand))
	}
	if avg, ok := b.history.TrailingAverage(listing.ItemName); ok {
		return avg.Mul(decimal.NewFromFloat(1.10))
	}
	return listing.UnitPrice.Mul(SellMultiplierFor(Categorize(listing.ItemName)))
}

func (b *Buying) assessRisk(listing *core.MarketListing, category string) core.RiskTier {
	risk := RiskFor(category)
	if listing.UnitPrice.GreaterThan(riskPriceThreshold) {
		risk = risk.Escalate()
	}
	if listing.Quantity > riskQtyThreshold {
		risk = risk.Escalate()
	}
	return risk
}

func (b *Buying) priorityScore(opp *core.PurchaseOpportunity) decimal.Decimal {
	score := opp.ProfitMargin.Mul(decimal.NewFromInt(100))
	score = score.Mul(riskMultipliers[opp.Risk])

	if entry, ok := KnownItemFor(opp.Listing.ItemName); ok {
		score = score.Mul(demandScoreBonus(entry.Demand))
	}

	qty := opp.Listing.Quantity
	switch {
	case qty >= 100 && qty <= 2000:
		score = score.Mul(decimal.NewFromFloat(1.1))
	case qty > 5000:
		score = score.Mul(decimal.NewFromFloat(0.9))
	}

	total := opp.Listing.TotalPrice()
	if total.GreaterThanOrEqual(decimal.NewFromInt(1_000)) && total.LessThanOrEqual(decimal.NewFromInt(30_000)) {
		score = score.Mul(decimal.NewFromFloat(1.1))
	}
	return score
}

// applyPortfolioConstraints walks the sorted candidates enforcing the total
// budget, per-category diversification and the high-risk cap.
func (b *Buying) applyPortfolioConstraints(sorted []core.PurchaseOpportunity) []core.PurchaseOpportunity {
	var accepted []core.PurchaseOpportunity
	var invested int64
	highRisk := 0
	perCategory := make(map[string]int)

	budget := b.cfg.MaxTotalInvestment
	for _, opp := range sorted {
		cost := opp.Listing.TotalPrice().Round(0).IntPart()
		if invested+cost > budget {
			continue
		}
		if opp.Risk == core.RiskHigh && highRisk >= b.cfg.MaxHighRiskPurchases {
			continue
		}
		if perCategory[opp.Category] >= b.cfg.DiversificationLimit {
			continue
		}

		invested += cost
		perCategory[opp.Category]++
		if opp.Risk == core.RiskHigh {
			highRisk++
		}
		accepted = append(accepted, opp)
	}
	return accepted
}

// RecordPurchase feeds a completed purchase back into the strategy caches.
func (b *Buying) RecordPurchase(opp *core.PurchaseOpportunity) {
	b.purchases = append(b.purchases, *opp)
	if len(b.purchases) > purchaseHistoryCap {
		b.purchases = b.purchases[len(b.purchases)-purchaseHistoryCap:]
	}
	b.history.Record(opp.Listing.ItemName, opp.Listing.UnitPrice)
}

// RecordObservedPrice adds a market observation without a purchase.
func (b *Buying) RecordObservedPrice(itemName string, unitPrice decimal.Decimal) {
	b.history.Record(itemName, unitPrice)
}

// Reset drops every strategy cache.
func (b *Buying) Reset() {
	b.purchases = nil
	b.history.Reset()
}

// Statistics summarizes recent purchases for the session roll-up.
func (b *Buying) Statistics() map[string]interface{} {
	stats := map[string]interface{}{"total_purchases": len(b.purchases)}
	if len(b.purchases) == 0 {
		return stats
	}
	recent := b.purchases
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	marginSum := decimal.Zero
	riskCounts := map[core.RiskTier]int{}
	for _, p := range recent {
		marginSum = marginSum.Add(p.ProfitMargin)
		riskCounts[p.Risk]++
	}
	stats["recent_avg_margin"] = marginSum.Div(decimal.NewFromInt(int64(len(recent))))
	stats["risk_distribution"] = riskCounts
	return stats
}

func sortByPriority(opps []core.PurchaseOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].PriorityScore.GreaterThan(opps[j].PriorityScore)
	})
}
