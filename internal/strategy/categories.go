// Package strategy scores market listings for purchase and prices inventory
// for sale.
package strategy

import (
	"strings"

	"auto_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Item categories
const (
	CategoryAmmo    = "ammo"
	CategoryWeapon  = "weapon"
	CategoryArmor   = "armor"
	CategoryMedical = "medical"
	CategoryFood    = "food"
	CategoryMisc    = "misc"
)

// categoryKeywords drive name-based classification, first match wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{CategoryAmmo, []string{"bullet", "shell", "ammo", "round"}},
	{CategoryWeapon, []string{"rifle", "pistol", "shotgun", "weapon"}},
	{CategoryArmor, []string{"armor", "vest", "helmet", "protection"}},
	{CategoryMedical, []string{"painkiller", "pain killer", "bandage", "medical", "health"}},
	{CategoryFood, []string{"food", "water", "drink", "meal"}},
}

// Categorize classifies an item by its name.
func Categorize(itemName string) string {
	lower := strings.ToLower(itemName)
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.category
			}
		}
	}
	return CategoryMisc
}

// categoryRisk is the base risk tier per category.
var categoryRisk = map[string]core.RiskTier{
	CategoryAmmo:    core.RiskLow,
	CategoryMedical: core.RiskLow,
	CategoryFood:    core.RiskLow,
	CategoryWeapon:  core.RiskMedium,
	CategoryArmor:   core.RiskMedium,
	CategoryMisc:    core.RiskHigh,
}

// RiskFor returns the base tier for a category.
func RiskFor(category string) core.RiskTier {
	if tier, ok := categoryRisk[category]; ok {
		return tier
	}
	return core.RiskMedium
}

// sellMultipliers estimate resale headroom per category for items with no
// table entry and no history. They sit above 1 + the default minimum margin;
// with multipliers at or below that, the margin filter can never reject an
// unknown item, so config keeps them apart.
var sellMultipliers = map[string]decimal.Decimal{
	CategoryAmmo:    decimal.NewFromFloat(1.15),
	CategoryWeapon:  decimal.NewFromFloat(1.25),
	CategoryArmor:   decimal.NewFromFloat(1.20),
	CategoryMedical: decimal.NewFromFloat(1.30),
	CategoryFood:    decimal.NewFromFloat(1.20),
	CategoryMisc:    decimal.NewFromFloat(1.40),
}

// SellMultiplierFor returns the category resale multiplier.
func SellMultiplierFor(category string) decimal.Decimal {
	if m, ok := sellMultipliers[category]; ok {
		return m
	}
	return decimal.NewFromFloat(1.20)
}

// sellingWeights order categories for slot allocation.
var sellingWeights = map[string]decimal.Decimal{
	CategoryMedical: decimal.NewFromFloat(0.9),
	CategoryAmmo:    decimal.NewFromFloat(0.8),
	CategoryFood:    decimal.NewFromFloat(0.7),
	CategoryWeapon:  decimal.NewFromFloat(0.6),
	CategoryArmor:   decimal.NewFromFloat(0.5),
	CategoryMisc:    decimal.NewFromFloat(0.4),
}

// SellingWeightFor returns the slot-allocation weight for a category.
func SellingWeightFor(category string) decimal.Decimal {
	if w, ok := sellingWeights[category]; ok {
		return w
	}
	return decimal.NewFromFloat(0.5)
}

// riskMultipliers weight the priority score by tier.
var riskMultipliers = map[core.RiskTier]decimal.Decimal{
	core.RiskLow:    decimal.NewFromFloat(1.2),
	core.RiskMedium: decimal.NewFromFloat(1.0),
	core.RiskHigh:   decimal.NewFromFloat(0.8),
}
