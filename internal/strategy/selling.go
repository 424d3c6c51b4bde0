package strategy

import (
	"sort"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"

	"github.com/shopspring/decimal"
)

// saleHistoryCap bounds the retained sale history.
const saleHistoryCap = 100

// fallbackUnitReference prices items with no table entry and no history.
var fallbackUnitReference = decimal.NewFromInt(1_000)

// Selling prices inventory items and allocates selling slots by priority.
type Selling struct {
	cfg     config.SellingConfig
	history *PriceHistory
	logger  core.ILogger
	now     func() time.Time

	sales []core.SellOrder
}

// NewSelling creates the selling strategy.
func NewSelling(cfg config.SellingConfig, logger core.ILogger) *Selling {
	return &Selling{
		cfg:     cfg,
		history: NewPriceHistory(0),
		logger:  logger.WithField("component", "selling_strategy"),
		now:     time.Now,
	}
}

// WithClock replaces the time source for tests.
func (s *Selling) WithClock(now func() time.Time) *Selling {
	s.now = now
	return s
}

// Plan produces sell orders for the available slots, highest priority
// first. Orders below the minimum slot value are dropped; slot positions are
// assigned sequentially starting at the first free slot.
func (s *Selling) Plan(items []core.InventoryItem, slotsUsed, slotsMax int, snapshot *core.ResourceSnapshot) []core.SellOrder {
	available := slotsMax - slotsUsed
	if available <= 0 || len(items) == 0 {
		return nil
	}

	orders := s.evaluate(items, s.cfg.MarkupPercentage)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].PriorityScore.GreaterThan(orders[j].PriorityScore)
	})

	var selected []core.SellOrder
	for _, order := range orders {
		if len(selected) >= available {
			break
		}
		if order.SellingPrice < s.cfg.MinSlotValue {
			continue
		}
		selected = append(selected, order)
	}

	for i := range selected {
		selected[i].SlotPosition = slotsUsed + i + 1
	}
	s.logger.Info("selling plan ready",
		"inventory", len(items), "available_slots", available, "orders", len(selected))
	return selected
}

// SpaceClearOrders selects the lowest-priority items in sufficient number to
// free the requested space, priced aggressively with a reduced markup.
func (s *Selling) SpaceClearOrders(items []core.InventoryItem, spaceNeeded int) []core.SellOrder {
	if spaceNeeded <= 0 || len(items) == 0 {
		return nil
	}
	markup := s.cfg.MarkupPercentage * s.cfg.SpaceClearMarkupFactor
	orders := s.evaluate(items, markup)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].PriorityScore.LessThan(orders[j].PriorityScore)
	})
	if len(orders) > spaceNeeded {
		orders = orders[:spaceNeeded]
	}
	for i := range orders {
		orders[i].SlotPosition = i + 1
	}
	s.logger.Info("space-clear plan ready", "space_needed", spaceNeeded, "orders", len(orders))
	return orders
}

func (s *Selling) evaluate(items []core.InventoryItem, markup float64) []core.SellOrder {
	markupMult := decimal.NewFromFloat(1 + markup)
	var orders []core.SellOrder
	for _, item := range items {
		unitRef := s.referenceUnitPrice(item.ItemName)
		unitSell := unitRef.Mul(markupMult).Ceil()
		total := unitSell.Mul(decimal.NewFromInt(int64(item.Quantity))).IntPart()
		if total <= 0 {
			continue
		}
		order := core.SellOrder{
			Item:         item,
			SellingPrice: total,
		}
		order.PriorityScore = s.priorityScore(&item, total)
		orders = append(orders, order)
	}
	return orders
}

// referenceUnitPrice uses the same table-first, history-second,
// category-third pipeline as purchase estimation.
func (s *Selling) referenceUnitPrice(itemName string) decimal.Decimal {
	if entry, ok := KnownItemFor(itemName); ok {
		return entry.BasePrice
	}
	if avg, ok := s.history.TrailingAverage(itemName); ok {
		return avg.Mul(decimal.NewFromFloat(1.10))
	}
	return fallbackUnitReference
}

func (s *Selling) priorityScore(item *core.InventoryItem, totalValue int64) decimal.Decimal {
	category := Categorize(item.ItemName)
	score := decimal.NewFromInt(totalValue).Div(decimal.NewFromInt(100))
	score = score.Mul(SellingWeightFor(category))

	if _, ok := KnownItemFor(item.ItemName); ok {
		score = score.Mul(decimal.NewFromFloat(1.3))
	}

	switch {
	case item.Quantity >= 1000:
		score = score.Mul(decimal.NewFromFloat(1.2))
	case item.Quantity >= 500:
		score = score.Mul(decimal.NewFromFloat(1.1))
	}

	if !item.AcquiredAt.IsZero() {
		age := s.now().Sub(item.AcquiredAt)
		switch {
		case age > 7*24*time.Hour:
			score = score.Mul(decimal.NewFromFloat(1.5))
		case age > 3*24*time.Hour:
			score = score.Mul(decimal.NewFromFloat(1.2))
		}
	}
	return score
}

// RecordSale feeds a completed listing back into the strategy caches.
func (s *Selling) RecordSale(order *core.SellOrder) {
	s.sales = append(s.sales, *order)
	if len(s.sales) > saleHistoryCap {
		s.sales = s.sales[len(s.sales)-saleHistoryCap:]
	}
	if order.Item.Quantity > 0 {
		unit := decimal.NewFromInt(order.SellingPrice).
			DivRound(decimal.NewFromInt(int64(order.Item.Quantity)), 2)
		s.history.Record(order.Item.ItemName, unit)
	}
}

// Reset drops every strategy cache.
func (s *Selling) Reset() {
	s.sales = nil
	s.history.Reset()
}

// Performance summarizes recent sales per category.
func (s *Selling) Performance() map[string]interface{} {
	stats := map[string]interface{}{"total_sales": len(s.sales)}
	if len(s.sales) == 0 {
		return stats
	}
	recent := s.sales
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	var totalValue int64
	perCategory := map[string]int{}
	for _, sale := range recent {
		totalValue += sale.SellingPrice
		perCategory[Categorize(sale.Item.ItemName)]++
	}
	stats["recent_total_value"] = totalValue
	stats["category_counts"] = perCategory
	return stats
}
