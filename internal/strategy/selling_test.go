package strategy

import (
	"math"
	"testing"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sellingConfig() config.SellingConfig {
	return config.DefaultConfig().Selling
}

func invItem(name string, qty int) core.InventoryItem {
	return core.InventoryItem{ItemName: name, Quantity: qty, AcquiredAt: time.Now()}
}

func TestPlanPricesCarryMarkup(t *testing.T) {
	cfg := sellingConfig()
	s := NewSelling(cfg, mock.NopLogger{})

	orders := s.Plan([]core.InventoryItem{
		invItem("Pain Killers", 100),
	}, 0, 30, nil)
	require.Len(t, orders, 1)

	// Reference 25, markup 25%: unit ceil(25 * 1.25) = 32, stack 3200.
	assert.Equal(t, int64(3200), orders[0].SellingPrice)

	// The floor property: at least ceil(reference x (1 + min markup)).
	minTotal := int64(math.Ceil(25*(1+cfg.MinMarkupPercentage))) * 100
	assert.GreaterOrEqual(t, orders[0].SellingPrice, minTotal)
}

func TestPlanSlotPositionsUniqueAndSequential(t *testing.T) {
	cfg := sellingConfig()
	cfg.MinSlotValue = 0
	s := NewSelling(cfg, mock.NopLogger{})

	orders := s.Plan([]core.InventoryItem{
		invItem("Pain Killers", 10),
		invItem("Bandages", 10),
		invItem("12.7mm Rifle Bullets", 10),
	}, 4, 30, nil)
	require.Len(t, orders, 3)

	seen := map[int]bool{}
	for i, order := range orders {
		assert.Equal(t, 4+i+1, order.SlotPosition)
		assert.False(t, seen[order.SlotPosition], "duplicate slot %d", order.SlotPosition)
		seen[order.SlotPosition] = true
	}
}

func TestPlanTruncatesToAvailableSlots(t *testing.T) {
	cfg := sellingConfig()
	cfg.MinSlotValue = 0
	s := NewSelling(cfg, mock.NopLogger{})

	items := []core.InventoryItem{
		invItem("Pain Killers", 10),
		invItem("Bandages", 10),
		invItem("12.7mm Rifle Bullets", 10),
		invItem("12 Gauge Shells", 10),
	}
	orders := s.Plan(items, 28, 30, nil)
	assert.Len(t, orders, 2)
}

func TestPlanNoSlotsNoOrders(t *testing.T) {
	s := NewSelling(sellingConfig(), mock.NopLogger{})
	assert.Empty(t, s.Plan([]core.InventoryItem{invItem("Bandages", 5)}, 30, 30, nil))
}

func TestPlanDropsBelowMinSlotValue(t *testing.T) {
	cfg := sellingConfig()
	cfg.MinSlotValue = 100_000
	s := NewSelling(cfg, mock.NopLogger{})

	orders := s.Plan([]core.InventoryItem{invItem("Bandages", 1)}, 0, 30, nil)
	assert.Empty(t, orders)
}

func TestPlanPrefersHighPriorityCategories(t *testing.T) {
	cfg := sellingConfig()
	cfg.MinSlotValue = 0
	s := NewSelling(cfg, mock.NopLogger{})

	// Both unknown items fall back to the same reference price, so the
	// category weight decides: medical outranks misc.
	orders := s.Plan([]core.InventoryItem{
		invItem("Strange Curio", 10),
		invItem("Mystery Health Kit", 10),
	}, 0, 1, nil)
	require.Len(t, orders, 1)
	assert.Equal(t, "Mystery Health Kit", orders[0].Item.ItemName)
}

func TestSpaceClearSelectsLowestPriority(t *testing.T) {
	cfg := sellingConfig()
	s := NewSelling(cfg, mock.NopLogger{})

	orders := s.SpaceClearOrders([]core.InventoryItem{
		invItem("Pain Killers", 100),
		invItem("Strange Curio", 1),
		invItem("Bandages", 100),
	}, 1)
	require.Len(t, orders, 1)
	assert.Equal(t, "Strange Curio", orders[0].Item.ItemName)
}

func TestSpaceClearHalvesMarkup(t *testing.T) {
	cfg := sellingConfig()
	s := NewSelling(cfg, mock.NopLogger{})

	regular := s.Plan([]core.InventoryItem{invItem("Pain Killers", 100)}, 0, 30, nil)
	clearing := s.SpaceClearOrders([]core.InventoryItem{invItem("Pain Killers", 100)}, 1)
	require.Len(t, regular, 1)
	require.Len(t, clearing, 1)
	assert.Less(t, clearing[0].SellingPrice, regular[0].SellingPrice)

	// Halved markup: unit ceil(25 x 1.125) = 29, stack 2900.
	assert.Equal(t, int64(2900), clearing[0].SellingPrice)
}

func TestAgeRaisesPriority(t *testing.T) {
	cfg := sellingConfig()
	cfg.MinSlotValue = 0
	now := time.Now()
	s := NewSelling(cfg, mock.NopLogger{}).WithClock(func() time.Time { return now })

	fresh := invItem("Bandages", 10)
	fresh.AcquiredAt = now
	stale := invItem("Bandages", 10)
	stale.AcquiredAt = now.Add(-8 * 24 * time.Hour)
	stale.SlotIndex = 1

	orders := s.Plan([]core.InventoryItem{fresh, stale}, 0, 30, nil)
	require.Len(t, orders, 2)
	assert.Equal(t, 1, orders[0].Item.SlotIndex, "stale item should rank first")
}

func TestRecordSaleFeedsHistory(t *testing.T) {
	cfg := sellingConfig()
	s := NewSelling(cfg, mock.NopLogger{})

	order := core.SellOrder{
		Item:         invItem("Odd Widget", 10),
		SellingPrice: 5000,
	}
	for i := 0; i < 3; i++ {
		s.RecordSale(&order)
	}
	// With history, pricing for the unknown item leaves the fallback.
	orders := s.Plan([]core.InventoryItem{invItem("Odd Widget", 10)}, 0, 30, nil)
	require.Len(t, orders, 1)
	// History average 500/unit x 1.10 = 550 reference; ceil(550 x 1.25) = 688.
	assert.Equal(t, int64(6880), orders[0].SellingPrice)

	perf := s.Performance()
	assert.Equal(t, 3, perf["total_sales"])
}
