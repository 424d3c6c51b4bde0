// Package probe reads the player's resource counters from the game pages.
package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auto_trader/internal/browser"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
)

// counter is one optional reading; nil means the read failed.
type counter struct {
	name  string
	value *int64
}

func intCounter(name string, v int64, ok bool) counter {
	if !ok || v < 0 || v > core.CounterMax {
		return counter{name: name}
	}
	return counter{name: name, value: &v}
}

// Probe collects a full ResourceSnapshot. Any counter outside
// [0, CounterMax] is a read failure, never a silent zero; a snapshot with a
// failed counter fails the whole probe.
type Probe struct {
	nav    *browser.Navigator
	logger core.ILogger
	now    func() time.Time
}

// New creates a resource probe.
func New(nav *browser.Navigator, logger core.ILogger) *Probe {
	return &Probe{
		nav:    nav,
		logger: logger.WithField("component", "resource_probe"),
		now:    time.Now,
	}
}

// Probe visits the canonical pages and assembles a snapshot.
func (p *Probe) Probe(ctx context.Context) (*core.ResourceSnapshot, error) {
	sel := p.nav.Selectors()

	// Cash is visible on the home sidebar.
	if err := p.nav.EnsureURL(ctx, p.nav.URLs().Home); err != nil {
		return nil, err
	}
	cashVal, cashErr := p.nav.CurrentCash(ctx)
	cash := intCounter("cash", cashVal, cashErr == nil)

	// Bank balance.
	if err := p.nav.EnsureURL(ctx, p.nav.URLs().Bank); err != nil {
		return nil, err
	}
	bankVal, bankOK := p.readDollars(ctx, sel.BankBalance)
	bank := intCounter("bank", bankVal, bankOK)

	// Inventory and storage counters share the storage page.
	if err := p.nav.EnsureURL(ctx, p.nav.URLs().Storage); err != nil {
		return nil, err
	}
	invUsed, invTotal, invOK := p.readCounter(ctx, sel.InventoryCounter)
	stoUsed, stoTotal, stoOK := p.readCounter(ctx, sel.StorageCounter)

	// Selling slot occupancy lives on the marketplace page.
	if err := p.nav.EnsureURL(ctx, p.nav.URLs().Marketplace); err != nil {
		return nil, err
	}
	if err := p.nav.CloseOverlay(ctx); err != nil {
		p.logger.Debug("overlay dismissal failed", "error", err)
	}
	slotUsed, slotTotal, slotOK := p.readCounter(ctx, sel.SellingSlotsUsed)

	counters := []counter{
		cash,
		bank,
		intCounter("inventory_used", int64(invUsed), invOK),
		intCounter("inventory_total", int64(invTotal), invOK),
		intCounter("storage_used", int64(stoUsed), stoOK),
		intCounter("storage_total", int64(stoTotal), stoOK),
		intCounter("selling_slots_used", int64(slotUsed), slotOK),
		intCounter("selling_slots_max", int64(slotTotal), slotOK),
	}
	var missing []string
	for _, c := range counters {
		if c.value == nil {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: resource counters unreadable: %s",
			apperrors.ErrNotFound, strings.Join(missing, ", "))
	}

	snapshot := &core.ResourceSnapshot{
		Cash:             *counters[0].value,
		Bank:             *counters[1].value,
		InventoryUsed:    int(*counters[2].value),
		InventoryTotal:   int(*counters[3].value),
		StorageUsed:      int(*counters[4].value),
		StorageTotal:     int(*counters[5].value),
		SellingSlotsUsed: int(*counters[6].value),
		SellingSlotsMax:  int(*counters[7].value),
		Timestamp:        p.now(),
	}
	p.logger.Info("resources probed",
		"total_funds", snapshot.TotalFunds(),
		"inventory", fmt.Sprintf("%d/%d", snapshot.InventoryUsed, snapshot.InventoryTotal),
		"storage", fmt.Sprintf("%d/%d", snapshot.StorageUsed, snapshot.StorageTotal),
		"selling", fmt.Sprintf("%d/%d", snapshot.SellingSlotsUsed, snapshot.SellingSlotsMax))

	return snapshot, nil
}

func (p *Probe) readDollars(ctx context.Context, selector string) (int64, bool) {
	el, err := p.nav.Session().QuerySelector(ctx, selector)
	if err != nil || el == nil {
		return 0, false
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, false
	}
	value, err := browser.ParseDollars(text)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (p *Probe) readCounter(ctx context.Context, selector string) (used, total int, ok bool) {
	el, err := p.nav.Session().QuerySelector(ctx, selector)
	if err != nil || el == nil {
		return 0, 0, false
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, 0, false
	}
	used, total, err = browser.ParseCounter(text)
	if err != nil {
		return 0, 0, false
	}
	return used, total, true
}

var _ core.IResourceProbe = (*Probe)(nil)
