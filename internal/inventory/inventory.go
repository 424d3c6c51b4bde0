// Package inventory moves items between the player's inventory and storage.
package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"auto_trader/internal/browser"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
)

// maxWithdrawAttempts bounds the storage-to-inventory transfer loop.
const maxWithdrawAttempts = 10

// Module drives the storage page. Space arithmetic always comes from the
// most recent ResourceSnapshot; callers refresh after any move.
type Module struct {
	nav    *browser.Navigator
	pacer  core.IPacer
	logger core.ILogger
	now    func() time.Time
}

// New creates an inventory module.
func New(nav *browser.Navigator, pacer core.IPacer, logger core.ILogger) *Module {
	return &Module{
		nav:    nav,
		pacer:  pacer,
		logger: logger.WithField("component", "inventory"),
		now:    time.Now,
	}
}

// Counters reads (inventoryUsed, inventoryTotal, storageUsed, storageTotal)
// from the storage page.
func (m *Module) Counters(ctx context.Context) (invUsed, invTotal, stoUsed, stoTotal int, err error) {
	if err = m.nav.EnsureURL(ctx, m.nav.URLs().Storage); err != nil {
		return
	}
	sel := m.nav.Selectors()
	invUsed, invTotal, err = m.readCounter(ctx, sel.InventoryCounter)
	if err != nil {
		return
	}
	stoUsed, stoTotal, err = m.readCounter(ctx, sel.StorageCounter)
	return
}

// SpaceFor reports whether the snapshot shows room for n more inventory
// items.
func (m *Module) SpaceFor(snapshot *core.ResourceSnapshot, n int) bool {
	return snapshot.InventoryFree() >= n
}

// DepositAllToStorage clicks the single deposit-all affordance and verifies
// that inventory use strictly decreased or reached zero. Depositing an
// already empty inventory is a successful no-op that produces no
// transaction.
func (m *Module) DepositAllToStorage(ctx context.Context) (*core.Transaction, error) {
	invBefore, _, stoUsed, stoTotal, err := m.Counters(ctx)
	if err != nil {
		return nil, err
	}
	if invBefore == 0 {
		m.logger.Info("inventory already empty, nothing to deposit")
		return nil, nil
	}
	if stoUsed >= stoTotal {
		return nil, fmt.Errorf("%w: storage %d/%d", apperrors.ErrStorageFull, stoUsed, stoTotal)
	}

	btn, err := m.nav.Session().QuerySelector(ctx, m.nav.Selectors().StorageDepositAll)
	if err != nil {
		return nil, err
	}
	if btn == nil {
		return nil, fmt.Errorf("%w: deposit-all control", apperrors.ErrNotFound)
	}
	if disabled, err := btn.IsDisabled(ctx); err != nil {
		return nil, err
	} else if disabled {
		return nil, fmt.Errorf("%w: deposit-all disabled", apperrors.ErrStorageFull)
	}
	if err := m.pacer.Click(ctx, btn); err != nil {
		return nil, err
	}

	invAfter, _, _, _, err := m.Counters(ctx)
	if err != nil {
		return nil, err
	}
	if invAfter >= invBefore {
		return nil, fmt.Errorf("deposit to storage had no effect: %d -> %d", invBefore, invAfter)
	}

	moved := invBefore - invAfter
	m.logger.Info("deposited to storage", "items", moved)
	tx := core.Transaction{
		Timestamp: m.now(),
		Kind:      core.TxStorageMove,
		Quantity:  moved,
		Status:    core.TxSuccess,
		Detail:    map[string]string{"direction": "deposit"},
	}
	return &tx, nil
}

// WithdrawAllFromStorage repeatedly invokes the storage-to-inventory
// transfer until storage is empty or the control is disabled, bounded by
// maxWithdrawAttempts with a short delay between attempts.
func (m *Module) WithdrawAllFromStorage(ctx context.Context) (*core.Transaction, error) {
	_, _, stoBefore, _, err := m.Counters(ctx)
	if err != nil {
		return nil, err
	}
	if stoBefore == 0 {
		return nil, nil
	}

	remaining := stoBefore
	for attempt := 0; attempt < maxWithdrawAttempts && remaining > 0; attempt++ {
		btn, err := m.nav.Session().QuerySelector(ctx, m.nav.Selectors().StorageTakeAll)
		if err != nil {
			return nil, err
		}
		if btn == nil {
			break
		}
		if disabled, err := btn.IsDisabled(ctx); err != nil {
			return nil, err
		} else if disabled {
			break
		}
		if err := m.pacer.Click(ctx, btn); err != nil {
			return nil, err
		}
		if err := m.pacer.Jitter(ctx, 300*time.Millisecond, 800*time.Millisecond); err != nil {
			return nil, err
		}
		_, _, remaining, _, err = m.Counters(ctx)
		if err != nil {
			return nil, err
		}
	}

	moved := stoBefore - remaining
	if moved == 0 {
		return nil, fmt.Errorf("%w: storage withdrawal made no progress", apperrors.ErrInventoryFull)
	}
	m.logger.Info("withdrew from storage", "items", moved, "remaining", remaining)
	tx := core.Transaction{
		Timestamp: m.now(),
		Kind:      core.TxStorageMove,
		Quantity:  moved,
		Status:    core.TxSuccess,
		Detail:    map[string]string{"direction": "withdraw"},
	}
	return &tx, nil
}

// Items lists the occupied inventory slots.
func (m *Module) Items(ctx context.Context) ([]core.InventoryItem, error) {
	if err := m.nav.EnsureURL(ctx, m.nav.URLs().Storage); err != nil {
		return nil, err
	}
	slots, err := m.nav.Session().QuerySelectorAll(ctx, m.nav.Selectors().InventorySlots)
	if err != nil {
		return nil, err
	}

	var items []core.InventoryItem
	for i, slot := range slots {
		name, err := slot.Attr(ctx, "title")
		if err != nil || name == "" {
			continue
		}
		item := core.InventoryItem{
			ItemName:   name,
			SlotIndex:  i,
			Quantity:   1,
			AcquiredAt: m.now(),
		}
		if qty, err := slot.Attr(ctx, "data-quantity"); err == nil && qty != "" {
			if n, err := strconv.Atoi(qty); err == nil && n > 0 {
				item.Quantity = n
			}
		}
		if typ, err := slot.Attr(ctx, "data-type"); err == nil {
			item.ItemType = typ
		}
		items = append(items, item)
	}
	return items, nil
}

func (m *Module) readCounter(ctx context.Context, selector string) (used, total int, err error) {
	el, err := m.nav.Session().QuerySelector(ctx, selector)
	if err != nil {
		return 0, 0, err
	}
	if el == nil {
		return 0, 0, fmt.Errorf("%w: %s", apperrors.ErrNotFound, selector)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, 0, err
	}
	return browser.ParseCounter(text)
}
