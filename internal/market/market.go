// Package market drives the marketplace page: scanning, purchasing and
// sell listings.
package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"auto_trader/internal/browser"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// rowPriceTolerance is the unit-price tolerance when matching a listing row
// against the opportunity that selected it.
var rowPriceTolerance = decimal.NewFromFloat(0.01)

// confirmWait bounds how long a purchase waits for the confirmation modal.
const confirmWait = 5 * time.Second

// tab names for the sticky marketplace state.
const (
	tabBuy  = "buy"
	tabSell = "sell"
)

// pageState tracks where the module believes the browser is. It is private
// to the module and must be invalidated after any error recovery or session
// restore.
type pageState struct {
	onMarketplace bool
	currentTab    string
}

// Module performs all marketplace operations over a borrowed browser
// session.
type Module struct {
	nav    *browser.Navigator
	pacer  core.IPacer
	logger core.ILogger
	dryRun bool
	now    func() time.Time

	state pageState
}

// New creates a market module.
func New(nav *browser.Navigator, pacer core.IPacer, dryRun bool, logger core.ILogger) *Module {
	return &Module{
		nav:    nav,
		pacer:  pacer,
		dryRun: dryRun,
		logger: logger.WithField("component", "market"),
		now:    time.Now,
	}
}

// WithClock replaces the time source for tests.
func (m *Module) WithClock(now func() time.Time) *Module {
	m.now = now
	return m
}

// Invalidate drops the sticky page state. Called after error recovery or a
// session restore so the next operation re-navigates.
func (m *Module) Invalidate() {
	m.state = pageState{}
}

// ensureMarketplace puts the browser on the marketplace page and the wanted
// tab, navigating and switching only when the sticky state is stale.
func (m *Module) ensureMarketplace(ctx context.Context, tab string) error {
	if !m.state.onMarketplace {
		if err := m.nav.EnsureURL(ctx, m.nav.URLs().Marketplace); err != nil {
			return err
		}
		if err := m.nav.CloseOverlay(ctx); err != nil {
			m.logger.Debug("overlay dismissal failed", "error", err)
		}
		m.state.onMarketplace = true
		m.state.currentTab = ""
	}
	if tab == "" || m.state.currentTab == tab {
		return nil
	}

	sel := m.nav.Selectors()
	tabSel := sel.BuyTab
	if tab == tabSell {
		tabSel = sel.SellTab
	}
	el, err := m.nav.Session().QuerySelector(ctx, tabSel)
	if err != nil {
		return err
	}
	if el == nil {
		m.state = pageState{}
		return fmt.Errorf("%w: %s tab", apperrors.ErrNotFound, tab)
	}
	// A disabled tab control means that tab is already active.
	if disabled, err := el.IsDisabled(ctx); err == nil && disabled {
		m.state.currentTab = tab
		return nil
	}
	if err := m.pacer.Click(ctx, el); err != nil {
		return err
	}
	m.state.currentTab = tab
	return nil
}

// Scan searches for one item and parses up to maxItems listing rows.
func (m *Module) Scan(ctx context.Context, searchTerm string, maxItems int) ([]core.MarketListing, error) {
	if err := m.ensureMarketplace(ctx, tabBuy); err != nil {
		return nil, err
	}
	sel := m.nav.Selectors()
	session := m.nav.Session()

	input, err := session.QuerySelector(ctx, sel.SearchInput)
	if err != nil {
		return nil, err
	}
	if input == nil {
		m.Invalidate()
		return nil, fmt.Errorf("%w: search input", apperrors.ErrNotFound)
	}
	if err := m.pacer.TypeInto(ctx, input, searchTerm); err != nil {
		return nil, err
	}
	btn, err := session.QuerySelector(ctx, sel.SearchButton)
	if err != nil {
		return nil, err
	}
	if btn == nil {
		return nil, fmt.Errorf("%w: search button", apperrors.ErrNotFound)
	}
	if err := m.pacer.Click(ctx, btn); err != nil {
		return nil, err
	}
	if err := m.pacer.Jitter(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
		return nil, err
	}

	rows, err := session.QuerySelectorAll(ctx, sel.ListingRows)
	if err != nil {
		return nil, err
	}

	var listings []core.MarketListing
	for _, row := range rows {
		if maxItems > 0 && len(listings) >= maxItems {
			break
		}
		listing, err := m.parseRow(ctx, row)
		if err != nil {
			m.logger.Debug("skipping unparsable row", "error", err)
			continue
		}
		listings = append(listings, listing)
	}
	m.logger.Info("market scan complete", "term", searchTerm, "rows", len(rows), "listings", len(listings))
	return listings, nil
}

// parseRow extracts one MarketListing from a table row.
func (m *Module) parseRow(ctx context.Context, row core.IElement) (core.MarketListing, error) {
	var listing core.MarketListing

	name, err := row.Attr(ctx, "data-name")
	if err != nil || name == "" {
		return listing, fmt.Errorf("row has no item name")
	}
	listing.ItemName = name

	if seller, err := row.Attr(ctx, "data-seller"); err == nil {
		listing.Seller = seller
	}
	listing.ItemLocation, _ = row.Attr(ctx, "data-item-location")
	listing.BuyNum, _ = row.Attr(ctx, "data-buynum")

	qtyRaw, err := row.Attr(ctx, "data-quantity")
	if err != nil || qtyRaw == "" {
		qtyRaw = "1"
	}
	qty, err := strconv.Atoi(qtyRaw)
	if err != nil || qty <= 0 {
		return listing, fmt.Errorf("bad quantity %q", qtyRaw)
	}
	listing.Quantity = qty

	priceRaw, err := row.Attr(ctx, "data-price")
	if err != nil || priceRaw == "" {
		return listing, fmt.Errorf("row has no price")
	}
	total, err := decimal.NewFromString(strings.ReplaceAll(priceRaw, ",", ""))
	if err != nil {
		return listing, fmt.Errorf("bad price %q: %w", priceRaw, err)
	}
	// Rows carry the stack total; unit price is total divided by quantity,
	// kept to two fractional digits.
	listing.UnitPrice = total.DivRound(decimal.NewFromInt(int64(qty)), 2)
	return listing, nil
}

// ExecutePurchase buys the exact row backing the opportunity. The row is
// re-identified by item name, seller and unit price within ±0.01 before
// clicking; a stale or missing row reports row_gone instead of buying
// something else.
func (m *Module) ExecutePurchase(ctx context.Context, opp *core.PurchaseOpportunity) (*core.PurchaseResult, error) {
	listing := opp.Listing
	result := &core.PurchaseResult{
		Status:    core.PurchaseOther,
		ItemName:  listing.ItemName,
		Quantity:  listing.Quantity,
		UnitPrice: listing.UnitPrice,
		Total:     listing.TotalPrice().Round(0).IntPart(),
		Seller:    listing.Seller,
	}

	if err := m.ensureMarketplace(ctx, tabBuy); err != nil {
		return result, err
	}
	if err := m.nav.CloseOverlay(ctx); err != nil {
		m.logger.Debug("overlay dismissal failed", "error", err)
	}

	row, err := m.findMatchingRow(ctx, &listing)
	if err != nil {
		return result, err
	}
	if row == nil {
		result.Status = core.PurchaseRowGone
		return result, nil
	}

	buyBtn, err := m.rowBuyButton(ctx, row)
	if err != nil {
		return result, err
	}
	if buyBtn == nil {
		result.Status = core.PurchaseRowGone
		return result, nil
	}

	if m.dryRun {
		m.logger.Info("dry run: skipping buy click", "item", listing.ItemName, "total", result.Total)
		result.Status = core.PurchaseOK
		return result, nil
	}

	if err := m.pacer.Click(ctx, buyBtn); err != nil {
		return result, err
	}

	status, err := m.settlePurchase(ctx)
	if err != nil {
		return result, err
	}
	result.Status = status
	if status == core.PurchaseOK {
		m.logger.Info("purchase complete", "item", listing.ItemName,
			"quantity", listing.Quantity, "unit_price", listing.UnitPrice, "total", result.Total)
	}
	return result, nil
}

// findMatchingRow locates the listing row by name + seller + unit price.
func (m *Module) findMatchingRow(ctx context.Context, listing *core.MarketListing) (core.IElement, error) {
	rows, err := m.nav.Session().QuerySelectorAll(ctx, m.nav.Selectors().ListingRows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		candidate, err := m.parseRow(ctx, row)
		if err != nil {
			continue
		}
		if candidate.ItemName != listing.ItemName {
			continue
		}
		if listing.Seller != "" && candidate.Seller != listing.Seller {
			continue
		}
		if candidate.UnitPrice.Sub(listing.UnitPrice).Abs().GreaterThan(rowPriceTolerance) {
			continue
		}
		return row, nil
	}
	return nil, nil
}

func (m *Module) rowBuyButton(ctx context.Context, row core.IElement) (core.IElement, error) {
	// The buy button is addressed through the row's locator tokens.
	loc, _ := row.Attr(ctx, "data-item-location")
	num, _ := row.Attr(ctx, "data-buynum")
	if loc != "" && num != "" {
		sel := fmt.Sprintf(`button[data-item-location=%q][data-buynum=%q]`, loc, num)
		if btn, err := m.nav.Session().QuerySelector(ctx, sel); err == nil && btn != nil {
			return btn, nil
		}
	}
	return m.nav.Session().QuerySelector(ctx, m.nav.Selectors().RowBuyButton)
}

// settlePurchase handles the confirmation modal after the buy click and
// classifies the outcome. A click without an observed confirmation is
// reported as confirmation_missing, never as success.
func (m *Module) settlePurchase(ctx context.Context) (core.PurchaseStatus, error) {
	sel := m.nav.Selectors()
	session := m.nav.Session()

	deadline := m.now().Add(confirmWait)
	for m.now().Before(deadline) {
		box, err := session.QuerySelector(ctx, sel.ConfirmBox)
		if err != nil {
			return core.PurchaseOther, err
		}
		if box != nil {
			text, err := box.InnerText(ctx)
			if err == nil {
				if status, terminal := classifyPrompt(text); terminal {
					return status, nil
				}
			}
			yes, err := session.QuerySelector(ctx, sel.ConfirmYes)
			if err != nil {
				return core.PurchaseOther, err
			}
			if yes != nil {
				if err := m.pacer.Click(ctx, yes); err != nil {
					return core.PurchaseOther, err
				}
				return core.PurchaseOK, nil
			}
		}
		if err := m.pacer.Jitter(ctx, 200*time.Millisecond, 500*time.Millisecond); err != nil {
			return core.PurchaseOther, err
		}
	}
	return core.PurchaseConfirmationMissing, nil
}

// classifyPrompt recognizes the terminal failure messages the game shows in
// place of the confirmation prompt.
func classifyPrompt(text string) (core.PurchaseStatus, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "inventory is full"), strings.Contains(lower, "no room"):
		return core.PurchaseInventoryFull, true
	case strings.Contains(lower, "cannot afford"), strings.Contains(lower, "not enough"):
		return core.PurchaseInsufficientFunds, true
	case strings.Contains(lower, "no longer available"), strings.Contains(lower, "already sold"):
		return core.PurchaseRowGone, true
	}
	return core.PurchaseOK, false
}

// ListForSale lists one inventory item. The price input expects the stack
// total; a value that looks like a unit price for a multi-item stack is
// recomputed with a warning. An obviously-total value is never coerced.
func (m *Module) ListForSale(ctx context.Context, order *core.SellOrder) error {
	if err := m.ensureMarketplace(ctx, tabSell); err != nil {
		return err
	}
	if err := m.nav.CloseOverlay(ctx); err != nil {
		m.logger.Debug("overlay dismissal failed", "error", err)
	}
	return m.listOne(ctx, order)
}

// BatchListForSale lists many items with a single tab switch and overlay
// dismissal, iterating orders with minimal inter-item delay and no
// re-navigation between items. The returned slice is order-aligned.
func (m *Module) BatchListForSale(ctx context.Context, orders []*core.SellOrder) ([]error, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if err := m.ensureMarketplace(ctx, tabSell); err != nil {
		return nil, err
	}
	if err := m.nav.CloseOverlay(ctx); err != nil {
		m.logger.Debug("overlay dismissal failed", "error", err)
	}

	results := make([]error, len(orders))
	for i, order := range orders {
		results[i] = m.listOne(ctx, order)
		if results[i] != nil {
			m.logger.Warn("listing failed", "item", order.Item.ItemName, "error", results[i])
		}
		if i < len(orders)-1 {
			if err := m.pacer.Jitter(ctx, 300*time.Millisecond, 700*time.Millisecond); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (m *Module) listOne(ctx context.Context, order *core.SellOrder) error {
	price := m.normalizePrice(order)

	sel := m.nav.Selectors()
	session := m.nav.Session()

	slotSel := fmt.Sprintf(`%s[title=%q]`, sel.InventorySlots, order.Item.ItemName)
	slot, err := session.QuerySelector(ctx, slotSel)
	if err != nil {
		return err
	}
	if slot == nil {
		return fmt.Errorf("%w: inventory item %q", apperrors.ErrNotFound, order.Item.ItemName)
	}
	if err := slot.RightClick(ctx); err != nil {
		return err
	}
	if err := m.pacer.Jitter(ctx, 200*time.Millisecond, 500*time.Millisecond); err != nil {
		return err
	}

	sellAction, err := session.QuerySelector(ctx, sel.SellContextMenu)
	if err != nil {
		return err
	}
	if sellAction == nil {
		return fmt.Errorf("%w: sell action", apperrors.ErrNotFound)
	}
	if err := m.pacer.Click(ctx, sellAction); err != nil {
		return err
	}

	priceInput, err := session.QuerySelector(ctx, sel.SellPriceInput)
	if err != nil {
		return err
	}
	if priceInput == nil {
		return fmt.Errorf("%w: price input", apperrors.ErrNotFound)
	}
	if err := m.pacer.TypeInto(ctx, priceInput, strconv.FormatInt(price, 10)); err != nil {
		return err
	}

	if m.dryRun {
		m.logger.Info("dry run: skipping listing confirm", "item", order.Item.ItemName, "price", price)
		return nil
	}

	// The listing flow confirms twice: once on the price form, once on the
	// final prompt.
	for i := 0; i < 2; i++ {
		confirm, err := session.QuerySelector(ctx, sel.SellConfirmBtn)
		if err != nil {
			return err
		}
		if confirm == nil {
			if i == 0 {
				return fmt.Errorf("%w: listing confirm", apperrors.ErrNotFound)
			}
			break
		}
		if err := m.pacer.Click(ctx, confirm); err != nil {
			return err
		}
	}
	m.logger.Info("item listed", "item", order.Item.ItemName, "price", price, "slot", order.SlotPosition)
	return nil
}

// normalizePrice applies the total-price input rule.
func (m *Module) normalizePrice(order *core.SellOrder) int64 {
	price := order.SellingPrice
	if price < 100 && order.Item.Quantity > 1 {
		recomputed := price * int64(order.Item.Quantity)
		m.logger.Warn("price looks like a unit price; recomputing stack total",
			"item", order.Item.ItemName, "given", price, "quantity", order.Item.Quantity, "total", recomputed)
		return recomputed
	}
	return price
}

// SellingSlots reads the (used, max) selling slot occupancy.
func (m *Module) SellingSlots(ctx context.Context) (int, int, error) {
	if err := m.ensureMarketplace(ctx, tabSell); err != nil {
		return 0, 0, err
	}
	el, err := m.nav.Session().QuerySelector(ctx, m.nav.Selectors().SellingSlotsUsed)
	if err != nil {
		return 0, 0, err
	}
	if el == nil {
		return 0, 0, fmt.Errorf("%w: selling slots counter", apperrors.ErrNotFound)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, 0, err
	}
	return browser.ParseCounter(text)
}
