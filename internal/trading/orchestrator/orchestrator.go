// Package orchestrator drives the perpetual trading cycle state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auto_trader/internal/bank"
	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/cyclelog"
	"auto_trader/internal/strategy"
	apperrors "auto_trader/pkg/errors"
	"auto_trader/pkg/retry"
	"auto_trader/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// lowInventoryThreshold triggers space management before scanning.
const lowInventoryThreshold = 10

// buyStopInventoryFree stops the buy loop when free slots run this low.
const buyStopInventoryFree = 5

// cancelSliceInterval bounds how long a wait can run before re-checking for
// cancellation.
const cancelSliceInterval = time.Second

// BankOps is the slice of the bank module the orchestrator drives.
type BankOps interface {
	EnsureMinimumCash(ctx context.Context, required int64) (*bank.Result, error)
}

// InventoryOps is the slice of the inventory module the orchestrator drives.
type InventoryOps interface {
	DepositAllToStorage(ctx context.Context) (*core.Transaction, error)
	WithdrawAllFromStorage(ctx context.Context) (*core.Transaction, error)
	Items(ctx context.Context) ([]core.InventoryItem, error)
}

// MarketOps is the slice of the market module the orchestrator drives.
type MarketOps interface {
	Scan(ctx context.Context, searchTerm string, maxItems int) ([]core.MarketListing, error)
	ExecutePurchase(ctx context.Context, opp *core.PurchaseOpportunity) (*core.PurchaseResult, error)
	BatchListForSale(ctx context.Context, orders []*core.SellOrder) ([]error, error)
	SellingSlots(ctx context.Context) (int, int, error)
	Invalidate()
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Config    *config.Config
	Guard     core.ISessionGuard
	Probe     core.IResourceProbe
	Bank      BankOps
	Inventory InventoryOps
	Market    MarketOps
	Buying    *strategy.Buying
	Selling   *strategy.Selling
	Cycles    *cyclelog.Logger
	Store     core.IStore
	Pacer     core.IPacer
	Notifier  core.INotifier
	Logger    core.ILogger
}

// SessionStats is the roll-up reported at shutdown.
type SessionStats struct {
	CyclesSucceeded int
	CyclesFailed    int
	Purchases       int
	Sales           int
	NetProfit       int64
	LoginFailures   int
}

// Orchestrator owns the state machine and runs cycles until cancelled. One
// orchestrator drives one browser session; at most one cycle executes at a
// time.
type Orchestrator struct {
	deps    Deps
	machine *Machine
	logger  core.ILogger

	consecutiveErrors int
	stats             SessionStats
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		machine: NewMachine(deps.Logger),
		logger:  deps.Logger.WithField("component", "orchestrator"),
	}
}

// Stats returns the session roll-up.
func (o *Orchestrator) Stats() SessionStats { return o.stats }

// Machine exposes the state machine for status reporting.
func (o *Orchestrator) Machine() *Machine { return o.machine }

// Run executes trading cycles until the context is cancelled or the
// configured cycle budget is exhausted. Fatal failures terminate with an
// error; everything else recovers with cooldowns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.machine.Transition(StateInitializing); err != nil {
		return err
	}
	if err := o.machine.Transition(StateLoginRequired); err != nil {
		return err
	}

	cycles := 0
	for {
		if ctx.Err() != nil {
			o.logger.Info("orchestrator cancelled", "cycles", cycles)
			return nil
		}

		blocked, err := o.runCycle(ctx)
		cycles++
		fatal := false
		if err != nil && ctx.Err() == nil {
			kind := apperrors.Classify(err)
			fatal = kind == apperrors.KindFatal || kind == apperrors.KindConfiguration
		}

		if err == nil {
			o.consecutiveErrors = 0
			o.stats.CyclesSucceeded++
		} else {
			o.consecutiveErrors++
			o.stats.CyclesFailed++
			o.logger.Error("cycle failed", "error", err, "consecutive", o.consecutiveErrors)
		}
		telemetry.GetGlobalMetrics().SetConsecutiveErrors(o.consecutiveErrors)
		telemetry.GetGlobalMetrics().SetBlocked(blocked)

		if fatal {
			o.seal(ctx, false)
			o.notify(ctx, "fatal error", err.Error())
			return err
		}
		if ctx.Err() != nil {
			o.seal(ctx, err == nil)
			return nil
		}

		if err != nil && o.consecutiveErrors >= o.deps.Config.Risk.MaxConsecutiveErrors {
			o.seal(ctx, false)
			if o.machine.CanTransition(StateCriticalError) {
				_ = o.machine.Transition(StateCriticalError)
			}
			o.notify(ctx, "critical error cooldown",
				fmt.Sprintf("%d consecutive cycle failures: %v", o.consecutiveErrors, err))
			cooldown := time.Duration(o.deps.Config.Risk.CriticalCooldownSeconds) * time.Second
			if waitErr := o.wait(ctx, cooldown); waitErr != nil {
				return nil
			}
			o.machine.Reset()
			_ = o.machine.Transition(StateInitializing)
			_ = o.machine.Transition(StateLoginRequired)
			o.consecutiveErrors = 0
			telemetry.GetGlobalMetrics().SetConsecutiveErrors(0)
			o.deps.Market.Invalidate()
			continue
		}

		lastCycle := false
		if max := o.deps.Config.App.MaxCycles; max > 0 && cycles >= max {
			o.logger.Info("cycle budget exhausted", "cycles", cycles)
			lastCycle = true
		}

		// The inter-cycle wait is the cycle's final stage, so a cancel that
		// lands here still seals this cycle's record as cancelled.
		if !lastCycle {
			waitFor := time.Duration(o.deps.Config.Risk.NormalWaitSeconds) * time.Second
			target := StateWaitingNormal
			if blocked {
				waitFor = time.Duration(o.deps.Config.Risk.BlockedWaitSeconds) * time.Second
				target = StateWaitingBlocked
			}
			if o.machine.CanTransition(target) {
				_ = o.machine.Transition(target)
			}
			o.logger.Info("waiting for next cycle", "wait", waitFor, "blocked", blocked)
			o.deps.Cycles.StartStage("wait")
			waitErr := o.wait(ctx, waitFor)
			o.deps.Cycles.EndStage("wait", waitErr == nil)
			if waitErr != nil {
				o.seal(ctx, err == nil)
				return nil
			}
		}

		o.seal(ctx, err == nil)
		if lastCycle {
			return nil
		}
		if o.machine.CanTransition(StateLoginRequired) {
			_ = o.machine.Transition(StateLoginRequired)
		}
	}
}

// seal closes the open cycle record if any, marking it cancelled when the
// context has already been torn down.
func (o *Orchestrator) seal(ctx context.Context, success bool) {
	if !o.deps.Cycles.Open() {
		return
	}
	cancelled := ctx.Err() != nil
	if record, err := o.deps.Cycles.EndCycle(context.WithoutCancel(ctx), success && !cancelled, cancelled); err != nil {
		o.logger.Error("failed to seal cycle", "error", err)
	} else if record != nil {
		o.stats.NetProfit += record.NetProfit
	}
}

// runCycle executes one full cycle: login check, resource probe, space
// management, market scan+buy, selling, post-probe. Sealing happens in Run
// after the inter-cycle wait; a panic here is converted into a cycle error.
func (o *Orchestrator) runCycle(ctx context.Context) (blocked bool, err error) {
	if _, startErr := o.deps.Cycles.StartCycle(); startErr != nil {
		return false, startErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			o.logger.Error("cycle panic", "panic", r)
		}
	}()

	// Login check.
	if err := o.loginStage(ctx); err != nil {
		return false, err
	}

	// Resource probe.
	snapshot, err := o.probeStage(ctx, "resource_check", "before")
	if err != nil {
		return false, err
	}

	// Bank reconciliation.
	blockedNow, err := o.fundsStage(ctx, snapshot)
	if err != nil {
		return snapshot.IsBlocked(o.deps.Config.Risk.MinCashThreshold), err
	}
	if blockedNow {
		// Nothing to trade with; the cycle stays well-formed and the
		// blocked wait follows.
		return true, nil
	}

	// Space management.
	skipBuy, err := o.spaceStage(ctx, snapshot)
	if err != nil {
		return false, err
	}

	// Market scan and buy.
	if !skipBuy {
		if err := o.scanAndBuyStage(ctx, snapshot); err != nil {
			return false, err
		}
	}

	// Selling.
	if err := o.sellingStage(ctx, snapshot); err != nil {
		return false, err
	}

	// Post-probe.
	after, err := o.probeStage(ctx, "post_check", "after")
	if err != nil {
		return false, err
	}
	return after.IsBlocked(o.deps.Config.Risk.MinCashThreshold), nil
}

// loginStage ensures an authenticated session.
func (o *Orchestrator) loginStage(ctx context.Context) error {
	return o.stage(ctx, "login", o.deps.Config.Timeouts.LoginSeconds, func(ctx context.Context) error {
		if o.machine.Current() != StateLoginRequired && o.machine.CanTransition(StateLoginRequired) {
			_ = o.machine.Transition(StateLoginRequired)
		}
		_ = o.machine.Transition(StateLoggingIn)
		ok, err := o.deps.Guard.EnsureLoggedIn(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if !ok {
			o.stats.LoginFailures++
			_ = o.machine.Transition(StateLoginFailed)
			if err == nil {
				err = apperrors.ErrLoginFailed
			}
			return err
		}
		o.deps.Market.Invalidate()
		return o.machine.Transition(StateCheckingResources)
	})
}

// probeStage reads a snapshot and records it under the given label.
func (o *Orchestrator) probeStage(ctx context.Context, stageName, label string) (*core.ResourceSnapshot, error) {
	var snapshot *core.ResourceSnapshot
	err := o.stage(ctx, stageName, o.deps.Config.Timeouts.ProbeSeconds, func(ctx context.Context) error {
		if o.machine.Current() != StateCheckingResources && o.machine.CanTransition(StateCheckingResources) {
			_ = o.machine.Transition(StateCheckingResources)
		}
		var err error
		snapshot, err = o.deps.Probe.Probe(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.deps.Cycles.RecordSnapshot(snapshot, label)
	return snapshot, nil
}

// fundsStage tops cash up from the bank when needed. Returns true when the
// player cannot fund any trading this cycle.
func (o *Orchestrator) fundsStage(ctx context.Context, snapshot *core.ResourceSnapshot) (bool, error) {
	minCash := o.deps.Config.Risk.MinCashThreshold
	if snapshot.Cash >= minCash {
		return false, nil
	}
	if snapshot.Bank == 0 {
		_ = o.machine.Transition(StateInsufficientFunds)
		_ = o.machine.Transition(StateWaitingBlocked)
		o.logger.Warn("insufficient funds", "total", snapshot.TotalFunds(), "threshold", minCash)
		return true, nil
	}

	blocked := false
	err := o.stage(ctx, "bank_withdrawal", o.deps.Config.Timeouts.ProbeSeconds, func(ctx context.Context) error {
		_ = o.machine.Transition(StateWithdrawingFromBank)
		result, err := o.deps.Bank.EnsureMinimumCash(ctx, minCash)
		if err != nil {
			if errors.Is(err, apperrors.ErrInsufficientFunds) {
				_ = o.machine.Transition(StateInsufficientFunds)
				_ = o.machine.Transition(StateWaitingBlocked)
				blocked = true
				return nil
			}
			return err
		}
		if result.Tx.Kind != "" {
			o.deps.Cycles.RecordTransaction(result.Tx)
		}
		snapshot.Cash = result.CashAfter
		snapshot.Bank = result.BankAfter
		return o.machine.Transition(StateCheckingResources)
	})
	return blocked, err
}

// spaceStage frees inventory room before scanning when it runs low. When
// storage is full too, the buy phase is skipped and the cycle goes straight
// to selling.
func (o *Orchestrator) spaceStage(ctx context.Context, snapshot *core.ResourceSnapshot) (skipBuy bool, err error) {
	if snapshot.InventoryFree() >= lowInventoryThreshold {
		return false, nil
	}
	err = o.stage(ctx, "space_management", o.deps.Config.Timeouts.ProbeSeconds, func(ctx context.Context) error {
		_ = o.machine.Transition(StateCheckingInventory)
		if snapshot.StorageFree() == 0 {
			_ = o.machine.Transition(StateSpaceFull)
			o.logger.Warn("inventory low and storage full",
				"inventory_free", snapshot.InventoryFree(), "storage_free", 0)
			cleared, err := o.clearSpaceBySelling(ctx, snapshot)
			if err != nil {
				return err
			}
			if !cleared {
				skipBuy = true
				return nil
			}
			_ = o.machine.Transition(StateCheckingInventory)
			return o.machine.Transition(StateMarketScanning)
		}
		_ = o.machine.Transition(StateDepositingToStorage)
		tx, err := o.deps.Inventory.DepositAllToStorage(ctx)
		if err != nil {
			return err
		}
		if tx != nil {
			o.deps.Cycles.RecordTransaction(*tx)
			snapshot.StorageUsed += tx.Quantity
			snapshot.InventoryUsed -= tx.Quantity
		}
		return o.machine.Transition(StateMarketScanning)
	})
	return skipBuy, err
}

// clearSpaceBySelling lists the lowest-priority inventory items at an
// aggressive price to free slots when both inventory and storage are full.
func (o *Orchestrator) clearSpaceBySelling(ctx context.Context, snapshot *core.ResourceSnapshot) (bool, error) {
	if snapshot.SellingSlotsFree() == 0 {
		return false, nil
	}
	items, err := o.deps.Inventory.Items(ctx)
	if err != nil {
		return false, err
	}
	needed := lowInventoryThreshold - snapshot.InventoryFree()
	if free := snapshot.SellingSlotsFree(); needed > free {
		needed = free
	}
	orders := o.deps.Selling.SpaceClearOrders(items, needed)
	if len(orders) == 0 {
		return false, nil
	}

	orderPtrs := make([]*core.SellOrder, len(orders))
	for i := range orders {
		orderPtrs[i] = &orders[i]
	}
	results, err := o.deps.Market.BatchListForSale(ctx, orderPtrs)
	if err != nil {
		return false, err
	}
	listed := 0
	for i, listErr := range results {
		if listErr != nil {
			continue
		}
		order := orders[i]
		o.deps.Selling.RecordSale(&order)
		o.stats.Sales++
		listed++
		snapshot.InventoryUsed--
		snapshot.SellingSlotsUsed++
		unit := decimal.Zero
		if order.Item.Quantity > 0 {
			unit = decimal.NewFromInt(order.SellingPrice).
				DivRound(decimal.NewFromInt(int64(order.Item.Quantity)), 2)
		}
		o.deps.Cycles.RecordTransaction(core.Transaction{
			Kind:      core.TxSale,
			ItemName:  order.Item.ItemName,
			Quantity:  order.Item.Quantity,
			UnitPrice: unit,
			Total:     order.SellingPrice,
			Status:    core.TxSuccess,
			Detail:    map[string]string{"mode": "space_clear"},
		})
	}
	o.logger.Info("space-clear listing complete", "requested", needed, "listed", listed)
	return listed > 0, nil
}

// scanAndBuyStage searches each target item and buys accepted opportunities
// immediately while the page still shows them.
func (o *Orchestrator) scanAndBuyStage(ctx context.Context, snapshot *core.ResourceSnapshot) error {
	cfg := o.deps.Config
	return o.stage(ctx, "market_scan", cfg.Timeouts.MarketScanSeconds, func(ctx context.Context) error {
		if o.machine.Current() != StateMarketScanning && o.machine.CanTransition(StateMarketScanning) {
			_ = o.machine.Transition(StateMarketScanning)
		}

		condition := core.MarketCondition{ScannedAt: time.Now()}
		marginSum := decimal.Zero

		for _, target := range cfg.Market.TargetItems {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if snapshot.Cash < cfg.Risk.MinCashThreshold {
				o.logger.Info("cash below threshold, stopping scan", "cash", snapshot.Cash)
				break
			}
			if snapshot.InventoryFree() <= buyStopInventoryFree {
				o.logger.Info("inventory nearly full, stopping scan",
					"inventory_free", snapshot.InventoryFree())
				break
			}

			stop, err := o.scanAndBuyOne(ctx, target, snapshot, &condition, &marginSum)
			if err != nil {
				return err
			}
			if stop {
				break
			}
		}

		if condition.Opportunities > 0 {
			condition.AverageMargin = marginSum.Div(decimal.NewFromInt(int64(condition.Opportunities)))
		}
		condition.ActivityLevel = activityLevel(condition.Opportunities)
		o.deps.Cycles.RecordCondition(&condition)
		return nil
	})
}

// scanAndBuyOne handles one target item. Returns stop=true when the whole
// scan should end early.
func (o *Orchestrator) scanAndBuyOne(ctx context.Context, target string, snapshot *core.ResourceSnapshot, condition *core.MarketCondition, marginSum *decimal.Decimal) (bool, error) {
	cfg := o.deps.Config

	listings, err := o.deps.Market.Scan(ctx, target, cfg.Market.MaxItemsPerSearch)
	if err != nil {
		return false, err
	}
	condition.ItemsScanned++
	for i := range listings {
		o.deps.Buying.RecordObservedPrice(listings[i].ItemName, listings[i].UnitPrice)
		if err := o.deps.Store.AppendPriceSample(ctx, listings[i].ItemName, listings[i].UnitPrice, time.Now()); err != nil {
			o.logger.Debug("price sample append failed", "error", err)
		}
	}

	purchased := 0
	for purchased < cfg.Market.MaxPurchasesPerItem {
		if purchased > 0 {
			// The listing table refreshes after a buy; rescan before the
			// next pick.
			listings, err = o.deps.Market.Scan(ctx, target, cfg.Market.MaxItemsPerSearch)
			if err != nil {
				return false, err
			}
		}
		opportunities := o.deps.Buying.Evaluate(listings, snapshot)
		if len(opportunities) == 0 {
			break
		}
		condition.Opportunities += len(opportunities)
		for i := range opportunities {
			*marginSum = marginSum.Add(opportunities[i].ProfitMargin)
		}

		opp := opportunities[0]
		_ = o.machine.Transition(StateBuying)
		stop, bought, err := o.executePurchase(ctx, &opp, snapshot)
		if o.machine.CanTransition(StateMarketScanning) {
			_ = o.machine.Transition(StateMarketScanning)
		}
		if err != nil {
			return false, err
		}
		if bought {
			purchased++
		}
		if stop {
			return true, nil
		}
		if !bought {
			break
		}
		if snapshot.Cash < cfg.Risk.MinCashThreshold || snapshot.InventoryFree() <= buyStopInventoryFree {
			return true, nil
		}
		if err := o.deps.Pacer.Jitter(ctx, time.Second, 2*time.Second); err != nil {
			return false, err
		}
	}
	return false, nil
}

// executePurchase performs one purchase with its own timeout and maps the
// outcome onto transitions and transactions.
func (o *Orchestrator) executePurchase(ctx context.Context, opp *core.PurchaseOpportunity, snapshot *core.ResourceSnapshot) (stop, bought bool, err error) {
	purchaseCtx, cancel := context.WithTimeout(ctx, time.Duration(o.deps.Config.Timeouts.PurchaseSeconds)*time.Second)
	defer cancel()

	result, err := o.deps.Market.ExecutePurchase(purchaseCtx, opp)
	if err != nil {
		if result != nil && purchaseCtx.Err() != nil && ctx.Err() == nil {
			// Outcome unknown after timeout: record conservatively and
			// refresh the snapshot on the next probe.
			o.recordPurchaseTx(result, core.TxUnknown, map[string]string{"reason": "purchase timeout"})
			snapshot.Cash -= result.Total
			return false, false, nil
		}
		return false, false, err
	}

	switch result.Status {
	case core.PurchaseOK:
		o.recordPurchaseTx(result, core.TxSuccess, map[string]string{
			"seller":   result.Seller,
			"margin":   opp.ProfitMargin.StringFixed(4),
			"priority": opp.PriorityScore.StringFixed(2),
		})
		o.deps.Buying.RecordPurchase(opp)
		o.stats.Purchases++
		if m := telemetry.GetGlobalMetrics(); m.PurchasesTotal != nil {
			m.PurchasesTotal.Add(ctx, 1)
		}
		snapshot.Cash -= result.Total
		snapshot.InventoryUsed++
		return false, true, nil

	case core.PurchaseInventoryFull:
		// Business-blocked: nothing was bought, so no transaction; the
		// outcome drives the transition into space management.
		o.logger.Warn("inventory full mid-scan, running space management")
		_ = o.machine.Transition(StateCheckingInventory)
		_ = o.machine.Transition(StateDepositingToStorage)
		tx, depErr := o.deps.Inventory.DepositAllToStorage(ctx)
		if depErr != nil {
			if errors.Is(depErr, apperrors.ErrStorageFull) {
				_ = o.machine.Transition(StateSpaceFull)
				_ = o.machine.Transition(StateSelling)
				return true, false, nil
			}
			return false, false, depErr
		}
		if tx != nil {
			o.deps.Cycles.RecordTransaction(*tx)
			snapshot.StorageUsed += tx.Quantity
			snapshot.InventoryUsed -= tx.Quantity
		}
		_ = o.machine.Transition(StateMarketScanning)
		return false, false, nil

	case core.PurchaseInsufficientFunds:
		o.logger.Warn("purchase refused for lack of funds", "item", result.ItemName)
		return true, false, nil

	case core.PurchaseRowGone:
		o.logger.Info("listing vanished before purchase", "item", result.ItemName)
		return false, false, nil

	case core.PurchaseConfirmationMissing:
		// Integrity outcome: the click went out but the confirmation was
		// never observed. Treat funds as debited.
		o.recordPurchaseTx(result, core.TxUnknown, map[string]string{"reason": "confirmation missing"})
		snapshot.Cash -= result.Total
		return false, false, nil

	default:
		o.recordPurchaseTx(result, core.TxFailed, map[string]string{"reason": "unclassified failure"})
		return false, false, nil
	}
}

func (o *Orchestrator) recordPurchaseTx(result *core.PurchaseResult, status core.TxStatus, detail map[string]string) {
	if result == nil {
		return
	}
	o.deps.Cycles.RecordTransaction(core.Transaction{
		Kind:      core.TxPurchase,
		ItemName:  result.ItemName,
		Quantity:  result.Quantity,
		UnitPrice: result.UnitPrice,
		Total:     result.Total,
		Status:    status,
		Detail:    detail,
	})
}

// sellingStage plans and lists sell orders for the free slots.
func (o *Orchestrator) sellingStage(ctx context.Context, snapshot *core.ResourceSnapshot) error {
	var orders []core.SellOrder
	err := o.stage(ctx, "selling_plan", o.deps.Config.Timeouts.ProbeSeconds, func(ctx context.Context) error {
		items, err := o.deps.Inventory.Items(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 && snapshot.StorageUsed > 0 && snapshot.InventoryFree() > 0 {
			// Pull stored stock back out so it can be listed.
			tx, err := o.deps.Inventory.WithdrawAllFromStorage(ctx)
			if err != nil {
				return err
			}
			if tx != nil {
				o.deps.Cycles.RecordTransaction(*tx)
				snapshot.StorageUsed -= tx.Quantity
				snapshot.InventoryUsed += tx.Quantity
			}
			items, err = o.deps.Inventory.Items(ctx)
			if err != nil {
				return err
			}
		}
		if len(items) == 0 {
			o.logger.Info("no inventory to sell")
			return nil
		}
		slotsUsed, slotsMax, err := o.deps.Market.SellingSlots(ctx)
		if err != nil {
			return err
		}
		if slotsUsed >= slotsMax {
			o.logger.Info("no selling slots available", "used", slotsUsed, "max", slotsMax)
			return nil
		}
		orders = o.deps.Selling.Plan(items, slotsUsed, slotsMax, snapshot)
		return nil
	})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	timeout := o.deps.Config.Timeouts.ListingPerOrderSeconds * len(orders)
	return o.stage(ctx, "selling", timeout, func(ctx context.Context) error {
		if o.machine.CanTransition(StateSelling) {
			_ = o.machine.Transition(StateSelling)
		}
		orderPtrs := make([]*core.SellOrder, len(orders))
		for i := range orders {
			orderPtrs[i] = &orders[i]
		}
		results, err := o.deps.Market.BatchListForSale(ctx, orderPtrs)
		if err != nil {
			return err
		}
		for i, listErr := range results {
			order := orders[i]
			status := core.TxSuccess
			detail := map[string]string{"slot": fmt.Sprintf("%d", order.SlotPosition)}
			if listErr != nil {
				status = core.TxFailed
				detail["reason"] = listErr.Error()
			} else {
				o.deps.Selling.RecordSale(&order)
				o.stats.Sales++
				if m := telemetry.GetGlobalMetrics(); m.SalesTotal != nil {
					m.SalesTotal.Add(ctx, 1)
				}
				snapshot.SellingSlotsUsed++
			}
			unit := decimal.Zero
			if order.Item.Quantity > 0 {
				unit = decimal.NewFromInt(order.SellingPrice).
					DivRound(decimal.NewFromInt(int64(order.Item.Quantity)), 2)
			}
			o.deps.Cycles.RecordTransaction(core.Transaction{
				Kind:      core.TxSale,
				ItemName:  order.Item.ItemName,
				Quantity:  order.Item.Quantity,
				UnitPrice: unit,
				Total:     order.SellingPrice,
				Status:    status,
				Detail:    detail,
			})
		}
		return nil
	})
}

// stage runs fn under a stage timeout with the transient retry budget,
// recording its timing on the cycle.
func (o *Orchestrator) stage(ctx context.Context, name string, timeoutSeconds int, fn func(ctx context.Context) error) error {
	o.deps.Cycles.StartStage(name)
	stageCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	policy := retry.RetryPolicy{
		MaxAttempts:    o.deps.Config.Risk.MaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
	err := retry.Do(stageCtx, policy, apperrors.IsTransient, func() error {
		return fn(stageCtx)
	})
	if err != nil && stageCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: stage %s exceeded %ds", apperrors.ErrTimeout, name, timeoutSeconds)
	}
	o.deps.Cycles.EndStage(name, err == nil)
	if err != nil {
		o.deps.Cycles.RecordError(err.Error(), name)
	}
	return err
}

// wait sleeps sliced so cancellation is observed within one second.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		slice := remaining
		if slice > cancelSliceInterval {
			slice = cancelSliceInterval
		}
		if err := o.deps.Pacer.Wait(ctx, slice); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, title, message string) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, title, message); err != nil {
		o.logger.Warn("notification failed", "error", err)
	}
}

func activityLevel(opportunities int) string {
	switch {
	case opportunities >= 10:
		return "high"
	case opportunities >= 5:
		return "medium"
	default:
		return "low"
	}
}
