// Package bank drives the bank page: withdrawals and deposits with
// before/after balance verification.
package bank

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"auto_trader/internal/browser"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// balanceTolerance allows the game's rounding to drift by one dollar when
// verifying an operation.
const balanceTolerance = 1

// cacheTTL bounds how long a read balance is reused without a fresh read.
const cacheTTL = 30 * time.Second

// Result is the verified outcome of one bank operation.
type Result struct {
	Tx        core.Transaction
	CashAfter int64
	BankAfter int64
}

// Module performs bank operations. Every mutation reads the pre-balance,
// validates the request, drives the UI, then re-reads and verifies the
// delta within ±1 dollar.
type Module struct {
	nav    *browser.Navigator
	pacer  core.IPacer
	logger core.ILogger
	now    func() time.Time

	cachedCash int64
	cachedBank int64
	cachedAt   time.Time
}

// New creates a bank module.
func New(nav *browser.Navigator, pacer core.IPacer, logger core.ILogger) *Module {
	return &Module{
		nav:    nav,
		pacer:  pacer,
		logger: logger.WithField("component", "bank"),
		now:    time.Now,
	}
}

// Balances returns (cash, bank), reading the bank page unless a recent read
// is cached. Any mutation invalidates the cache.
func (m *Module) Balances(ctx context.Context) (int64, int64, error) {
	if !m.cachedAt.IsZero() && m.now().Sub(m.cachedAt) < cacheTTL {
		return m.cachedCash, m.cachedBank, nil
	}
	return m.readBalances(ctx)
}

func (m *Module) readBalances(ctx context.Context) (int64, int64, error) {
	if err := m.nav.EnsureURL(ctx, m.nav.URLs().Bank); err != nil {
		return 0, 0, err
	}
	cash, err := m.nav.CurrentCash(ctx)
	if err != nil {
		return 0, 0, err
	}
	el, err := m.nav.Session().QuerySelector(ctx, m.nav.Selectors().BankBalance)
	if err != nil {
		return 0, 0, err
	}
	if el == nil {
		return 0, 0, fmt.Errorf("%w: bank balance", apperrors.ErrNotFound)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return 0, 0, err
	}
	bankBalance, err := browser.ParseDollars(text)
	if err != nil {
		return 0, 0, err
	}
	m.cachedCash, m.cachedBank, m.cachedAt = cash, bankBalance, m.now()
	return cash, bankBalance, nil
}

func (m *Module) invalidate() {
	m.cachedAt = time.Time{}
}

// Withdraw moves amount from the bank to cash on hand.
func (m *Module) Withdraw(ctx context.Context, amount int64) (*Result, error) {
	cashBefore, bankBefore, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	if amount < 1 || amount > bankBefore {
		return nil, fmt.Errorf("%w: withdraw %d with bank %d", apperrors.ErrInsufficientFunds, amount, bankBefore)
	}

	sel := m.nav.Selectors()
	if err := m.fillAndClick(ctx, sel.BankWithdrawInput, sel.BankWithdrawBtn, amount); err != nil {
		return nil, err
	}
	m.invalidate()

	cashAfter, bankAfter, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	tx := m.transaction(core.TxWithdrawal, amount)
	if !within(bankBefore-bankAfter, amount, balanceTolerance) ||
		!within(cashAfter-cashBefore, amount, balanceTolerance) {
		tx.Status = core.TxFailed
		m.logger.Error("withdrawal verification failed",
			"requested", amount,
			"bank_delta", bankBefore-bankAfter,
			"cash_delta", cashAfter-cashBefore)
		return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter},
			fmt.Errorf("%w: withdraw %d", apperrors.ErrBalanceMismatch, amount)
	}
	m.logger.Info("withdrawal complete", "amount", amount, "cash", cashAfter, "bank", bankAfter)
	return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter}, nil
}

// WithdrawAll empties the bank into cash on hand. An empty bank is a
// successful no-op with no transaction.
func (m *Module) WithdrawAll(ctx context.Context) (*Result, error) {
	cashBefore, bankBefore, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	if bankBefore == 0 {
		return &Result{CashAfter: cashBefore, BankAfter: 0}, nil
	}

	sel := m.nav.Selectors()
	btn, err := m.nav.Session().QuerySelector(ctx, sel.BankWithdrawAll)
	if err != nil {
		return nil, err
	}
	if btn == nil {
		return nil, fmt.Errorf("%w: withdraw-all control", apperrors.ErrNotFound)
	}
	if err := m.pacer.Click(ctx, btn); err != nil {
		return nil, err
	}
	m.invalidate()

	cashAfter, bankAfter, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	tx := m.transaction(core.TxWithdrawal, bankBefore)
	if bankAfter > balanceTolerance || !within(cashAfter-cashBefore, bankBefore, balanceTolerance) {
		tx.Status = core.TxFailed
		return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter},
			fmt.Errorf("%w: withdraw all", apperrors.ErrBalanceMismatch)
	}
	return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter}, nil
}

// Deposit moves amount from cash on hand into the bank.
func (m *Module) Deposit(ctx context.Context, amount int64) (*Result, error) {
	cashBefore, bankBefore, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	if amount < 1 || amount > cashBefore {
		return nil, fmt.Errorf("%w: deposit %d with cash %d", apperrors.ErrInsufficientFunds, amount, cashBefore)
	}

	sel := m.nav.Selectors()
	if err := m.fillAndClick(ctx, sel.BankDepositInput, sel.BankDepositBtn, amount); err != nil {
		return nil, err
	}
	m.invalidate()

	cashAfter, bankAfter, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	tx := m.transaction(core.TxDeposit, amount)
	if !within(cashBefore-cashAfter, amount, balanceTolerance) ||
		!within(bankAfter-bankBefore, amount, balanceTolerance) {
		tx.Status = core.TxFailed
		return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter},
			fmt.Errorf("%w: deposit %d", apperrors.ErrBalanceMismatch, amount)
	}
	return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter}, nil
}

// DepositAll banks all cash on hand. Zero cash is a successful no-op.
func (m *Module) DepositAll(ctx context.Context) (*Result, error) {
	cashBefore, bankBefore, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	if cashBefore == 0 {
		return &Result{CashAfter: 0, BankAfter: bankBefore}, nil
	}

	sel := m.nav.Selectors()
	btn, err := m.nav.Session().QuerySelector(ctx, sel.BankDepositAll)
	if err != nil {
		return nil, err
	}
	if btn == nil {
		return nil, fmt.Errorf("%w: deposit-all control", apperrors.ErrNotFound)
	}
	if err := m.pacer.Click(ctx, btn); err != nil {
		return nil, err
	}
	m.invalidate()

	cashAfter, bankAfter, err := m.readBalances(ctx)
	if err != nil {
		return nil, err
	}
	tx := m.transaction(core.TxDeposit, cashBefore)
	if cashAfter > balanceTolerance || !within(bankAfter-bankBefore, cashBefore, balanceTolerance) {
		tx.Status = core.TxFailed
		return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter},
			fmt.Errorf("%w: deposit all", apperrors.ErrBalanceMismatch)
	}
	return &Result{Tx: tx, CashAfter: cashAfter, BankAfter: bankAfter}, nil
}

// EnsureMinimumCash tops cash on hand up to required. When cash already
// meets the requirement it is a no-op; when the bank cannot cover the
// deficit it fails without touching the UI.
func (m *Module) EnsureMinimumCash(ctx context.Context, required int64) (*Result, error) {
	cash, bankBalance, err := m.Balances(ctx)
	if err != nil {
		return nil, err
	}
	if cash >= required {
		return &Result{CashAfter: cash, BankAfter: bankBalance}, nil
	}
	deficit := required - cash
	if bankBalance < deficit {
		return nil, fmt.Errorf("%w: need %d, bank holds %d", apperrors.ErrInsufficientFunds, deficit, bankBalance)
	}
	return m.Withdraw(ctx, deficit)
}

func (m *Module) fillAndClick(ctx context.Context, inputSel, btnSel string, amount int64) error {
	session := m.nav.Session()
	input, err := session.QuerySelector(ctx, inputSel)
	if err != nil {
		return err
	}
	if input == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, inputSel)
	}
	if err := m.pacer.TypeInto(ctx, input, strconv.FormatInt(amount, 10)); err != nil {
		return err
	}
	btn, err := session.QuerySelector(ctx, btnSel)
	if err != nil {
		return err
	}
	if btn == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, btnSel)
	}
	return m.pacer.Click(ctx, btn)
}

func (m *Module) transaction(kind core.TransactionKind, amount int64) core.Transaction {
	return core.Transaction{
		Timestamp: m.now(),
		Kind:      kind,
		UnitPrice: decimal.NewFromInt(amount),
		Quantity:  1,
		Total:     amount,
		Status:    core.TxSuccess,
	}
}

func within(got, want, tolerance int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
