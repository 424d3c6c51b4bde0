package bank

import (
	"context"
	"fmt"
	"testing"

	"auto_trader/internal/browser"
	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/mock"
	apperrors "auto_trader/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBank scripts the bank page: clicking withdraw/deposit moves the typed
// amount between the two balance labels.
type fakeBank struct {
	browser *mock.Browser
	cash    int64
	bank    int64

	cashLabel   *mock.Element
	bankLabel   *mock.Element
	amountInput *mock.Element

	module *Module
}

func newFakeBank(t *testing.T, cash, bank int64) *fakeBank {
	t.Helper()
	cfg := config.DefaultConfig()
	sel := browser.DefaultSelectors()
	b := mock.NewBrowser()

	f := &fakeBank{browser: b, cash: cash, bank: bank}
	f.cashLabel = &mock.Element{}
	f.bankLabel = &mock.Element{}
	f.amountInput = &mock.Element{}
	f.render()

	b.SetElement(cfg.URLs.Bank, sel.CashLabel, f.cashLabel)
	b.SetElement(cfg.URLs.Bank, sel.BankBalance, f.bankLabel)
	b.SetElement(cfg.URLs.Bank, sel.BankWithdrawInput, f.amountInput)
	b.SetElement(cfg.URLs.Bank, sel.BankDepositInput, f.amountInput)

	withdrawBtn := &mock.Element{}
	withdrawBtn.OnClick = func() {
		var amount int64
		fmt.Sscanf(f.amountInput.Value(), "%d", &amount)
		if amount > 0 && amount <= f.bank {
			f.bank -= amount
			f.cash += amount
		}
		f.render()
	}
	b.SetElement(cfg.URLs.Bank, sel.BankWithdrawBtn, withdrawBtn)

	depositBtn := &mock.Element{}
	depositBtn.OnClick = func() {
		var amount int64
		fmt.Sscanf(f.amountInput.Value(), "%d", &amount)
		if amount > 0 && amount <= f.cash {
			f.cash -= amount
			f.bank += amount
		}
		f.render()
	}
	b.SetElement(cfg.URLs.Bank, sel.BankDepositBtn, depositBtn)

	withdrawAll := &mock.Element{}
	withdrawAll.OnClick = func() {
		f.cash += f.bank
		f.bank = 0
		f.render()
	}
	b.SetElement(cfg.URLs.Bank, sel.BankWithdrawAll, withdrawAll)

	depositAll := &mock.Element{}
	depositAll.OnClick = func() {
		f.bank += f.cash
		f.cash = 0
		f.render()
	}
	b.SetElement(cfg.URLs.Bank, sel.BankDepositAll, depositAll)

	nav := browser.NewNavigator(b, mock.NullPacer{}, cfg.URLs, sel, mock.NopLogger{})
	f.module = New(nav, mock.NullPacer{}, mock.NopLogger{})
	return f
}

func (f *fakeBank) render() {
	f.cashLabel.Text = fmt.Sprintf("Cash: $%d", f.cash)
	f.bankLabel.Text = fmt.Sprintf("$%d", f.bank)
}

func TestWithdrawVerifiesDeltas(t *testing.T) {
	f := newFakeBank(t, 1_000, 20_000)
	result, err := f.module.Withdraw(context.Background(), 5_000)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), result.CashAfter)
	assert.Equal(t, int64(15_000), result.BankAfter)
	assert.Equal(t, core.TxWithdrawal, result.Tx.Kind)
	assert.Equal(t, core.TxSuccess, result.Tx.Status)
	assert.Equal(t, int64(5_000), result.Tx.Total)
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	f := newFakeBank(t, 0, 100)
	_, err := f.module.Withdraw(context.Background(), 500)
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	_, err = f.module.Withdraw(context.Background(), 0)
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

func TestWithdrawDetectsMismatch(t *testing.T) {
	f := newFakeBank(t, 0, 20_000)
	// Break the page: the click silently does nothing.
	sel := browser.DefaultSelectors()
	broken := &mock.Element{}
	f.browser.SetElement(config.DefaultConfig().URLs.Bank, sel.BankWithdrawBtn, broken)

	_, err := f.module.Withdraw(context.Background(), 5_000)
	require.ErrorIs(t, err, apperrors.ErrBalanceMismatch)
}

func TestEnsureMinimumCashTopsUpExactDeficit(t *testing.T) {
	f := newFakeBank(t, 5_000, 50_000)
	result, err := f.module.EnsureMinimumCash(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), result.CashAfter)
	assert.Equal(t, int64(45_000), result.BankAfter)
	assert.Equal(t, int64(5_000), result.Tx.Total)
}

func TestEnsureMinimumCashNoOpWhenFunded(t *testing.T) {
	f := newFakeBank(t, 20_000, 1_000)
	result, err := f.module.EnsureMinimumCash(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, core.TransactionKind(""), result.Tx.Kind)
	assert.Equal(t, int64(20_000), result.CashAfter)
	assert.Equal(t, int64(1_000), f.bank)
}

func TestEnsureMinimumCashFailsWhenBankCannotCover(t *testing.T) {
	f := newFakeBank(t, 1_000, 2_000)
	_, err := f.module.EnsureMinimumCash(context.Background(), 10_000)
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	// Nothing moved.
	assert.Equal(t, int64(1_000), f.cash)
	assert.Equal(t, int64(2_000), f.bank)
}

func TestWithdrawAllAndDepositAll(t *testing.T) {
	f := newFakeBank(t, 1_000, 9_000)
	ctx := context.Background()

	result, err := f.module.WithdrawAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), result.CashAfter)
	assert.Equal(t, int64(0), result.BankAfter)

	result, err = f.module.DepositAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.CashAfter)
	assert.Equal(t, int64(10_000), result.BankAfter)
}

func TestWithdrawAllEmptyBankIsNoOp(t *testing.T) {
	f := newFakeBank(t, 500, 0)
	result, err := f.module.WithdrawAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.TransactionKind(""), result.Tx.Kind)
	assert.Equal(t, int64(500), result.CashAfter)
}
