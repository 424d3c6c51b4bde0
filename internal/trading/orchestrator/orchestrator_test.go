package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"auto_trader/internal/bank"
	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/cyclelog"
	"auto_trader/internal/mock"
	"auto_trader/internal/store"
	"auto_trader/internal/strategy"
	apperrors "auto_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuard struct {
	mu    sync.Mutex
	ok    bool
	err   error
	calls int
}

func (g *fakeGuard) EnsureLoggedIn(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.ok, g.err
}

func (g *fakeGuard) ClearSession(ctx context.Context) error { return nil }

type fakeProbe struct {
	snapshot core.ResourceSnapshot
}

func (p *fakeProbe) Probe(ctx context.Context) (*core.ResourceSnapshot, error) {
	copied := p.snapshot
	copied.Timestamp = time.Now()
	return &copied, nil
}

type fakeBank struct {
	result *bank.Result
	err    error
	calls  int
}

func (b *fakeBank) EnsureMinimumCash(ctx context.Context, required int64) (*bank.Result, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

type fakeInventory struct {
	depositTx *core.Transaction
	deposits  int
	items     []core.InventoryItem
}

func (i *fakeInventory) DepositAllToStorage(ctx context.Context) (*core.Transaction, error) {
	i.deposits++
	return i.depositTx, nil
}

func (i *fakeInventory) WithdrawAllFromStorage(ctx context.Context) (*core.Transaction, error) {
	return nil, nil
}

func (i *fakeInventory) Items(ctx context.Context) ([]core.InventoryItem, error) {
	return i.items, nil
}

type fakeMarket struct {
	mu        sync.Mutex
	scans     map[string][][]core.MarketListing
	scanCalls map[string]int
	purchases []*core.PurchaseResult
	bought    int
	slotsUsed int
	slotsMax  int
	listErrs  []error
}

func (m *fakeMarket) Scan(ctx context.Context, term string, maxItems int) ([]core.MarketListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanCalls == nil {
		m.scanCalls = map[string]int{}
	}
	seq := m.scans[term]
	call := m.scanCalls[term]
	m.scanCalls[term] = call + 1
	if call < len(seq) {
		return seq[call], nil
	}
	return nil, nil
}

func (m *fakeMarket) ExecutePurchase(ctx context.Context, opp *core.PurchaseOpportunity) (*core.PurchaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bought < len(m.purchases) {
		result := m.purchases[m.bought]
		m.bought++
		return result, nil
	}
	return &core.PurchaseResult{Status: core.PurchaseRowGone}, nil
}

func (m *fakeMarket) BatchListForSale(ctx context.Context, orders []*core.SellOrder) ([]error, error) {
	if m.listErrs != nil {
		return m.listErrs, nil
	}
	return make([]error, len(orders)), nil
}

func (m *fakeMarket) SellingSlots(ctx context.Context) (int, int, error) {
	if m.slotsMax == 0 {
		return 0, 30, nil
	}
	return m.slotsUsed, m.slotsMax, nil
}

func (m *fakeMarket) Invalidate() {}

type fixture struct {
	cfg   *config.Config
	guard *fakeGuard
	probe *fakeProbe
	bank  *fakeBank
	inv   *fakeInventory
	mkt   *fakeMarket
	mem   *store.MemoryStore
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Credentials.Username = "u"
	cfg.Credentials.Password = "p"
	cfg.App.MaxCycles = 1
	cfg.Risk.NormalWaitSeconds = 1
	cfg.Risk.BlockedWaitSeconds = 1

	f := &fixture{
		cfg:   cfg,
		guard: &fakeGuard{ok: true},
		probe: &fakeProbe{snapshot: core.ResourceSnapshot{
			Cash: 50_000, Bank: 0,
			InventoryUsed: 0, InventoryTotal: 26,
			StorageUsed: 0, StorageTotal: 40,
			SellingSlotsUsed: 0, SellingSlotsMax: 30,
		}},
		bank: &fakeBank{},
		inv:  &fakeInventory{},
		mkt:  &fakeMarket{},
		mem:  store.NewMemoryStore(),
	}
	f.rebuild(t)
	return f
}

func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	f.orch = New(Deps{
		Config:    f.cfg,
		Guard:     f.guard,
		Probe:     f.probe,
		Bank:      f.bank,
		Inventory: f.inv,
		Market:    f.mkt,
		Buying:    strategy.NewBuying(f.cfg.Market, f.cfg.Buying, mock.NopLogger{}),
		Selling:   strategy.NewSelling(f.cfg.Selling, mock.NopLogger{}),
		Cycles:    cyclelog.New(f.mem, mock.NopLogger{}),
		Store:     f.mem,
		Pacer:     mock.NullPacer{},
		Logger:    mock.NopLogger{},
	})
}

func ammoListing(unit float64, qty int) core.MarketListing {
	return core.MarketListing{
		ItemName:  "12.7mm Rifle Bullets",
		Seller:    "s",
		UnitPrice: decimal.NewFromFloat(unit),
		Quantity:  qty,
	}
}

func okPurchase(unit float64, qty int) *core.PurchaseResult {
	return &core.PurchaseResult{
		Status:    core.PurchaseOK,
		ItemName:  "12.7mm Rifle Bullets",
		Quantity:  qty,
		UnitPrice: decimal.NewFromFloat(unit),
		Total:     decimal.NewFromFloat(unit).Mul(decimal.NewFromInt(int64(qty))).IntPart(),
		Seller:    "s",
	}
}

func TestHappyBuyCycle(t *testing.T) {
	f := newFixture(t)
	f.mkt.scans = map[string][][]core.MarketListing{
		"12.7mm Rifle Bullets": {{ammoListing(8.0, 100)}},
	}
	f.mkt.purchases = []*core.PurchaseResult{okPurchase(8.0, 100)}

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	record := records[0]
	assert.True(t, record.Success)
	assert.False(t, record.Cancelled)
	assert.Equal(t, int64(800), record.TotalSpent)
	assert.Equal(t, record.TotalEarned-record.TotalSpent, record.NetProfit)

	purchases := 0
	for _, tx := range record.Transactions {
		if tx.Kind == core.TxPurchase {
			purchases++
			assert.Equal(t, core.TxSuccess, tx.Status)
			assert.Equal(t, 100, tx.Quantity)
			assert.Equal(t, int64(800), tx.Total)
		}
	}
	assert.Equal(t, 1, purchases)
	require.NotNil(t, record.Before)
	require.NotNil(t, record.After)
	require.NotNil(t, record.Condition)
	assert.Equal(t, 1, f.guard.calls)
	assert.Equal(t, 1, f.orch.Stats().Purchases)
}

func TestPriceCapRejectsProducesCleanCycle(t *testing.T) {
	f := newFixture(t)
	// Cap for 12.7mm is 13.0; 14.0/unit never becomes an opportunity.
	f.mkt.scans = map[string][][]core.MarketListing{
		"12.7mm Rifle Bullets": {{ammoListing(14.0, 100)}},
	}

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	record := records[0]
	assert.True(t, record.Success)
	assert.Equal(t, int64(0), record.TotalSpent)
	for _, tx := range record.Transactions {
		assert.NotEqual(t, core.TxPurchase, tx.Kind)
	}
}

func TestZeroMaxPricesProduceNoPurchases(t *testing.T) {
	f := newFixture(t)
	for i := range f.cfg.Market.MaxPricePerUnit {
		f.cfg.Market.MaxPricePerUnit[i] = 0
	}
	f.rebuild(t)
	f.mkt.scans = map[string][][]core.MarketListing{
		"12.7mm Rifle Bullets": {{ammoListing(1.0, 100)}},
	}

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, int64(0), records[0].TotalSpent)
}

func TestInventoryFullShortcutsToSpaceManagement(t *testing.T) {
	f := newFixture(t)
	f.cfg.Market.TargetItems = []string{"12.7mm Rifle Bullets", "9mm Rifle Bullets"}
	f.cfg.Market.MaxPricePerUnit = []float64{13.0, 15.0}
	f.rebuild(t)

	nine := core.MarketListing{
		ItemName: "9mm Rifle Bullets", Seller: "s",
		UnitPrice: decimal.NewFromFloat(7.0), Quantity: 50,
	}
	f.mkt.scans = map[string][][]core.MarketListing{
		"12.7mm Rifle Bullets": {{ammoListing(8.0, 100)}},
		"9mm Rifle Bullets":    {{nine}},
	}
	f.mkt.purchases = []*core.PurchaseResult{
		okPurchase(8.0, 100),
		{Status: core.PurchaseInventoryFull, ItemName: "9mm Rifle Bullets"},
	}
	f.inv.depositTx = &core.Transaction{
		Kind: core.TxStorageMove, Quantity: 10, Status: core.TxSuccess,
	}

	require.NoError(t, f.orch.Run(context.Background()))

	assert.Equal(t, 1, f.inv.deposits)
	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	record := records[0]

	var kinds []core.TransactionKind
	for _, tx := range record.Transactions {
		kinds = append(kinds, tx.Kind)
	}
	// Exactly one purchase and one storage move, in that order.
	assert.Equal(t, []core.TransactionKind{core.TxPurchase, core.TxStorageMove}, kinds)
}

func TestSpaceClearWhenStorageFull(t *testing.T) {
	f := newFixture(t)
	f.probe.snapshot.InventoryUsed = 25
	f.probe.snapshot.StorageUsed = 40

	var items []core.InventoryItem
	for i := 0; i < 25; i++ {
		items = append(items, core.InventoryItem{
			ItemName: "Bandages", Quantity: 10, SlotIndex: i, AcquiredAt: time.Now(),
		})
	}
	f.inv.items = items

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	record := records[0]
	assert.True(t, record.Success)

	clearSales := 0
	for _, tx := range record.Transactions {
		if tx.Kind == core.TxSale && tx.Detail["mode"] == "space_clear" {
			clearSales++
		}
	}
	assert.Greater(t, clearSales, 0)
	// No deposit happened; storage was full.
	assert.Equal(t, 0, f.inv.deposits)
}

func TestBankTopUpRecordsWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.probe.snapshot.Cash = 1_000
	f.probe.snapshot.Bank = 50_000
	f.bank.result = &bank.Result{
		Tx: core.Transaction{
			Kind: core.TxWithdrawal, Total: 4_000, Quantity: 1,
			UnitPrice: decimal.NewFromInt(4_000), Status: core.TxSuccess,
		},
		CashAfter: 5_000,
		BankAfter: 46_000,
	}

	require.NoError(t, f.orch.Run(context.Background()))

	assert.Equal(t, 1, f.bank.calls)
	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	withdrawals := 0
	for _, tx := range records[0].Transactions {
		if tx.Kind == core.TxWithdrawal {
			withdrawals++
			assert.Equal(t, int64(4_000), tx.Total)
		}
	}
	assert.Equal(t, 1, withdrawals)
}

func TestInsufficientFundsBlocksCycle(t *testing.T) {
	f := newFixture(t)
	f.probe.snapshot.Cash = 100
	f.probe.snapshot.Bank = 0

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, int64(0), records[0].TotalSpent)
	// The scan never ran.
	assert.Nil(t, records[0].Condition)
}

func TestSellingListsPlannedOrders(t *testing.T) {
	f := newFixture(t)
	f.inv.items = []core.InventoryItem{
		{ItemName: "Pain Killers", Quantity: 100, AcquiredAt: time.Now()},
	}

	require.NoError(t, f.orch.Run(context.Background()))

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	record := records[0]
	sales := 0
	for _, tx := range record.Transactions {
		if tx.Kind == core.TxSale {
			sales++
			assert.Equal(t, core.TxSuccess, tx.Status)
			assert.Equal(t, int64(3200), tx.Total)
		}
	}
	assert.Equal(t, 1, sales)
	assert.Equal(t, record.TotalEarned, int64(3200))
	assert.Equal(t, 1, f.orch.Stats().Sales)
}

func TestLoginFailureFailsCycle(t *testing.T) {
	f := newFixture(t)
	f.guard.ok = false

	err := f.orch.Run(context.Background())
	require.NoError(t, err)

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	require.NotEmpty(t, records[0].Errors)
	assert.Equal(t, 1, f.orch.Stats().CyclesFailed)
}

func TestFatalErrorTerminatesRun(t *testing.T) {
	f := newFixture(t)
	f.guard.ok = false
	f.guard.err = apperrors.ErrStoreUnavailable

	err := f.orch.Run(context.Background())
	require.Error(t, err)
	// The failed cycle is still sealed.
	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestCancellationDuringWaitSealsCancelled(t *testing.T) {
	f := newFixture(t)
	f.cfg.App.MaxCycles = 0
	f.cfg.Risk.NormalWaitSeconds = 60
	f.rebuild(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	// Wait until the orchestrator parks in the inter-cycle wait.
	require.Eventually(t, func() bool {
		return f.orch.Machine().Current() == StateWaitingNormal
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator did not stop within 3s of cancellation")
	}
	assert.Less(t, time.Since(start), 3*time.Second)

	records := f.mem.CycleRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Cancelled)
	assert.False(t, records[0].Success)
}

func TestConsecutiveFailuresStayBounded(t *testing.T) {
	f := newFixture(t)
	f.cfg.App.MaxCycles = 2
	f.guard.ok = false
	f.rebuild(t)

	require.NoError(t, f.orch.Run(context.Background()))
	assert.Equal(t, 2, f.orch.Stats().CyclesFailed)
	records := f.mem.CycleRecords()
	require.Len(t, records, 2)
	for _, record := range records {
		assert.False(t, record.Success)
	}
}
