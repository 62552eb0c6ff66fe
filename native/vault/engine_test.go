package vault

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/fees"
)

type memState struct {
	markets   map[string]*Market
	positions map[string]*Position
}

func newMemState() *memState {
	return &memState{
		markets:   make(map[string]*Market),
		positions: make(map[string]*Position),
	}
}

// Reads hand out copies the way the persistent store does, so projections on
// read paths never leak into stored state.
func (s *memState) GetMarket(vaultID string) (*Market, error) {
	return cloneMarket(s.markets[vaultID]), nil
}

func (s *memState) PutMarket(vaultID string, market *Market) error {
	s.markets[vaultID] = cloneMarket(market)
	return nil
}

func positionStateKey(vaultID string, user common.Address) string {
	return vaultID + "/" + user.Hex()
}

func (s *memState) GetPosition(vaultID string, user common.Address) (*Position, error) {
	return clonePosition(s.positions[positionStateKey(vaultID, user)]), nil
}

func (s *memState) PutPosition(vaultID string, position *Position) error {
	s.positions[positionStateKey(vaultID, position.User)] = clonePosition(position)
	return nil
}

func cloneMarket(m *Market) *Market {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TotalSupplied = new(big.Int).Set(m.TotalSupplied)
	clone.TotalBorrowed = new(big.Int).Set(m.TotalBorrowed)
	clone.ProtocolBorrowed = new(big.Int).Set(m.ProtocolBorrowed)
	clone.TotalShares = new(big.Int).Set(m.TotalShares)
	clone.SupplyIndex = new(big.Int).Set(m.SupplyIndex)
	clone.BorrowIndex = new(big.Int).Set(m.BorrowIndex)
	return &clone
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Supplied = new(big.Int).Set(p.Supplied)
	clone.Shares = new(big.Int).Set(p.Shares)
	clone.Debt = new(big.Int).Set(p.Debt)
	clone.DebtPrincipal = new(big.Int).Set(p.DebtPrincipal)
	clone.ScaledDebt = new(big.Int).Set(p.ScaledDebt)
	clone.StakedLocked = new(big.Int).Set(p.StakedLocked)
	if p.Lock != nil {
		lock := *p.Lock
		clone.Lock = &lock
	}
	return &clone
}

type memLedger struct {
	balances map[string]*big.Int
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]*big.Int)}
}

func ledgerKey(asset string, account common.Address) string {
	return asset + "/" + account.Hex()
}

func (l *memLedger) fund(asset string, account common.Address, amount int64) {
	l.balances[ledgerKey(asset, account)] = big.NewInt(amount)
}

func (l *memLedger) Transfer(asset string, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bad transfer amount")
	}
	fromBal := l.balances[ledgerKey(asset, from)]
	if fromBal == nil || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance for %s", from.Hex())
	}
	toBal := l.balances[ledgerKey(asset, to)]
	if toBal == nil {
		toBal = big.NewInt(0)
		l.balances[ledgerKey(asset, to)] = toBal
	}
	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	return nil
}

func (l *memLedger) TransferFrom(asset string, spender, from, to common.Address, amount *big.Int) error {
	return l.Transfer(asset, from, to, amount)
}

func (l *memLedger) BalanceOf(asset string, account common.Address) (*big.Int, error) {
	if bal, ok := l.balances[ledgerKey(asset, account)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (l *memLedger) Decimals(asset string) (uint8, error) { return 18, nil }

var (
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	feeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	supplier   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	borrower   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	liquidator = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func testParams() Params {
	return Params{
		Asset:                   "DAI",
		AssetDecimals:           18,
		BaseRateBps:             0,
		SlopeBps:                2000,
		MaxBorrowRatioBps:       7000,
		LiquidationThresholdBps: 7500,
		LiquidationBonusBps:     500,
		ProtocolFeeBps:          1000,
	}
}

type testEnv struct {
	engine    *Engine
	state     *memState
	ledger    *memLedger
	collector *fees.Accrual
	now       int64
}

func newTestEnv(t *testing.T, params Params) *testEnv {
	t.Helper()
	engine, err := NewEngine("dai-main", vaultAddr, params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env := &testEnv{
		engine:    engine,
		state:     newMemState(),
		ledger:    newMemLedger(),
		collector: fees.NewAccrual(),
		now:       1_700_000_000,
	}
	engine.SetState(env.state)
	engine.SetLedger(env.ledger)
	engine.SetFeeCollector(feeAddr, env.collector)
	engine.SetClock(func() int64 { return env.now })
	if err := engine.InitMarket(); err != nil {
		t.Fatalf("init market: %v", err)
	}
	return env
}

func (env *testEnv) advance(seconds int64) { env.now += seconds }

func mustBalance(t *testing.T, l *memLedger, asset string, account common.Address) *big.Int {
	t.Helper()
	bal, err := l.BalanceOf(asset, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestSupplyMintsSharesAndMovesFunds(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", supplier, 5_000)

	minted, err := env.engine.Supply(supplier, big.NewInt(1_000), nil)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if minted.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("minted = %s, want 1000", minted)
	}
	if got := mustBalance(t, env.ledger, "DAI", vaultAddr); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("vault balance = %s, want 1000", got)
	}
	position, err := env.engine.PositionOf(supplier)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Supplied.Cmp(big.NewInt(1_000)) != 0 || position.Shares.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("position supplied=%s shares=%s", position.Supplied, position.Shares)
	}
}

func TestSupplyRejectsZeroAmount(t *testing.T) {
	env := newTestEnv(t, testParams())
	if _, err := env.engine.Supply(supplier, big.NewInt(0), nil); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("err = %v, want errInvalidAmount", err)
	}
	if _, err := env.engine.Supply(supplier, nil, nil); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("nil amount err = %v, want errInvalidAmount", err)
	}
}

func TestSupplyRespectsLiquidityCap(t *testing.T) {
	params := testParams()
	params.MaxLiquidity = big.NewInt(1_500)
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", supplier, 5_000)

	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("first supply: %v", err)
	}
	if _, err := env.engine.Supply(supplier, big.NewInt(600), nil); !errors.Is(err, errLiquidityCapExceeded) {
		t.Fatalf("err = %v, want errLiquidityCapExceeded", err)
	}
	if _, err := env.engine.Supply(supplier, big.NewInt(500), nil); err != nil {
		t.Fatalf("supply at cap: %v", err)
	}
}

func TestBorrowEnforcesMaxRatio(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", borrower, 2_000)
	if _, err := env.engine.Supply(borrower, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	// 70% of 1000 is the exact limit.
	if err := env.engine.Borrow(borrower, big.NewInt(700)); err != nil {
		t.Fatalf("borrow at limit: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(1)); !errors.Is(err, errExceedsMaxBorrow) {
		t.Fatalf("err = %v, want errExceedsMaxBorrow", err)
	}

	position, err := env.engine.PositionOf(borrower)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Debt.Cmp(big.NewInt(700)) != 0 || position.DebtPrincipal.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("debt=%s principal=%s, want 700/700", position.Debt, position.DebtPrincipal)
	}
}

func TestBorrowRequiresLiquidity(t *testing.T) {
	params := testParams()
	params.CrossCollateralEnabled = true
	env := newTestEnv(t, params)
	env.engine.SetCollateralHub(&hubStub{canBorrow: true})
	env.ledger.fund("DAI", supplier, 10_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	// The hub would approve, but the pool only holds 1000.
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1_500)); !errors.Is(err, errInsufficientLiquidity) {
		t.Fatalf("err = %v, want errInsufficientLiquidity", err)
	}
}

func TestWithdrawKeepsDebtCollateralised(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", borrower, 2_000)
	if _, err := env.engine.Supply(borrower, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(700)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Any withdrawal drops the 70% limit below the outstanding debt.
	if _, err := env.engine.Withdraw(borrower, big.NewInt(1)); !errors.Is(err, errExceedsMaxBorrow) {
		t.Fatalf("err = %v, want errExceedsMaxBorrow", err)
	}
}

func TestWithdrawHonoursLock(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", supplier, 5_000)

	lock := &LockRequest{DurationSeconds: 3_600}
	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), lock); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if _, err := env.engine.Withdraw(supplier, big.NewInt(100)); !errors.Is(err, errPositionLocked) {
		t.Fatalf("err = %v, want errPositionLocked", err)
	}

	env.advance(3_600)
	payout, err := env.engine.Withdraw(supplier, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw after unlock: %v", err)
	}
	if payout.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("payout = %s, want 100", payout)
	}
}

func TestEarlyWithdrawFeeGoesToCollector(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", supplier, 5_000)

	lock := &LockRequest{DurationSeconds: 3_600, AllowEarlyWithdraw: true, EarlyWithdrawFeeBps: 200}
	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), lock); err != nil {
		t.Fatalf("supply: %v", err)
	}
	payout, err := env.engine.Withdraw(supplier, big.NewInt(500))
	if err != nil {
		t.Fatalf("early withdraw: %v", err)
	}
	// 2% of 500 is withheld.
	if payout.Cmp(big.NewInt(490)) != 0 {
		t.Fatalf("payout = %s, want 490", payout)
	}
	if got := mustBalance(t, env.ledger, "DAI", feeAddr); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee balance = %s, want 10", got)
	}
	if got := env.collector.Accrued("dai-main"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("collector accrued = %s, want 10", got)
	}
}

func TestAccrualGrowsDebtAndSplitsFee(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", borrower, 20_000)

	if _, err := env.engine.Supply(borrower, big.NewInt(10_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(5_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 50% utilization at slope 2000 is a 10% borrow rate; one year of simple
	// interest on 5000 is 500.
	env.advance(secondsPerYear)
	position, err := env.engine.PositionOf(borrower)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Debt.Cmp(big.NewInt(5_500)) != 0 {
		t.Fatalf("debt = %s, want 5500", position.Debt)
	}

	// A state transition persists the accrual and notifies the collector of
	// the 10% fee share.
	repaid, err := env.engine.Repay(borrower, big.NewInt(550))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repaid.Cmp(big.NewInt(550)) != 0 {
		t.Fatalf("repaid = %s, want 550", repaid)
	}
	if got := env.collector.Accrued("dai-main"); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("collector accrued = %s, want 50", got)
	}

	position, err = env.engine.PositionOf(borrower)
	if err != nil {
		t.Fatalf("position after repay: %v", err)
	}
	// 550 at index 1.1 burns exactly 500 scaled units: 4500 * 1.1 = 4950.
	if position.Debt.Cmp(big.NewInt(4_950)) != 0 {
		t.Fatalf("debt after repay = %s, want 4950", position.Debt)
	}
	if position.DebtPrincipal.Cmp(big.NewInt(4_950)) != 0 {
		t.Fatalf("principal after repay = %s, want 4950", position.DebtPrincipal)
	}
}

func TestRepayCapsAtOutstandingDebt(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", borrower, 20_000)
	if _, err := env.engine.Supply(borrower, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	repaid, err := env.engine.Repay(borrower, big.NewInt(9_999))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repaid.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("repaid = %s, want 500", repaid)
	}
	if _, err := env.engine.Repay(borrower, big.NewInt(1)); !errors.Is(err, errNoDebtToRepay) {
		t.Fatalf("err = %v, want errNoDebtToRepay", err)
	}
}

func TestLiquidationFlipsWithAccruedInterest(t *testing.T) {
	params := testParams()
	params.SlopeBps = 1000
	params.ProtocolFeeBps = 0
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", borrower, 2_000)
	env.ledger.fund("DAI", liquidator, 10_000)

	if _, err := env.engine.Supply(borrower, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(700)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Year one: 70% utilization at slope 1000 is a 7% rate, debt grows to 749
	// which still sits inside the 75% threshold.
	env.advance(secondsPerYear)
	if _, _, err := env.engine.Liquidate(liquidator, borrower); !errors.Is(err, errNotLiquidatable) {
		t.Fatalf("err = %v, want errNotLiquidatable", err)
	}

	// Two years of simple interest push the debt to 798, past 750.
	env.advance(secondsPerYear)
	repaid, payout, err := env.engine.Liquidate(liquidator, borrower)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(big.NewInt(798)) != 0 {
		t.Fatalf("repaid = %s, want 798", repaid)
	}
	// 5% bonus on the repaid debt, within the collateral claim.
	if payout.Cmp(big.NewInt(837)) != 0 {
		t.Fatalf("payout = %s, want 837", payout)
	}

	position, err := env.engine.PositionOf(borrower)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Debt.Sign() != 0 || position.Supplied.Sign() != 0 || position.Shares.Sign() != 0 {
		t.Fatalf("position not zeroed: debt=%s supplied=%s shares=%s",
			position.Debt, position.Supplied, position.Shares)
	}
}

func TestLiquidateHealthyPositionFails(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", borrower, 2_000)
	if _, err := env.engine.Supply(borrower, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := env.engine.Borrow(borrower, big.NewInt(700)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, _, err := env.engine.Liquidate(liquidator, borrower); !errors.Is(err, errNotLiquidatable) {
		t.Fatalf("err = %v, want errNotLiquidatable", err)
	}
}

func TestPausedVaultRejectsOperations(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.ledger.fund("DAI", supplier, 5_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	market, err := env.state.GetMarket("dai-main")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	market.Paused = true
	if err := env.state.PutMarket("dai-main", market); err != nil {
		t.Fatalf("put market: %v", err)
	}

	if _, err := env.engine.Supply(supplier, big.NewInt(100), nil); !errors.Is(err, errVaultPaused) {
		t.Fatalf("supply err = %v, want errVaultPaused", err)
	}
	if _, err := env.engine.Withdraw(supplier, big.NewInt(100)); !errors.Is(err, errVaultPaused) {
		t.Fatalf("withdraw err = %v, want errVaultPaused", err)
	}
	if err := env.engine.Borrow(supplier, big.NewInt(100)); !errors.Is(err, errVaultPaused) {
		t.Fatalf("borrow err = %v, want errVaultPaused", err)
	}
}

type hubStub struct {
	canBorrow     bool
	blockWithdraw bool
	owed          *big.Int
	recorded      *big.Int
	repayCalls    int
	repayApplied  *big.Int
	repayPrinc    *big.Int
	repayInt      *big.Int
}

func (h *hubStub) CanBorrow(user common.Address, amount *big.Int) (bool, error) {
	return h.canBorrow, nil
}

func (h *hubStub) CanWithdraw(user common.Address, amount *big.Int) (bool, error) {
	return !h.blockWithdraw, nil
}

func (h *hubStub) CrossDebtOwed(user common.Address) (*big.Int, error) {
	if h.owed == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(h.owed), nil
}

func (h *hubStub) RecordBorrow(user common.Address, amount *big.Int) error {
	h.recorded = new(big.Int).Set(amount)
	return nil
}

func (h *hubStub) RecordRepay(user common.Address, amount *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	h.repayCalls++
	return h.repayApplied, h.repayPrinc, h.repayInt, nil
}

func TestCrossCollateralBorrowNeedsHubApproval(t *testing.T) {
	params := testParams()
	params.CrossCollateralEnabled = true
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", supplier, 10_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(5_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	hub := &hubStub{canBorrow: false}
	env.engine.SetCollateralHub(hub)
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1_000)); !errors.Is(err, errExceedsMaxBorrow) {
		t.Fatalf("err = %v, want errExceedsMaxBorrow", err)
	}

	hub.canBorrow = true
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1_000)); err != nil {
		t.Fatalf("cross borrow: %v", err)
	}
	if hub.recorded == nil || hub.recorded.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("hub recorded = %v, want 1000", hub.recorded)
	}
	if got := mustBalance(t, env.ledger, "DAI", borrower); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("borrower balance = %s, want 1000", got)
	}
}

func TestCrossCollateralBorrowDisabled(t *testing.T) {
	env := newTestEnv(t, testParams())
	env.engine.SetCollateralHub(&hubStub{canBorrow: true})
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1)); !errors.Is(err, errCrossDisabled) {
		t.Fatalf("err = %v, want errCrossDisabled", err)
	}
}

func TestRepayCrossSplitsInterest(t *testing.T) {
	params := testParams()
	params.CrossCollateralEnabled = true
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", supplier, 10_000)
	env.ledger.fund("DAI", borrower, 10_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(5_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	hub := &hubStub{
		canBorrow:    true,
		owed:         big.NewInt(1_100),
		repayApplied: big.NewInt(1_100),
		repayPrinc:   big.NewInt(1_000),
		repayInt:     big.NewInt(100),
	}
	env.engine.SetCollateralHub(hub)
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1_000)); err != nil {
		t.Fatalf("cross borrow: %v", err)
	}

	repaid, err := env.engine.RepayCrossCollateralBorrow(borrower, big.NewInt(1_100))
	if err != nil {
		t.Fatalf("cross repay: %v", err)
	}
	if repaid.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("repaid = %s, want 1100", repaid)
	}
	// 10% protocol fee on the 100 interest, remainder to suppliers.
	if got := mustBalance(t, env.ledger, "DAI", feeAddr); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee balance = %s, want 10", got)
	}
	market, err := env.engine.MarketSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if market.TotalSupplied.Cmp(big.NewInt(5_090)) != 0 {
		t.Fatalf("total supplied = %s, want 5090", market.TotalSupplied)
	}
	if market.TotalBorrowed.Sign() != 0 {
		t.Fatalf("total borrowed = %s, want 0", market.TotalBorrowed)
	}
}

func TestRepayCrossKeepsDebtWhenPaymentFails(t *testing.T) {
	params := testParams()
	params.CrossCollateralEnabled = true
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", supplier, 10_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(5_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	hub := &hubStub{canBorrow: true, owed: big.NewInt(1_100)}
	env.engine.SetCollateralHub(hub)
	if err := env.engine.CrossCollateralBorrow(borrower, big.NewInt(1_000)); err != nil {
		t.Fatalf("cross borrow: %v", err)
	}

	// The borrower holds only the 1000 drawn; 1100 cannot be funded.
	if _, err := env.engine.RepayCrossCollateralBorrow(borrower, big.NewInt(1_100)); err == nil {
		t.Fatal("expected repayment to fail on insufficient balance")
	}
	if hub.repayCalls != 0 {
		t.Fatalf("debt ledger updated %d times before payment cleared", hub.repayCalls)
	}
	if got := mustBalance(t, env.ledger, "DAI", borrower); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("borrower balance = %s, want 1000", got)
	}
}

func TestWithdrawConsultsCollateralHub(t *testing.T) {
	params := testParams()
	params.CrossCollateralEnabled = true
	env := newTestEnv(t, params)
	env.ledger.fund("DAI", supplier, 5_000)
	if _, err := env.engine.Supply(supplier, big.NewInt(1_000), nil); err != nil {
		t.Fatalf("supply: %v", err)
	}

	hub := &hubStub{blockWithdraw: true}
	env.engine.SetCollateralHub(hub)
	if _, err := env.engine.Withdraw(supplier, big.NewInt(1_000)); !errors.Is(err, errExceedsMaxBorrow) {
		t.Fatalf("err = %v, want errExceedsMaxBorrow", err)
	}

	hub.blockWithdraw = false
	if _, err := env.engine.Withdraw(supplier, big.NewInt(1_000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
}

func TestInitMarketTwiceFails(t *testing.T) {
	env := newTestEnv(t, testParams())
	if err := env.engine.InitMarket(); !errors.Is(err, errInvalidConfiguration) {
		t.Fatalf("err = %v, want errInvalidConfiguration", err)
	}
}
