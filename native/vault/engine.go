package vault

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/bank"
	"lendcore/native/fees"

	nativecommon "lendcore/native/common"
)

const moduleName = "vault"

type engineState interface {
	GetMarket(vaultID string) (*Market, error)
	PutMarket(vaultID string, market *Market) error
	GetPosition(vaultID string, user common.Address) (*Position, error)
	PutPosition(vaultID string, position *Position) error
}

// CollateralHub is the cross-vault collateral authority consulted before any
// borrow or withdrawal that touches collateral backing debt held outside this
// vault. A hub is scoped to the vault it was issued for. Read methods are
// idempotent; record methods mutate the hub's own debt ledger.
type CollateralHub interface {
	CanBorrow(user common.Address, amount *big.Int) (bool, error)
	CanWithdraw(user common.Address, amount *big.Int) (bool, error)
	CrossDebtOwed(user common.Address) (*big.Int, error)
	RecordBorrow(user common.Address, amount *big.Int) error
	RecordRepay(user common.Address, amount *big.Int) (applied, principal, interest *big.Int, err error)
}

// Engine orchestrates the state transitions for one vault: the supply/borrow
// ledger, interest accrual, and liquidation. Interest is always accrued
// before any ratio check so decisions never evaluate stale state.
type Engine struct {
	vaultID   string
	params    Params
	model     RateModel
	state     engineState
	ledger    bank.Ledger
	vaultAddr common.Address
	feeAddr   common.Address
	collector fees.Collector
	hub       CollateralHub
	guard     *nativecommon.CallGuard
	pauses    nativecommon.PauseView
	access    *nativecommon.AccessControl
	clock     func() int64
}

// NewEngine constructs a vault engine for the supplied identifier and
// parameters. The vault address is the pool account holding deposited funds.
func NewEngine(vaultID string, vaultAddr common.Address, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		vaultID:   vaultID,
		vaultAddr: vaultAddr,
		params:    params.Clone(),
		model:     RateModel{BaseRateBps: params.BaseRateBps, SlopeBps: params.SlopeBps},
		guard:     nativecommon.NewCallGuard(),
		clock:     func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the fungible-asset ledger used for all transfers.
func (e *Engine) SetLedger(ledger bank.Ledger) { e.ledger = ledger }

// SetFeeCollector configures the recipient of the protocol's interest split.
func (e *Engine) SetFeeCollector(addr common.Address, collector fees.Collector) {
	e.feeAddr = addr
	e.collector = collector
}

// SetCollateralHub registers the cross-vault collateral manager.
func (e *Engine) SetCollateralHub(hub CollateralHub) { e.hub = hub }

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetAccessControl wires the capability set checked by privileged operations.
func (e *Engine) SetAccessControl(access *nativecommon.AccessControl) { e.access = access }

// SetClock overrides the time source. Intended for deterministic tests.
func (e *Engine) SetClock(clock func() int64) {
	if clock != nil {
		e.clock = clock
	}
}

// VaultID returns the vault identifier.
func (e *Engine) VaultID() string { return e.vaultID }

// Asset returns the underlying asset identifier.
func (e *Engine) Asset() string { return e.params.Asset }

// AssetDecimals returns the underlying asset precision.
func (e *Engine) AssetDecimals() uint8 { return e.params.AssetDecimals }

// VaultAddress returns the pool account holding deposited funds.
func (e *Engine) VaultAddress() common.Address { return e.vaultAddr }

// Params returns a copy of the current parameter set.
func (e *Engine) Params() Params { return e.params.Clone() }

// InitMarket writes the bootstrap market record. Calling it for an existing
// market is an error so a restart can never reset ledger totals.
func (e *Engine) InitMarket() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.GetMarket(e.vaultID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errInvalidConfiguration
	}
	market := &Market{
		VaultID:          e.vaultID,
		Asset:            e.params.Asset,
		TotalSupplied:    big.NewInt(0),
		TotalBorrowed:    big.NewInt(0),
		ProtocolBorrowed: big.NewInt(0),
		TotalShares:      big.NewInt(0),
		SupplyIndex:      new(big.Int).Set(ray),
		BorrowIndex:      new(big.Int).Set(ray),
		LastAccrual:      e.clock(),
		Active:           true,
	}
	return e.state.PutMarket(e.vaultID, market)
}

func (e *Engine) ensureMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.state.GetMarket(e.vaultID)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, errNilMarket
	}
	if market.TotalSupplied == nil {
		market.TotalSupplied = big.NewInt(0)
	}
	if market.TotalBorrowed == nil {
		market.TotalBorrowed = big.NewInt(0)
	}
	if market.ProtocolBorrowed == nil {
		market.ProtocolBorrowed = big.NewInt(0)
	}
	if market.TotalShares == nil {
		market.TotalShares = big.NewInt(0)
	}
	if market.SupplyIndex == nil || market.SupplyIndex.Sign() == 0 {
		market.SupplyIndex = new(big.Int).Set(ray)
	}
	if market.BorrowIndex == nil || market.BorrowIndex.Sign() == 0 {
		market.BorrowIndex = new(big.Int).Set(ray)
	}
	return market, nil
}

func (e *Engine) checkOpen(market *Market) error {
	if !market.Active {
		return errVaultInactive
	}
	if market.Paused {
		return errVaultPaused
	}
	return nil
}

func (e *Engine) ensurePosition(user common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(e.vaultID, user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{User: user}
	}
	position.ensureDefaults()
	return position, nil
}

func (e *Engine) availableLiquidity(market *Market) *big.Int {
	liquidity := new(big.Int).Sub(market.TotalSupplied, market.TotalBorrowed)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

// accrueInterest advances the borrow and supply indexes for the elapsed time
// and routes the protocol fee share of the new interest to the collector.
// It must run before any ratio check in every state-mutating operation.
func (e *Engine) accrueInterest(market *Market) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if market == nil {
		return errNilMarket
	}
	now := e.clock()
	if market.LastAccrual == 0 {
		market.LastAccrual = now
		return nil
	}
	elapsed := now - market.LastAccrual
	if elapsed <= 0 || market.TotalBorrowed.Sign() == 0 {
		if elapsed > 0 {
			market.LastAccrual = now
		}
		return nil
	}

	borrowAPR := e.model.BorrowAPR(market.TotalBorrowed, market.TotalSupplied)
	if borrowAPR.Sign() == 0 {
		market.LastAccrual = now
		return nil
	}
	supplyAPR := e.model.SupplyAPR(market.TotalBorrowed, market.TotalSupplied, e.params.ProtocolFeeBps)

	market.BorrowIndex = rayMul(market.BorrowIndex, rateFactor(borrowAPR, elapsed))
	market.SupplyIndex = rayMul(market.SupplyIndex, rateFactor(supplyAPR, elapsed))

	interest := computeInterest(market.TotalBorrowed, borrowAPR, elapsed)
	if interest.Sign() > 0 {
		market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, interest)
		market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, interest)
		feeShare, _ := fees.Split(interest, e.params.ProtocolFeeBps)
		if feeShare.Sign() > 0 && e.collector != nil {
			if err := e.collector.NotifyFeeDeposit(e.vaultID, feeShare); err != nil {
				return err
			}
		}
	}
	market.LastAccrual = now
	return nil
}

// projectAccrual advances the market's indexes and totals for the elapsed
// time without recording fees. Used by read paths so queries stay free of
// side effects.
func (e *Engine) projectAccrual(market *Market) {
	if market == nil || market.LastAccrual == 0 {
		return
	}
	elapsed := e.clock() - market.LastAccrual
	if elapsed <= 0 || market.TotalBorrowed.Sign() == 0 {
		return
	}
	borrowAPR := e.model.BorrowAPR(market.TotalBorrowed, market.TotalSupplied)
	if borrowAPR.Sign() == 0 {
		return
	}
	supplyAPR := e.model.SupplyAPR(market.TotalBorrowed, market.TotalSupplied, e.params.ProtocolFeeBps)
	market.BorrowIndex = rayMul(market.BorrowIndex, rateFactor(borrowAPR, elapsed))
	market.SupplyIndex = rayMul(market.SupplyIndex, rateFactor(supplyAPR, elapsed))
	interest := computeInterest(market.TotalBorrowed, borrowAPR, elapsed)
	if interest.Sign() > 0 {
		market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, interest)
		market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, interest)
	}
}

func (e *Engine) syncDebt(position *Position, market *Market) {
	if position == nil || market == nil {
		return
	}
	position.Debt = debtFromScaled(position.ScaledDebt, market.BorrowIndex)
	if position.Debt.Sign() == 0 {
		position.DebtPrincipal = big.NewInt(0)
	}
}

// Supply deposits amount of the underlying asset and mints accounting shares
// at the current supply index. An optional lock records the unlock time and
// early-withdrawal terms; a position carries a single lock which a later
// supply replaces.
func (e *Engine) Supply(user common.Address, amount *big.Int, lock *LockRequest) (*big.Int, error) {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return nil, err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if lock != nil && (lock.DurationSeconds <= 0 || lock.EarlyWithdrawFeeBps > 10_000) {
		return nil, errInvalidConfiguration
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.checkOpen(market); err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}

	if e.params.MaxLiquidity != nil && e.params.MaxLiquidity.Sign() > 0 {
		projected := new(big.Int).Add(market.TotalSupplied, amount)
		if projected.Cmp(e.params.MaxLiquidity) > 0 {
			return nil, errLiquidityCapExceeded
		}
	}

	minted := sharesFromLiquidity(amount, market.SupplyIndex)
	if minted.Sign() == 0 {
		minted = new(big.Int).Set(amount)
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.Transfer(e.params.Asset, user, e.vaultAddr, amount); err != nil {
		return nil, err
	}

	position.Supplied = new(big.Int).Add(position.Supplied, amount)
	position.Shares = new(big.Int).Add(position.Shares, minted)
	position.LastUpdate = e.clock()
	if lock != nil {
		position.Lock = &Lock{
			UnlockAt:            e.clock() + lock.DurationSeconds,
			AllowEarlyWithdraw:  lock.AllowEarlyWithdraw,
			EarlyWithdrawFeeBps: lock.EarlyWithdrawFeeBps,
		}
	}

	market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, amount)
	market.TotalShares = new(big.Int).Add(market.TotalShares, minted)

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return nil, err
	}
	return minted, nil
}

// Withdraw burns shares covering amount of the underlying asset and releases
// it to the supplier. Locked positions withdraw early only when the lock
// permits it, at the configured fee. The net amount paid out is returned.
func (e *Engine) Withdraw(user common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return nil, err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.checkOpen(market); err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	burned := sharesFromLiquidity(amount, market.SupplyIndex)
	if burned.Sign() == 0 {
		burned = big.NewInt(1)
	}
	if position.Shares.Cmp(burned) < 0 {
		return nil, errInsufficientShares
	}
	if e.availableLiquidity(market).Cmp(amount) < 0 {
		return nil, errInsufficientLiquidity
	}

	now := e.clock()
	fee := big.NewInt(0)
	if position.Lock != nil {
		if now >= position.Lock.UnlockAt {
			position.Lock = nil
		} else if !position.Lock.AllowEarlyWithdraw {
			return nil, errPositionLocked
		} else {
			fee = bpsShare(amount, position.Lock.EarlyWithdrawFeeBps)
		}
	}

	e.syncDebt(position, market)
	remaining := new(big.Int).Sub(position.Supplied, minBig(amount, position.Supplied))
	if position.Debt.Sign() > 0 {
		if position.Debt.Cmp(bpsShare(remaining, e.params.MaxBorrowRatioBps)) > 0 {
			return nil, errExceedsMaxBorrow
		}
	}
	if e.hub != nil {
		ok, err := e.hub.CanWithdraw(user, amount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errExceedsMaxBorrow
		}
	}

	vaultBalance, err := e.ledger.BalanceOf(e.params.Asset, e.vaultAddr)
	if err != nil {
		return nil, err
	}
	if vaultBalance.Cmp(amount) < 0 {
		return nil, errInsufficientLiquidity
	}

	position.Shares = new(big.Int).Sub(position.Shares, burned)
	position.Supplied = remaining
	position.LastUpdate = now
	market.TotalShares = new(big.Int).Sub(market.TotalShares, burned)
	market.TotalSupplied = new(big.Int).Sub(market.TotalSupplied, amount)

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return nil, err
	}

	payout := new(big.Int).Sub(amount, fee)
	if err := e.ledger.Transfer(e.params.Asset, e.vaultAddr, user, payout); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.Asset, e.vaultAddr, e.feeAddr, fee); err != nil {
			return nil, err
		}
		if e.collector != nil {
			if err := e.collector.NotifyFeeDeposit(e.vaultID, fee); err != nil {
				return nil, err
			}
		}
	}
	return payout, nil
}

// Borrow draws amount against the caller's own supplied collateral in this
// vault. The projected debt must stay within the max borrow ratio.
func (e *Engine) Borrow(user common.Address, amount *big.Int) error {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.checkOpen(market); err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	e.syncDebt(position, market)

	projected := new(big.Int).Add(position.Debt, amount)
	if projected.Cmp(bpsShare(position.Supplied, e.params.MaxBorrowRatioBps)) > 0 {
		return errExceedsMaxBorrow
	}
	if e.availableLiquidity(market).Cmp(amount) < 0 {
		return errInsufficientLiquidity
	}
	if e.params.MaxLiquidity != nil && e.params.MaxLiquidity.Sign() > 0 {
		projectedTotal := new(big.Int).Add(market.TotalBorrowed, amount)
		if projectedTotal.Cmp(e.params.MaxLiquidity) > 0 {
			return errLiquidityCapExceeded
		}
	}

	increment := scaledDebtFromAmount(amount, market.BorrowIndex)
	position.ScaledDebt = new(big.Int).Add(position.ScaledDebt, increment)
	position.DebtPrincipal = new(big.Int).Add(position.DebtPrincipal, amount)
	e.syncDebt(position, market)
	position.LastUpdate = e.clock()

	market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, amount)

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return err
	}
	return e.ledger.Transfer(e.params.Asset, e.vaultAddr, user, amount)
}

// CrossCollateralBorrow draws amount against collateral held across other
// vaults. The can-borrow decision and the debt record both live with the
// collateral manager; the local position is untouched.
func (e *Engine) CrossCollateralBorrow(user common.Address, amount *big.Int) error {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.hub == nil || !e.params.CrossCollateralEnabled {
		return errCrossDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.checkOpen(market); err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if e.availableLiquidity(market).Cmp(amount) < 0 {
		return errInsufficientLiquidity
	}
	if e.params.MaxLiquidity != nil && e.params.MaxLiquidity.Sign() > 0 {
		projectedTotal := new(big.Int).Add(market.TotalBorrowed, amount)
		if projectedTotal.Cmp(e.params.MaxLiquidity) > 0 {
			return errLiquidityCapExceeded
		}
	}

	ok, err := e.hub.CanBorrow(user, amount)
	if err != nil {
		return err
	}
	if !ok {
		return errExceedsMaxBorrow
	}
	if err := e.hub.RecordBorrow(user, amount); err != nil {
		return err
	}

	market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, amount)
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return err
	}
	return e.ledger.Transfer(e.params.Asset, e.vaultAddr, user, amount)
}

// Repay pays down the caller's same-vault debt. Payment applies to accrued
// interest before principal and excess beyond the total owed is capped. The
// amount actually applied is returned.
func (e *Engine) Repay(user common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return nil, err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	e.syncDebt(position, market)
	if position.Debt.Sign() == 0 {
		return nil, errNoDebtToRepay
	}

	repaid := minBig(amount, position.Debt)
	interestDue := new(big.Int).Sub(position.Debt, position.DebtPrincipal)
	if interestDue.Sign() < 0 {
		interestDue = big.NewInt(0)
	}
	interestPaid := minBig(repaid, interestDue)
	principalPaid := new(big.Int).Sub(repaid, interestPaid)

	if err := e.ledger.Transfer(e.params.Asset, user, e.vaultAddr, repaid); err != nil {
		return nil, err
	}

	scaledRepay := scaledDebtFromAmount(repaid, market.BorrowIndex)
	if scaledRepay.Cmp(position.ScaledDebt) > 0 {
		scaledRepay = new(big.Int).Set(position.ScaledDebt)
	}
	position.ScaledDebt = new(big.Int).Sub(position.ScaledDebt, scaledRepay)
	e.syncDebt(position, market)
	if position.Debt.Sign() > 0 {
		position.DebtPrincipal = new(big.Int).Sub(position.DebtPrincipal, minBig(principalPaid, position.DebtPrincipal))
	}
	position.LastUpdate = e.clock()

	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, minBig(repaid, market.TotalBorrowed))

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return nil, err
	}
	return repaid, nil
}

// RepayCrossCollateralBorrow pays down the caller's cross-collateral debt in
// this vault's asset. Interest collected beyond principal is split between
// the fee collector and the supplier pool.
func (e *Engine) RepayCrossCollateralBorrow(user common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return nil, err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.hub == nil {
		return nil, errCrossDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}

	owed, err := e.hub.CrossDebtOwed(user)
	if err != nil {
		return nil, err
	}
	if owed.Sign() == 0 {
		return nil, errNoDebtToRepay
	}

	// Funds move before the debt ledger does.
	payment := minBig(amount, owed)
	if err := e.ledger.Transfer(e.params.Asset, user, e.vaultAddr, payment); err != nil {
		return nil, err
	}
	applied, principal, interest, err := e.hub.RecordRepay(user, payment)
	if err != nil {
		return nil, err
	}

	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, minBig(principal, market.TotalBorrowed))
	feeShare, supplierShare := fees.Split(interest, e.params.ProtocolFeeBps)
	if supplierShare.Sign() > 0 {
		market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, supplierShare)
		if market.TotalShares.Sign() > 0 {
			bump := new(big.Int).Mul(supplierShare, ray)
			bump.Quo(bump, market.TotalShares)
			market.SupplyIndex = new(big.Int).Add(market.SupplyIndex, bump)
		}
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return nil, err
	}
	if feeShare.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.Asset, e.vaultAddr, e.feeAddr, feeShare); err != nil {
			return nil, err
		}
		if e.collector != nil {
			if err := e.collector.NotifyFeeDeposit(e.vaultID, feeShare); err != nil {
				return nil, err
			}
		}
	}
	return applied, nil
}

// Liquidate settles an unhealthy same-vault position: the liquidator repays
// the full debt and receives the debt value plus the liquidation bonus out of
// the seized collateral. The position is zeroed; collateral beyond the payout
// is redistributed to the remaining suppliers. Returns the repaid debt and
// the liquidator payout.
func (e *Engine) Liquidate(liquidator, user common.Address) (*big.Int, *big.Int, error) {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return nil, nil, err
	}
	defer e.guard.Exit(e.vaultID)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, nil, err
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, nil, err
	}
	e.syncDebt(position, market)
	if position.Debt.Sign() == 0 {
		return nil, nil, errNoDebtToRepay
	}
	if position.Debt.Cmp(bpsShare(position.Supplied, e.params.LiquidationThresholdBps)) <= 0 {
		return nil, nil, errNotLiquidatable
	}

	repaid := new(big.Int).Set(position.Debt)
	claim := liquidityFromShares(position.Shares, market.SupplyIndex)
	payout := bpsShare(repaid, 10_000+e.params.LiquidationBonusBps)
	payout = minBig(payout, claim)

	if err := e.ledger.Transfer(e.params.Asset, liquidator, e.vaultAddr, repaid); err != nil {
		return nil, nil, err
	}

	leftover := new(big.Int).Sub(claim, payout)
	remainingShares := new(big.Int).Sub(market.TotalShares, position.Shares)

	market.TotalShares = remainingShares
	market.TotalSupplied = new(big.Int).Sub(market.TotalSupplied, minBig(claim, market.TotalSupplied))
	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, minBig(repaid, market.TotalBorrowed))
	if leftover.Sign() > 0 {
		if remainingShares.Sign() > 0 {
			market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, leftover)
			bump := new(big.Int).Mul(leftover, ray)
			bump.Quo(bump, remainingShares)
			market.SupplyIndex = new(big.Int).Add(market.SupplyIndex, bump)
		} else if e.collector != nil {
			if err := e.collector.NotifyFeeDeposit(e.vaultID, leftover); err != nil {
				return nil, nil, err
			}
		}
	}

	position.Supplied = big.NewInt(0)
	position.Shares = big.NewInt(0)
	position.Debt = big.NewInt(0)
	position.DebtPrincipal = big.NewInt(0)
	position.ScaledDebt = big.NewInt(0)
	position.StakedLocked = big.NewInt(0)
	position.Lock = nil
	position.LastUpdate = e.clock()

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return nil, nil, err
	}
	if err := e.ledger.Transfer(e.params.Asset, e.vaultAddr, liquidator, payout); err != nil {
		return nil, nil, err
	}
	return repaid, payout, nil
}
