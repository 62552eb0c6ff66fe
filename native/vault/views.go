package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/fees"
)

// MarketSnapshot returns a copy of the current market record with debt views
// projected to the present without persisting the accrual.
func (e *Engine) MarketSnapshot() (*Market, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	e.projectAccrual(market)
	clone := *market
	clone.TotalSupplied = new(big.Int).Set(market.TotalSupplied)
	clone.TotalBorrowed = new(big.Int).Set(market.TotalBorrowed)
	clone.ProtocolBorrowed = new(big.Int).Set(market.ProtocolBorrowed)
	clone.TotalShares = new(big.Int).Set(market.TotalShares)
	clone.SupplyIndex = new(big.Int).Set(market.SupplyIndex)
	clone.BorrowIndex = new(big.Int).Set(market.BorrowIndex)
	return &clone, nil
}

// PositionOf returns the user's position with debt synced to the projected
// borrow index. Reading never mutates stored state.
func (e *Engine) PositionOf(user common.Address) (*Position, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	e.projectAccrual(market)
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	e.syncDebt(position, market)
	return position, nil
}

// UtilizationBps reports the vault's current utilization in basis points.
func (e *Engine) UtilizationBps() (uint64, error) {
	market, err := e.ensureMarket()
	if err != nil {
		return 0, err
	}
	return e.model.UtilizationBps(market.TotalBorrowed, market.TotalSupplied), nil
}

// BorrowRateBps reports the current borrow rate in basis points. Used by the
// collateral manager to accrue cross-vault debt.
func (e *Engine) BorrowRateBps() (uint64, error) {
	util, err := e.UtilizationBps()
	if err != nil {
		return 0, err
	}
	return e.model.BorrowRateBps(util), nil
}

// CollateralOf reports the user's collateral available for cross-vault
// aggregation: the supplied principal net of any staking pledge.
func (e *Engine) CollateralOf(user common.Address) (*big.Int, error) {
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	free := new(big.Int).Sub(position.Supplied, position.StakedLocked)
	if free.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return free, nil
}

// SeizeCollateral transfers amount of the user's supplied collateral to the
// recipient, burning the covering shares. Called by the collateral manager
// during cross-vault liquidation.
func (e *Engine) SeizeCollateral(user, recipient common.Address, amount *big.Int) error {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return err
	}
	defer e.guard.Exit(e.vaultID)
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	seized := minBig(amount, position.Supplied)
	if seized.Sign() == 0 {
		return errInsufficientShares
	}
	burned := sharesFromLiquidity(seized, market.SupplyIndex)
	if burned.Cmp(position.Shares) > 0 {
		burned = new(big.Int).Set(position.Shares)
	}

	position.Supplied = new(big.Int).Sub(position.Supplied, seized)
	position.Shares = new(big.Int).Sub(position.Shares, burned)
	position.StakedLocked = minBig(position.StakedLocked, position.Supplied)
	position.LastUpdate = e.clock()
	market.TotalShares = new(big.Int).Sub(market.TotalShares, burned)
	market.TotalSupplied = new(big.Int).Sub(market.TotalSupplied, minBig(seized, market.TotalSupplied))

	if err := e.state.PutPosition(e.vaultID, position); err != nil {
		return err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return err
	}
	return e.ledger.Transfer(e.params.Asset, e.vaultAddr, recipient, seized)
}

// SettleCrossRepayment receives a cross-vault debt repayment collected by
// the collateral manager: the payer funds the pool, the principal portion
// retires borrowed totals, and the interest portion is split between the fee
// collector and the suppliers.
func (e *Engine) SettleCrossRepayment(from common.Address, amount, principal *big.Int) error {
	if err := e.guard.Enter(e.vaultID); err != nil {
		return err
	}
	defer e.guard.Exit(e.vaultID)
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if principal == nil {
		principal = big.NewInt(0)
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if err := e.ledger.Transfer(e.params.Asset, from, e.vaultAddr, amount); err != nil {
		return err
	}

	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, minBig(principal, market.TotalBorrowed))
	interest := new(big.Int).Sub(amount, principal)
	if interest.Sign() > 0 {
		feeShare, supplierShare := fees.Split(interest, e.params.ProtocolFeeBps)
		if supplierShare.Sign() > 0 {
			market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, supplierShare)
			if market.TotalShares.Sign() > 0 {
				bump := new(big.Int).Mul(supplierShare, ray)
				bump.Quo(bump, market.TotalShares)
				market.SupplyIndex = new(big.Int).Add(market.SupplyIndex, bump)
			}
		}
		if feeShare.Sign() > 0 {
			if err := e.ledger.Transfer(e.params.Asset, e.vaultAddr, e.feeAddr, feeShare); err != nil {
				return err
			}
			if e.collector != nil {
				if err := e.collector.NotifyFeeDeposit(e.vaultID, feeShare); err != nil {
					return err
				}
			}
		}
	}
	return e.state.PutMarket(e.vaultID, market)
}
