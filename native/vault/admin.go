package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendcore/native/common"
)

func (e *Engine) requireRole(caller common.Address, role nativecommon.Role) error {
	if e.access == nil {
		return nativecommon.ErrUnauthorized
	}
	return e.access.Require(caller, role)
}

// SetPaused toggles the vault's pause flag. Requires the pauser role.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	if err := e.requireRole(caller, nativecommon.RolePauser); err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	market.Paused = paused
	return e.state.PutMarket(e.vaultID, market)
}

// SetActive toggles the vault's active flag. Requires the admin role.
func (e *Engine) SetActive(caller common.Address, active bool) error {
	if err := e.requireRole(caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	market.Active = active
	return e.state.PutMarket(e.vaultID, market)
}

// UpdateParams replaces the vault parameters after validation. Interest is
// accrued under the old rate curve first so the change never applies
// retroactively. Requires the admin role.
func (e *Engine) UpdateParams(caller common.Address, params Params) error {
	if err := e.requireRole(caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if params.Asset != e.params.Asset || params.AssetDecimals != e.params.AssetDecimals {
		return errInvalidConfiguration
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return err
	}
	e.params = params.Clone()
	e.model = RateModel{BaseRateBps: params.BaseRateBps, SlopeBps: params.SlopeBps}
	return nil
}

// ProtocolDraw lends pool liquidity to the protocol staking collaborator,
// bounded by the configured share of total supply. Requires the treasury
// role.
func (e *Engine) ProtocolDraw(caller, recipient common.Address, amount *big.Int) error {
	if err := e.requireRole(caller, nativecommon.RoleTreasury); err != nil {
		return err
	}
	if err := e.guard.Enter(e.vaultID); err != nil {
		return err
	}
	defer e.guard.Exit(e.vaultID)
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if e.params.MaxProtocolBorrowRatioBps == 0 {
		return errProtocolCapExceeded
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

	cap := bpsShare(market.TotalSupplied, e.params.MaxProtocolBorrowRatioBps)
	projected := new(big.Int).Add(market.ProtocolBorrowed, amount)
	if projected.Cmp(cap) > 0 {
		return errProtocolCapExceeded
	}
	if e.availableLiquidity(market).Cmp(amount) < 0 {
		return errInsufficientLiquidity
	}

	market.ProtocolBorrowed = projected
	market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, amount)
	if err := e.state.PutMarket(e.vaultID, market); err != nil {
		return err
	}
	return e.ledger.Transfer(e.params.Asset, e.vaultAddr, recipient, amount)
}

// ProtocolReturn repays a protocol staking draw. Requires the treasury role.
func (e *Engine) ProtocolReturn(caller, from common.Address, amount *big.Int) error {
	if err := e.requireRole(caller, nativecommon.RoleTreasury); err != nil {
		return err
	}
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
	returned := minBig(amount, market.ProtocolBorrowed)
	if returned.Sign() == 0 {
		return errNoDebtToRepay
	}
	if err := e.ledger.Transfer(e.params.Asset, from, e.vaultAddr, returned); err != nil {
		return err
	}
	market.ProtocolBorrowed = new(big.Int).Sub(market.ProtocolBorrowed, returned)
	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, minBig(returned, market.TotalBorrowed))
	return e.state.PutMarket(e.vaultID, market)
}

// LockStakedCollateral marks part of the user's supplied balance as pledged
// to the staking path, removing it from cross-vault collateral aggregation.
// Requires the treasury role.
func (e *Engine) LockStakedCollateral(caller, user common.Address, amount *big.Int) error {
	if err := e.requireRole(caller, nativecommon.RoleTreasury); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(position.StakedLocked, amount)
	if projected.Cmp(position.Supplied) > 0 {
		return errInsufficientShares
	}
	position.StakedLocked = projected
	return e.state.PutPosition(e.vaultID, position)
}

// ReleaseStakedCollateral releases a staking pledge. Requires the treasury
// role.
func (e *Engine) ReleaseStakedCollateral(caller, user common.Address, amount *big.Int) error {
	if err := e.requireRole(caller, nativecommon.RoleTreasury); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	position.StakedLocked = new(big.Int).Sub(position.StakedLocked, minBig(amount, position.StakedLocked))
	return e.state.PutPosition(e.vaultID, position)
}
