package vault

import "errors"

var (
	errNilState              = errors.New("vault engine: state not configured")
	errNilMarket             = errors.New("vault engine: market not initialised")
	errInvalidAmount         = errors.New("vault engine: amount must be positive")
	errInvalidConfiguration  = errors.New("vault engine: invalid configuration")
	errVaultInactive         = errors.New("vault engine: vault inactive")
	errVaultPaused           = errors.New("vault engine: vault paused")
	errInsufficientShares    = errors.New("vault engine: insufficient share balance")
	errInsufficientLiquidity = errors.New("vault engine: insufficient liquidity")
	errLiquidityCapExceeded  = errors.New("vault engine: liquidity cap exceeded")
	errExceedsMaxBorrow      = errors.New("vault engine: borrow exceeds collateral limit")
	errPositionLocked        = errors.New("vault engine: position lock has not expired")
	errNoDebtToRepay         = errors.New("vault engine: no outstanding debt to repay")
	errNotLiquidatable       = errors.New("vault engine: borrower not eligible for liquidation")
	errCrossDisabled         = errors.New("vault engine: cross-collateral borrowing not enabled")
	errProtocolCapExceeded   = errors.New("vault engine: protocol borrow cap exceeded")
	errUnauthorizedCaller    = errors.New("vault engine: caller not authorised")
)

// Exported aliases for conditions callers outside the package need to match.
var (
	ErrInvalidAmount         = errInvalidAmount
	ErrInvalidConfiguration  = errInvalidConfiguration
	ErrVaultInactive         = errVaultInactive
	ErrVaultPaused           = errVaultPaused
	ErrInsufficientShares    = errInsufficientShares
	ErrInsufficientLiquidity = errInsufficientLiquidity
	ErrLiquidityCapExceeded  = errLiquidityCapExceeded
	ErrExceedsMaxBorrow      = errExceedsMaxBorrow
	ErrPositionLocked        = errPositionLocked
	ErrNoDebtToRepay         = errNoDebtToRepay
	ErrNotLiquidatable       = errNotLiquidatable
	ErrCrossDisabled         = errCrossDisabled
	ErrProtocolCapExceeded   = errProtocolCapExceeded
)
