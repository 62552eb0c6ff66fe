package vault

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Params groups the per-vault risk and rate configuration. All ratios are
// expressed in basis points.
type Params struct {
	Asset                     string
	AssetDecimals             uint8
	MaxLiquidity              *big.Int
	BaseRateBps               uint64
	SlopeBps                  uint64
	MaxBorrowRatioBps         uint64
	LiquidationThresholdBps   uint64
	LiquidationBonusBps       uint64
	MaxProtocolBorrowRatioBps uint64
	ProtocolFeeBps            uint64
	CrossCollateralEnabled    bool
}

// Validate rejects parameter sets that would let a position borrow at or
// beyond its own collateral value.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Asset) == "" {
		return errInvalidConfiguration
	}
	if p.MaxBorrowRatioBps >= 10_000 {
		return errInvalidConfiguration
	}
	if p.LiquidationThresholdBps < p.MaxBorrowRatioBps || p.LiquidationThresholdBps > 10_000 {
		return errInvalidConfiguration
	}
	if p.LiquidationBonusBps > 10_000 || p.ProtocolFeeBps > 10_000 {
		return errInvalidConfiguration
	}
	if p.MaxProtocolBorrowRatioBps > 10_000 {
		return errInvalidConfiguration
	}
	if p.MaxLiquidity != nil && p.MaxLiquidity.Sign() < 0 {
		return errInvalidConfiguration
	}
	return nil
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	if p.MaxLiquidity != nil {
		clone.MaxLiquidity = new(big.Int).Set(p.MaxLiquidity)
	}
	return clone
}

// Market captures the aggregate ledger for one vault. Amounts are in the
// asset's smallest unit; indexes are ray (1e27) fixed point.
type Market struct {
	VaultID string
	Asset   string
	// TotalSupplied is the aggregate supplier claim including accrued
	// interest.
	TotalSupplied *big.Int
	// TotalBorrowed is the outstanding debt across all positions including
	// accrued interest.
	TotalBorrowed *big.Int
	// ProtocolBorrowed tracks the share of TotalBorrowed drawn by the
	// protocol staking collaborator.
	ProtocolBorrowed *big.Int
	TotalShares      *big.Int
	SupplyIndex      *big.Int
	BorrowIndex      *big.Int
	// LastAccrual is the unix timestamp of the most recent interest accrual.
	LastAccrual int64
	Active      bool
	Paused      bool
}

// Lock captures an optional supply lock on a position. A position carries at
// most one lock at a time.
type Lock struct {
	UnlockAt            int64
	AllowEarlyWithdraw  bool
	EarlyWithdrawFeeBps uint64
}

// LockRequest is the caller-facing lock configuration; the engine stamps the
// unlock time from its own clock.
type LockRequest struct {
	DurationSeconds     int64
	AllowEarlyWithdraw  bool
	EarlyWithdrawFeeBps uint64
}

// Position is a user's supply/borrow state within one vault. Positions are
// created on first supply and zeroed, never deleted, on full exit.
type Position struct {
	User common.Address
	// Supplied is the deposited principal used for same-vault collateral
	// checks.
	Supplied *big.Int
	Shares   *big.Int
	// Debt mirrors ScaledDebt at the current borrow index.
	Debt *big.Int
	// DebtPrincipal is the borrowed principal net of principal repayments;
	// the spread to Debt is accrued interest.
	DebtPrincipal *big.Int
	// ScaledDebt is the debt divided by the borrow index at borrow time.
	ScaledDebt *big.Int
	// StakedLocked is the portion of Supplied pledged to the protocol
	// staking path. It is excluded from cross-vault collateral aggregation.
	StakedLocked *big.Int
	LastUpdate   int64
	Lock         *Lock
}

func (p *Position) ensureDefaults() {
	if p.Supplied == nil {
		p.Supplied = big.NewInt(0)
	}
	if p.Shares == nil {
		p.Shares = big.NewInt(0)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
	if p.DebtPrincipal == nil {
		p.DebtPrincipal = big.NewInt(0)
	}
	if p.ScaledDebt == nil {
		p.ScaledDebt = big.NewInt(0)
	}
	if p.StakedLocked == nil {
		p.StakedLocked = big.NewInt(0)
	}
}
