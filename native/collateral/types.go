package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CrossDebt is one user's debt denominated in one vault's asset, backed by
// collateral aggregated across all registered vaults. Records are created on
// first cross-vault borrow and persist, zeroed, after full repayment.
type CrossDebt struct {
	User            common.Address
	VaultID         string
	Principal       *big.Int
	AccruedInterest *big.Int
	LastUpdate      int64
}

func (d *CrossDebt) ensureDefaults() {
	if d.Principal == nil {
		d.Principal = big.NewInt(0)
	}
	if d.AccruedInterest == nil {
		d.AccruedInterest = big.NewInt(0)
	}
}

// Owed returns principal plus accrued interest.
func (d *CrossDebt) Owed() *big.Int {
	d.ensureDefaults()
	return new(big.Int).Add(d.Principal, d.AccruedInterest)
}

// RiskParams groups the portfolio-level limits applied to cross-vault
// positions, in basis points.
type RiskParams struct {
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
}

// Validate rejects parameter sets that would let cross-vault debt reach the
// full collateral value before liquidation triggers.
func (p RiskParams) Validate() error {
	if p.MaxLTVBps >= 10_000 {
		return errInvalidConfiguration
	}
	if p.LiquidationThresholdBps < p.MaxLTVBps || p.LiquidationThresholdBps > 10_000 {
		return errInvalidConfiguration
	}
	if p.LiquidationBonusBps > 10_000 {
		return errInvalidConfiguration
	}
	return nil
}
