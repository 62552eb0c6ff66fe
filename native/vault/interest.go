package vault

import "math/big"

const secondsPerYear = 31_536_000

// RateModel is the pure utilization-to-borrow-rate function shared by every
// vault: rate = base + slope * utilization. It carries no state and has no
// side effects.
type RateModel struct {
	BaseRateBps uint64
	SlopeBps    uint64
}

// UtilizationBps computes borrowed/supplied in basis points, zero when the
// pool is empty and capped at 10000.
func (m RateModel) UtilizationBps(totalBorrowed, totalSupplied *big.Int) uint64 {
	if totalBorrowed == nil || totalBorrowed.Sign() <= 0 {
		return 0
	}
	if totalSupplied == nil || totalSupplied.Sign() <= 0 {
		return 0
	}
	util := new(big.Int).Mul(totalBorrowed, basisPoints)
	util.Quo(util, totalSupplied)
	if !util.IsUint64() || util.Uint64() > 10_000 {
		return 10_000
	}
	return util.Uint64()
}

// BorrowRateBps maps a utilization in [0, 10000] to the borrow rate in basis
// points.
func (m RateModel) BorrowRateBps(utilizationBps uint64) uint64 {
	if utilizationBps > 10_000 {
		utilizationBps = 10_000
	}
	return m.BaseRateBps + m.SlopeBps*utilizationBps/10_000
}

// BorrowAPR returns the current borrow rate as an exact rational for accrual
// arithmetic.
func (m RateModel) BorrowAPR(totalBorrowed, totalSupplied *big.Int) *big.Rat {
	rateBps := m.BorrowRateBps(m.UtilizationBps(totalBorrowed, totalSupplied))
	if rateBps == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(new(big.Int).SetUint64(rateBps), basisPoints)
}

// SupplyAPR derives the supplier rate from the borrow rate, utilization, and
// the protocol fee share of interest.
func (m RateModel) SupplyAPR(totalBorrowed, totalSupplied *big.Int, protocolFeeBps uint64) *big.Rat {
	borrowAPR := m.BorrowAPR(totalBorrowed, totalSupplied)
	if borrowAPR.Sign() == 0 {
		return new(big.Rat)
	}
	utilization := new(big.Rat).SetFrac(
		new(big.Int).SetUint64(m.UtilizationBps(totalBorrowed, totalSupplied)), basisPoints)
	if utilization.Sign() == 0 {
		return new(big.Rat)
	}
	if protocolFeeBps > 10_000 {
		protocolFeeBps = 10_000
	}
	keep := new(big.Rat).SetFrac(new(big.Int).SetUint64(10_000-protocolFeeBps), basisPoints)
	supply := new(big.Rat).Mul(borrowAPR, utilization)
	return supply.Mul(supply, keep)
}
