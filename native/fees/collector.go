package fees

import (
	"math/big"
	"strings"
	"sync"

	"lendcore/observability"
)

// Collector receives the protocol's share of accrued interest. The vault
// engine only ever calls NotifyFeeDeposit; how the collector accounts for or
// distributes the proceeds is its own concern.
type Collector interface {
	NotifyFeeDeposit(vaultID string, amount *big.Int) error
}

// Split computes the fee cut of an interest amount at the supplied basis
// points. The remainder stays with the suppliers. A bps value above 10000 is
// clamped so the split can never exceed the input.
func Split(interest *big.Int, feeBps uint64) (fee, remainder *big.Int) {
	remainder = big.NewInt(0)
	fee = big.NewInt(0)
	if interest == nil || interest.Sign() <= 0 {
		return fee, remainder
	}
	if feeBps > 10_000 {
		feeBps = 10_000
	}
	remainder.Set(interest)
	if feeBps == 0 {
		return fee, remainder
	}
	fee = new(big.Int).Mul(interest, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, big.NewInt(10_000))
	remainder = new(big.Int).Sub(interest, fee)
	return fee, remainder
}

// Accrual is the in-memory collector implementation used by the daemon. It
// tracks cumulative fee deposits per vault.
type Accrual struct {
	mu     sync.RWMutex
	totals map[string]*big.Int
}

func NewAccrual() *Accrual {
	return &Accrual{totals: make(map[string]*big.Int)}
}

func normaliseVault(vaultID string) string {
	return strings.ToLower(strings.TrimSpace(vaultID))
}

// NotifyFeeDeposit records an interest split for the vault.
func (a *Accrual) NotifyFeeDeposit(vaultID string, amount *big.Int) error {
	if a == nil || amount == nil || amount.Sign() <= 0 {
		return nil
	}
	key := normaliseVault(vaultID)
	a.mu.Lock()
	defer a.mu.Unlock()
	total, ok := a.totals[key]
	if !ok {
		total = big.NewInt(0)
		a.totals[key] = total
	}
	total.Add(total, amount)

	claim, _ := new(big.Float).SetInt(amount).Float64()
	observability.LendingMetrics().RecordFeeAccrual(key, claim)
	return nil
}

// Accrued returns the cumulative fee deposits recorded for the vault.
func (a *Accrual) Accrued(vaultID string) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if total, ok := a.totals[normaliseVault(vaultID)]; ok {
		return new(big.Int).Set(total)
	}
	return big.NewInt(0)
}
