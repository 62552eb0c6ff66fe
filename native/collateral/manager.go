package collateral

import (
	"errors"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
)

var (
	errNilState             = errors.New("collateral manager: state not configured")
	errInvalidConfiguration = errors.New("collateral manager: invalid configuration")
	errVaultNotRegistered   = errors.New("collateral manager: vault not registered")
	errNoOutstandingDebt    = errors.New("collateral manager: no outstanding debt")
	errNotLiquidatable      = errors.New("collateral manager: position health above liquidation threshold")
)

var (
	ErrVaultNotRegistered = errVaultNotRegistered
	ErrNoOutstandingDebt  = errNoOutstandingDebt
	ErrNotLiquidatable    = errNotLiquidatable
)

var (
	basisPoints = big.NewInt(10_000)
	maxHealth   = new(big.Int).SetUint64(math.MaxUint64)
)

const secondsPerYear = 31_536_000

// VaultAccess is the view of a vault the manager needs: collateral and rate
// reads plus the liquidation-time settlement hooks.
type VaultAccess interface {
	VaultID() string
	Asset() string
	AssetDecimals() uint8
	CollateralOf(user common.Address) (*big.Int, error)
	BorrowRateBps() (uint64, error)
	SeizeCollateral(user, recipient common.Address, amount *big.Int) error
	SettleCrossRepayment(from common.Address, amount, principal *big.Int) error
}

type managerState interface {
	GetDebt(vaultID string, user common.Address) (*CrossDebt, error)
	PutDebt(vaultID string, debt *CrossDebt) error
	DebtsOf(user common.Address) ([]*CrossDebt, error)
}

// Manager aggregates a user's collateral value across every registered vault
// and owns the cross-vault debt ledger. All valuation flows through one
// oracle so heterogeneous asset precisions normalise to a common USD base
// before any comparison.
type Manager struct {
	mu     sync.RWMutex
	vaults map[string]VaultAccess
	order  []string
	oracle *oracle.Oracle
	state  managerState
	params RiskParams
	guard  *nativecommon.CallGuard
	clock  func() int64
}

// NewManager constructs a collateral manager pricing through the supplied
// oracle.
func NewManager(priceOracle *oracle.Oracle, params RiskParams) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		vaults: make(map[string]VaultAccess),
		oracle: priceOracle,
		params: params,
		guard:  nativecommon.NewCallGuard(),
		clock:  func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the manager to its persistence layer.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetClock overrides the time source. Intended for deterministic tests.
func (m *Manager) SetClock(clock func() int64) {
	if clock != nil {
		m.clock = clock
	}
}

func normaliseVaultID(vaultID string) string {
	return strings.ToLower(strings.TrimSpace(vaultID))
}

// AddVault registers a vault for collateral aggregation. Registration is
// idempotent; re-adding replaces the stored reference.
func (m *Manager) AddVault(v VaultAccess) error {
	if m == nil || v == nil {
		return errVaultNotRegistered
	}
	key := normaliseVaultID(v.VaultID())
	if key == "" {
		return errInvalidConfiguration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.vaults[key]; !exists {
		m.order = append(m.order, key)
		sort.Strings(m.order)
	}
	m.vaults[key] = v
	return nil
}

func (m *Manager) vault(vaultID string) (VaultAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vaults[normaliseVaultID(vaultID)]
	if !ok {
		return nil, errVaultNotRegistered
	}
	return v, nil
}

// verifyVault checks that v is the exact instance registered under its ID.
func (m *Manager) verifyVault(v VaultAccess) error {
	m.mu.RLock()
	registered, ok := m.vaults[normaliseVaultID(v.VaultID())]
	m.mu.RUnlock()
	if !ok || registered != v {
		return errVaultNotRegistered
	}
	return nil
}

func (m *Manager) vaultList() []VaultAccess {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VaultAccess, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.vaults[key])
	}
	return out
}

// TotalCollateralUSD sums the user's free collateral across all registered
// vaults, valued in USD fixed point.
func (m *Manager) TotalCollateralUSD(user common.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, v := range m.vaultList() {
		amount, err := v.CollateralOf(user)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			continue
		}
		value, err := m.oracle.USDValue(v.Asset(), amount, v.AssetDecimals())
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// pendingInterest computes the simple interest accrued on the debt entry
// since its last update at the debt vault's current borrow rate.
func pendingInterest(debt *CrossDebt, rateBps uint64, now int64) *big.Int {
	if debt == nil || debt.Principal == nil || debt.Principal.Sign() == 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	elapsed := now - debt.LastUpdate
	if debt.LastUpdate == 0 || elapsed <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(debt.Principal, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, big.NewInt(elapsed))
	interest.Quo(interest, basisPoints)
	interest.Quo(interest, big.NewInt(secondsPerYear))
	return interest
}

func (m *Manager) accrueDebt(debt *CrossDebt, v VaultAccess) error {
	debt.ensureDefaults()
	rateBps, err := v.BorrowRateBps()
	if err != nil {
		return err
	}
	now := m.clock()
	pending := pendingInterest(debt, rateBps, now)
	if pending.Sign() > 0 {
		debt.AccruedInterest = new(big.Int).Add(debt.AccruedInterest, pending)
	}
	debt.LastUpdate = now
	return nil
}

// owedNow projects the debt entry's total owed without mutating it.
func (m *Manager) owedNow(debt *CrossDebt, v VaultAccess) (*big.Int, error) {
	debt.ensureDefaults()
	rateBps, err := v.BorrowRateBps()
	if err != nil {
		return nil, err
	}
	owed := debt.Owed()
	return owed.Add(owed, pendingInterest(debt, rateBps, m.clock())), nil
}

// TotalDebtUSD sums the user's cross-vault debt, interest projected to now,
// valued in USD fixed point.
func (m *Manager) TotalDebtUSD(user common.Address) (*big.Int, error) {
	if m.state == nil {
		return nil, errNilState
	}
	debts, err := m.state.DebtsOf(user)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, debt := range debts {
		v, err := m.vault(debt.VaultID)
		if err != nil {
			return nil, err
		}
		owed, err := m.owedNow(debt, v)
		if err != nil {
			return nil, err
		}
		if owed.Sign() == 0 {
			continue
		}
		value, err := m.oracle.USDValue(v.Asset(), owed, v.AssetDecimals())
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// CanBorrow reports whether the user's aggregated collateral supports the
// additional debt. Read-only and freely repeatable.
func (m *Manager) CanBorrow(user common.Address, debtVaultID string, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, nil
	}
	v, err := m.vault(debtVaultID)
	if err != nil {
		return false, err
	}
	collateralUSD, err := m.TotalCollateralUSD(user)
	if err != nil {
		return false, err
	}
	debtUSD, err := m.TotalDebtUSD(user)
	if err != nil {
		return false, err
	}
	addUSD, err := m.oracle.USDValue(v.Asset(), amount, v.AssetDecimals())
	if err != nil {
		return false, err
	}
	maxUSD := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(m.params.MaxLTVBps))
	maxUSD.Quo(maxUSD, basisPoints)
	projected := new(big.Int).Add(debtUSD, addUSD)
	return projected.Cmp(maxUSD) <= 0, nil
}

// MaxBorrow returns the remaining borrowable amount denominated in the debt
// vault's asset.
func (m *Manager) MaxBorrow(user common.Address, debtVaultID string) (*big.Int, error) {
	v, err := m.vault(debtVaultID)
	if err != nil {
		return nil, err
	}
	collateralUSD, err := m.TotalCollateralUSD(user)
	if err != nil {
		return nil, err
	}
	debtUSD, err := m.TotalDebtUSD(user)
	if err != nil {
		return nil, err
	}
	maxUSD := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(m.params.MaxLTVBps))
	maxUSD.Quo(maxUSD, basisPoints)
	remaining := new(big.Int).Sub(maxUSD, debtUSD)
	if remaining.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	price, err := m.oracle.Price(v.Asset())
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(remaining, pow10(v.AssetDecimals()))
	return amount.Quo(amount, price), nil
}

// HealthFactor returns the user's risk-adjusted collateral-to-debt ratio in
// basis points. With no debt outstanding the maximal sentinel is returned.
func (m *Manager) HealthFactor(user common.Address) (*big.Int, error) {
	debtUSD, err := m.TotalDebtUSD(user)
	if err != nil {
		return nil, err
	}
	if debtUSD.Sign() == 0 {
		return new(big.Int).Set(maxHealth), nil
	}
	collateralUSD, err := m.TotalCollateralUSD(user)
	if err != nil {
		return nil, err
	}
	health := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(m.params.LiquidationThresholdBps))
	return health.Quo(health, debtUSD), nil
}

// IsLiquidatable reports whether the user's health factor has fallen below
// 100%.
func (m *Manager) IsLiquidatable(user common.Address) (bool, error) {
	health, err := m.HealthFactor(user)
	if err != nil {
		return false, err
	}
	return health.Cmp(basisPoints) < 0, nil
}

func (m *Manager) ensureDebt(vaultID string, user common.Address) (*CrossDebt, error) {
	if m.state == nil {
		return nil, errNilState
	}
	debt, err := m.state.GetDebt(vaultID, user)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		debt = &CrossDebt{User: user, VaultID: normaliseVaultID(vaultID)}
	}
	debt.ensureDefaults()
	return debt, nil
}

// canWithdraw reports whether the user's aggregated collateral still covers
// their cross-vault debt after removing amount from vault v.
func (m *Manager) canWithdraw(v VaultAccess, user common.Address, amount *big.Int) (bool, error) {
	if err := m.verifyVault(v); err != nil {
		return false, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, nil
	}
	debtUSD, err := m.TotalDebtUSD(user)
	if err != nil {
		return false, err
	}
	if debtUSD.Sign() == 0 {
		return true, nil
	}
	collateralUSD, err := m.TotalCollateralUSD(user)
	if err != nil {
		return false, err
	}
	withdrawUSD, err := m.oracle.USDValue(v.Asset(), amount, v.AssetDecimals())
	if err != nil {
		return false, err
	}
	remaining := new(big.Int).Sub(collateralUSD, withdrawUSD)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	maxUSD := new(big.Int).Mul(remaining, new(big.Int).SetUint64(m.params.MaxLTVBps))
	maxUSD.Quo(maxUSD, basisPoints)
	return debtUSD.Cmp(maxUSD) <= 0, nil
}

// crossDebtOwed projects the user's total owed in vault v without mutating
// the stored entry.
func (m *Manager) crossDebtOwed(v VaultAccess, user common.Address) (*big.Int, error) {
	if err := m.verifyVault(v); err != nil {
		return nil, err
	}
	if m.state == nil {
		return nil, errNilState
	}
	debt, err := m.state.GetDebt(normaliseVaultID(v.VaultID()), user)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return big.NewInt(0), nil
	}
	return m.owedNow(debt, v)
}

// recordBorrow adds principal to the user's debt in vault v.
func (m *Manager) recordBorrow(v VaultAccess, user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errNoOutstandingDebt
	}
	if err := m.verifyVault(v); err != nil {
		return err
	}
	vaultID := normaliseVaultID(v.VaultID())
	debt, err := m.ensureDebt(vaultID, user)
	if err != nil {
		return err
	}
	if err := m.accrueDebt(debt, v); err != nil {
		return err
	}
	debt.Principal = new(big.Int).Add(debt.Principal, amount)
	return m.state.PutDebt(vaultID, debt)
}

// recordRepay applies a payment to the user's debt in vault v, interest
// first then principal, capped at the total owed. It returns the applied
// total and its principal/interest split.
func (m *Manager) recordRepay(v VaultAccess, user common.Address, amount *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, errNoOutstandingDebt
	}
	if err := m.verifyVault(v); err != nil {
		return nil, nil, nil, err
	}
	vaultID := normaliseVaultID(v.VaultID())
	debt, err := m.ensureDebt(vaultID, user)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := m.accrueDebt(debt, v); err != nil {
		return nil, nil, nil, err
	}
	if debt.Owed().Sign() == 0 {
		return nil, nil, nil, errNoOutstandingDebt
	}

	interestPaid := minBig(amount, debt.AccruedInterest)
	principalPaid := minBig(new(big.Int).Sub(amount, interestPaid), debt.Principal)
	applied := new(big.Int).Add(interestPaid, principalPaid)

	debt.AccruedInterest = new(big.Int).Sub(debt.AccruedInterest, interestPaid)
	debt.Principal = new(big.Int).Sub(debt.Principal, principalPaid)
	if err := m.state.PutDebt(vaultID, debt); err != nil {
		return nil, nil, nil, err
	}
	return applied, principalPaid, interestPaid, nil
}

// Liquidate settles every cross-vault debt of an unhealthy user: the
// liquidator funds each debt vault in full and seizes collateral worth the
// repaid value plus the liquidation bonus, drawn vault by vault. Returns the
// repaid and seized totals in USD fixed point.
func (m *Manager) Liquidate(liquidator, user common.Address) (*big.Int, *big.Int, error) {
	if err := m.guard.Enter("manager"); err != nil {
		return nil, nil, err
	}
	defer m.guard.Exit("manager")
	if m.state == nil {
		return nil, nil, errNilState
	}

	liquidatable, err := m.IsLiquidatable(user)
	if err != nil {
		return nil, nil, err
	}
	if !liquidatable {
		return nil, nil, errNotLiquidatable
	}

	debts, err := m.state.DebtsOf(user)
	if err != nil {
		return nil, nil, err
	}

	// Price the full settlement and seizure plan before touching any vault
	// or the debt ledger. No debt entry persists until every transfer ran.
	type plannedSettlement struct {
		vault VaultAccess
		debt  *CrossDebt
		owed  *big.Int
	}
	var settlements []plannedSettlement
	repaidUSD := big.NewInt(0)
	for _, debt := range debts {
		v, err := m.vault(debt.VaultID)
		if err != nil {
			return nil, nil, err
		}
		if err := m.accrueDebt(debt, v); err != nil {
			return nil, nil, err
		}
		owed := debt.Owed()
		if owed.Sign() == 0 {
			continue
		}
		value, err := m.oracle.USDValue(v.Asset(), owed, v.AssetDecimals())
		if err != nil {
			return nil, nil, err
		}
		repaidUSD.Add(repaidUSD, value)
		settlements = append(settlements, plannedSettlement{vault: v, debt: debt, owed: owed})
	}
	if repaidUSD.Sign() == 0 {
		return nil, nil, errNoOutstandingDebt
	}

	targetUSD := new(big.Int).Mul(repaidUSD, new(big.Int).SetUint64(10_000+m.params.LiquidationBonusBps))
	targetUSD.Quo(targetUSD, basisPoints)

	type plannedSeizure struct {
		vault  VaultAccess
		amount *big.Int
	}
	var seizures []plannedSeizure
	seizedUSD := big.NewInt(0)
	for _, v := range m.vaultList() {
		if seizedUSD.Cmp(targetUSD) >= 0 {
			break
		}
		free, err := v.CollateralOf(user)
		if err != nil {
			return nil, nil, err
		}
		if free.Sign() == 0 {
			continue
		}
		freeUSD, err := m.oracle.USDValue(v.Asset(), free, v.AssetDecimals())
		if err != nil {
			return nil, nil, err
		}
		if freeUSD.Sign() == 0 {
			continue
		}
		remaining := new(big.Int).Sub(targetUSD, seizedUSD)
		takeUSD := minBig(remaining, freeUSD)
		takeAmount := free
		if takeUSD.Cmp(freeUSD) < 0 {
			price, err := m.oracle.Price(v.Asset())
			if err != nil {
				return nil, nil, err
			}
			takeAmount = new(big.Int).Mul(takeUSD, pow10(v.AssetDecimals()))
			takeAmount.Quo(takeAmount, price)
			if takeAmount.Sign() == 0 {
				continue
			}
		}
		seizures = append(seizures, plannedSeizure{vault: v, amount: takeAmount})
		seizedUSD.Add(seizedUSD, takeUSD)
	}

	for _, s := range settlements {
		if err := s.vault.SettleCrossRepayment(liquidator, s.owed, s.debt.Principal); err != nil {
			return nil, nil, err
		}
	}
	for _, s := range seizures {
		if err := s.vault.SeizeCollateral(user, liquidator, s.amount); err != nil {
			return nil, nil, err
		}
	}
	for _, s := range settlements {
		s.debt.Principal = big.NewInt(0)
		s.debt.AccruedInterest = big.NewInt(0)
		if err := m.state.PutDebt(s.debt.VaultID, s.debt); err != nil {
			return nil, nil, err
		}
	}
	return repaidUSD, seizedUSD, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
