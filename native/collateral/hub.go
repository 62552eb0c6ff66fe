package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VaultHub is a vault-scoped handle onto the manager's cross-debt ledger.
// Debt mutations flow through a hub, so they carry the identity of the vault
// instance the manager registered rather than a caller-supplied vault ID.
type VaultHub struct {
	manager *Manager
	vault   VaultAccess
}

// HubFor issues the hub for a registered vault. The reference must be the
// exact instance held by the manager; a vault that was never registered, or
// was replaced by a later AddVault, cannot obtain one.
func (m *Manager) HubFor(v VaultAccess) (*VaultHub, error) {
	if m == nil || v == nil {
		return nil, errVaultNotRegistered
	}
	if err := m.verifyVault(v); err != nil {
		return nil, err
	}
	return &VaultHub{manager: m, vault: v}, nil
}

// CanBorrow reports whether the user's aggregated collateral supports the
// additional debt in the hub's vault.
func (h *VaultHub) CanBorrow(user common.Address, amount *big.Int) (bool, error) {
	return h.manager.CanBorrow(user, h.vault.VaultID(), amount)
}

// CanWithdraw reports whether the user's remaining collateral would still
// cover their cross-vault debt after removing amount from the hub's vault.
func (h *VaultHub) CanWithdraw(user common.Address, amount *big.Int) (bool, error) {
	return h.manager.canWithdraw(h.vault, user, amount)
}

// CrossDebtOwed projects the user's total owed in the hub's vault.
func (h *VaultHub) CrossDebtOwed(user common.Address) (*big.Int, error) {
	return h.manager.crossDebtOwed(h.vault, user)
}

// RecordBorrow adds principal to the user's debt in the hub's vault.
func (h *VaultHub) RecordBorrow(user common.Address, amount *big.Int) error {
	return h.manager.recordBorrow(h.vault, user, amount)
}

// RecordRepay applies a payment to the user's debt in the hub's vault and
// returns the applied total with its principal/interest split.
func (h *VaultHub) RecordRepay(user common.Address, amount *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	return h.manager.recordRepay(h.vault, user, amount)
}
