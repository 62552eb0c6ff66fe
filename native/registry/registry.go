package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lendcore/native/vault"
)

var (
	ErrDuplicateVault = errors.New("registry: vault already registered")
	ErrUnknownVault   = errors.New("registry: unknown vault")
	ErrInvalidVaultID = errors.New("registry: invalid vault id")
)

// Registry is the directory of vault engines. Every vault the protocol
// serves is created through it so identifiers stay unique and pool addresses
// derive deterministically from them.
type Registry struct {
	mu     sync.RWMutex
	vaults map[string]*vault.Engine
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{vaults: make(map[string]*vault.Engine)}
}

func normaliseID(vaultID string) string {
	return strings.ToLower(strings.TrimSpace(vaultID))
}

// VaultAddress derives the pool account for a vault identifier. The mapping
// is pure so restarts and peers agree without coordination.
func VaultAddress(vaultID string) common.Address {
	hash := crypto.Keccak256([]byte("lend/vault/" + normaliseID(vaultID)))
	return common.BytesToAddress(hash[12:])
}

// CreateVault constructs a vault engine for the identifier and parameters and
// registers it. The engine still needs its collaborators wired before use.
func (r *Registry) CreateVault(vaultID string, params vault.Params) (*vault.Engine, error) {
	key := normaliseID(vaultID)
	if key == "" {
		return nil, ErrInvalidVaultID
	}
	engine, err := vault.NewEngine(key, VaultAddress(key), params)
	if err != nil {
		return nil, err
	}
	if err := r.RegisterVault(engine); err != nil {
		return nil, err
	}
	return engine, nil
}

// RegisterVault adds an existing engine to the directory.
func (r *Registry) RegisterVault(engine *vault.Engine) error {
	if engine == nil {
		return ErrInvalidVaultID
	}
	key := normaliseID(engine.VaultID())
	if key == "" {
		return ErrInvalidVaultID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vaults[key]; exists {
		return ErrDuplicateVault
	}
	r.vaults[key] = engine
	r.order = append(r.order, key)
	sort.Strings(r.order)
	return nil
}

// Get returns the engine registered under the identifier.
func (r *Registry) Get(vaultID string) (*vault.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.vaults[normaliseID(vaultID)]
	if !ok {
		return nil, ErrUnknownVault
	}
	return engine, nil
}

// VaultCount returns the number of registered vaults.
func (r *Registry) VaultCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vaults)
}

// VaultIDs returns the registered identifiers in stable order.
func (r *Registry) VaultIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// VaultAt returns the engine at the given index in stable order.
func (r *Registry) VaultAt(index int) (*vault.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.order) {
		return nil, ErrUnknownVault
	}
	return r.vaults[r.order[index]], nil
}
