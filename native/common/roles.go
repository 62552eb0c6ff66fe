package common

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnauthorized = errors.New("caller lacks required role")

// Role identifies a capability granted to an address for privileged
// operations. Roles are deliberately coarse; fine-grained policy lives with
// the component performing the check.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOracle   Role = "oracle"
	RolePauser   Role = "pauser"
	RoleTreasury Role = "treasury"
)

// AccessControl is an explicit capability set passed into components that
// expose privileged operations. There is no ambient global role state.
type AccessControl struct {
	mu    sync.RWMutex
	roles map[common.Address]map[Role]struct{}
}

func NewAccessControl() *AccessControl {
	return &AccessControl{roles: make(map[common.Address]map[Role]struct{})}
}

// Grant assigns the role to the address. Granting an already held role is a
// no-op.
func (a *AccessControl) Grant(addr common.Address, role Role) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	held, ok := a.roles[addr]
	if !ok {
		held = make(map[Role]struct{})
		a.roles[addr] = held
	}
	held[role] = struct{}{}
}

// Revoke removes the role from the address.
func (a *AccessControl) Revoke(addr common.Address, role Role) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if held, ok := a.roles[addr]; ok {
		delete(held, role)
	}
}

// HasRole reports whether the address holds the role.
func (a *AccessControl) HasRole(addr common.Address, role Role) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	held, ok := a.roles[addr]
	if !ok {
		return false
	}
	_, ok = held[role]
	return ok
}

// Require fails with ErrUnauthorized unless the address holds the role.
func (a *AccessControl) Require(addr common.Address, role Role) error {
	if !a.HasRole(addr, role) {
		return ErrUnauthorized
	}
	return nil
}
