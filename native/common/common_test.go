package common

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func TestGuardBlocksPausedModule(t *testing.T) {
	board := NewSwitchboard()
	if err := Guard(board, "vault"); err != nil {
		t.Fatalf("guard on running module: %v", err)
	}
	board.SetPaused("vault", true)
	if err := Guard(board, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("err = %v, want ErrModulePaused", err)
	}
	board.SetPaused("vault", false)
	if err := Guard(board, "vault"); err != nil {
		t.Fatalf("guard after resume: %v", err)
	}
}

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
}

func TestCallGuardRejectsReentry(t *testing.T) {
	g := NewCallGuard()
	if err := g.Enter("vault-a"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := g.Enter("vault-a"); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("err = %v, want ErrReentrantCall", err)
	}
	// A different entity is independent.
	if err := g.Enter("vault-b"); err != nil {
		t.Fatalf("enter other entity: %v", err)
	}
	g.Exit("vault-a")
	if err := g.Enter("vault-a"); err != nil {
		t.Fatalf("re-enter after exit: %v", err)
	}
}

func TestAccessControlRoles(t *testing.T) {
	admin := ethcommon.HexToAddress("0x0000000000000000000000000000000000000001")
	other := ethcommon.HexToAddress("0x0000000000000000000000000000000000000002")

	ac := NewAccessControl()
	ac.Grant(admin, RoleAdmin)

	if !ac.HasRole(admin, RoleAdmin) {
		t.Fatalf("granted role not held")
	}
	if ac.HasRole(admin, RolePauser) {
		t.Fatalf("unrelated role held")
	}
	if err := ac.Require(other, RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	ac.Revoke(admin, RoleAdmin)
	if err := ac.Require(admin, RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked role still passes")
	}
}
