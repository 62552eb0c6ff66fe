package registry

import (
	"errors"
	"testing"

	"lendcore/native/vault"
)

func testParams() vault.Params {
	return vault.Params{
		Asset:                   "ETH",
		AssetDecimals:           18,
		MaxBorrowRatioBps:       7000,
		LiquidationThresholdBps: 7500,
	}
}

func TestCreateAndLookupVault(t *testing.T) {
	r := NewRegistry()
	engine, err := r.CreateVault("ETH-Main", testParams())
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if engine.VaultID() != "eth-main" {
		t.Fatalf("vault id = %q, want normalised eth-main", engine.VaultID())
	}

	got, err := r.Get(" eth-main ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != engine {
		t.Fatalf("lookup returned different engine")
	}
	if r.VaultCount() != 1 {
		t.Fatalf("count = %d, want 1", r.VaultCount())
	}
}

func TestDuplicateVaultRejected(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateVault("eth-main", testParams()); err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if _, err := r.CreateVault("ETH-MAIN", testParams()); !errors.Is(err, ErrDuplicateVault) {
		t.Fatalf("err = %v, want ErrDuplicateVault", err)
	}
}

func TestUnknownVault(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownVault) {
		t.Fatalf("err = %v, want ErrUnknownVault", err)
	}
	if _, err := r.VaultAt(0); !errors.Is(err, ErrUnknownVault) {
		t.Fatalf("err = %v, want ErrUnknownVault", err)
	}
}

func TestVaultIDsStableOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"usdc-main", "btc-main", "eth-main"} {
		if _, err := r.CreateVault(id, testParams()); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	ids := r.VaultIDs()
	want := []string{"btc-main", "eth-main", "usdc-main"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestVaultAddressDeterministic(t *testing.T) {
	a := VaultAddress("eth-main")
	b := VaultAddress(" ETH-MAIN ")
	if a != b {
		t.Fatalf("address not normalisation-stable: %s vs %s", a.Hex(), b.Hex())
	}
	if a == VaultAddress("btc-main") {
		t.Fatalf("distinct vaults share an address")
	}
}
