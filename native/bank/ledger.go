package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/storage"
)

var (
	ErrInvalidAmount        = errors.New("bank: amount must be positive")
	ErrInsufficientBalance  = errors.New("bank: insufficient balance")
	ErrInsufficientApproval = errors.New("bank: transfer exceeds approval")
	ErrUnknownAsset         = errors.New("bank: asset not registered")
)

// Ledger is the fungible-asset interface consumed by the vault engine. The
// engine always checks Decimals before any USD normalisation.
type Ledger interface {
	Transfer(asset string, from, to common.Address, amount *big.Int) error
	TransferFrom(asset string, spender, from, to common.Address, amount *big.Int) error
	BalanceOf(asset string, account common.Address) (*big.Int, error)
	Decimals(asset string) (uint8, error)
}

// Store is the key-value backed Ledger implementation. Balances are stored as
// decimal strings keyed by asset and account.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func balanceKey(asset string, account common.Address) []byte {
	return []byte(fmt.Sprintf("bank/balance/%s/%s", normaliseAsset(asset), strings.ToLower(account.Hex())))
}

func approvalKey(asset string, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("bank/approval/%s/%s/%s", normaliseAsset(asset),
		strings.ToLower(owner.Hex()), strings.ToLower(spender.Hex())))
}

func assetKey(asset string) []byte {
	return []byte("bank/asset/" + normaliseAsset(asset))
}

// RegisterAsset records the decimal precision for an asset identifier.
// Registration is idempotent; re-registering updates the precision.
func (s *Store) RegisterAsset(asset string, decimals uint8) error {
	if normaliseAsset(asset) == "" {
		return ErrUnknownAsset
	}
	return s.db.Put(assetKey(asset), []byte{decimals})
}

// Decimals returns the registered precision for the asset.
func (s *Store) Decimals(asset string) (uint8, error) {
	raw, err := s.db.Get(assetKey(asset))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrUnknownAsset
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 1 {
		return 0, fmt.Errorf("bank: corrupt asset record for %s", normaliseAsset(asset))
	}
	return raw[0], nil
}

// BalanceOf returns the account's balance, zero when never funded.
func (s *Store) BalanceOf(asset string, account common.Address) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(asset, account))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt balance record for %s", normaliseAsset(asset))
	}
	return balance, nil
}

func (s *Store) putBalance(asset string, account common.Address, balance *big.Int) error {
	return s.db.Put(balanceKey(asset, account), []byte(balance.String()))
}

// Mint credits freshly issued units to the account. Used by genesis funding
// and tests; production issuance is the tokenization subsystem's concern.
func (s *Store) Mint(asset string, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.Decimals(asset); err != nil {
		return err
	}
	balance, err := s.BalanceOf(asset, account)
	if err != nil {
		return err
	}
	return s.putBalance(asset, account, balance.Add(balance, amount))
}

// Transfer moves amount between accounts, failing without any write when the
// source balance is insufficient.
func (s *Store) Transfer(asset string, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.Decimals(asset); err != nil {
		return err
	}
	fromBalance, err := s.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := s.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := s.putBalance(asset, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return s.putBalance(asset, to, toBalance.Add(toBalance, amount))
}

// Approve authorises the spender to move up to amount of the owner's balance.
func (s *Store) Approve(asset string, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := s.Decimals(asset); err != nil {
		return err
	}
	return s.db.Put(approvalKey(asset, owner, spender), []byte(amount.String()))
}

// Allowance reports the remaining approval from owner to spender.
func (s *Store) Allowance(asset string, owner, spender common.Address) (*big.Int, error) {
	raw, err := s.db.Get(approvalKey(asset, owner, spender))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	allowance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt approval record for %s", normaliseAsset(asset))
	}
	return allowance, nil
}

// TransferFrom moves amount from the owner using the spender's approval.
func (s *Store) TransferFrom(asset string, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if spender != from {
		allowance, err := s.Allowance(asset, from, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientApproval
		}
		if err := s.db.Put(approvalKey(asset, from, spender),
			[]byte(new(big.Int).Sub(allowance, amount).String())); err != nil {
			return err
		}
	}
	return s.Transfer(asset, from, to, amount)
}
