package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/collateral"
	"lendcore/native/vault"
	"lendcore/storage"
)

// Store persists the lending ledgers over a storage.Database. Records are
// JSON encoded; the key layout is stable so a daemon restart resumes from the
// exact ledger it left.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func marketKey(vaultID string) []byte {
	return []byte(fmt.Sprintf("lend/market/%s", vaultID))
}

func positionKey(vaultID string, user common.Address) []byte {
	return []byte(fmt.Sprintf("lend/position/%s/%s", vaultID, user.Hex()))
}

func crossDebtKey(vaultID string, user common.Address) []byte {
	return []byte(fmt.Sprintf("lend/xdebt/%s/%s", vaultID, user.Hex()))
}

func crossDebtIndexKey(user common.Address) []byte {
	return []byte(fmt.Sprintf("lend/xdebtidx/%s", user.Hex()))
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

// GetMarket loads the vault's market record. A vault that was never
// initialised returns nil without error.
func (s *Store) GetMarket(vaultID string) (*vault.Market, error) {
	market := new(vault.Market)
	ok, err := s.get(marketKey(vaultID), market)
	if err != nil || !ok {
		return nil, err
	}
	return market, nil
}

func (s *Store) PutMarket(vaultID string, market *vault.Market) error {
	return s.put(marketKey(vaultID), market)
}

// GetPosition loads a user's position in the vault. Missing positions return
// nil without error.
func (s *Store) GetPosition(vaultID string, user common.Address) (*vault.Position, error) {
	position := new(vault.Position)
	ok, err := s.get(positionKey(vaultID, user), position)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (s *Store) PutPosition(vaultID string, position *vault.Position) error {
	if position == nil {
		return errors.New("state: nil position")
	}
	return s.put(positionKey(vaultID, position.User), position)
}

// GetDebt loads a user's cross-vault debt record for the named vault.
// Missing records return nil without error.
func (s *Store) GetDebt(vaultID string, user common.Address) (*collateral.CrossDebt, error) {
	debt := new(collateral.CrossDebt)
	ok, err := s.get(crossDebtKey(vaultID, user), debt)
	if err != nil || !ok {
		return nil, err
	}
	return debt, nil
}

// PutDebt stores the debt record and keeps the per-user vault index current
// so DebtsOf never scans the keyspace.
func (s *Store) PutDebt(vaultID string, debt *collateral.CrossDebt) error {
	if debt == nil {
		return errors.New("state: nil debt record")
	}
	if err := s.put(crossDebtKey(vaultID, debt.User), debt); err != nil {
		return err
	}
	var index []string
	if _, err := s.get(crossDebtIndexKey(debt.User), &index); err != nil {
		return err
	}
	for _, id := range index {
		if id == vaultID {
			return nil
		}
	}
	index = append(index, vaultID)
	sort.Strings(index)
	return s.put(crossDebtIndexKey(debt.User), index)
}

// DebtsOf returns every cross-vault debt record of the user, including zeroed
// ones kept for history.
func (s *Store) DebtsOf(user common.Address) ([]*collateral.CrossDebt, error) {
	var index []string
	if _, err := s.get(crossDebtIndexKey(user), &index); err != nil {
		return nil, err
	}
	debts := make([]*collateral.CrossDebt, 0, len(index))
	for _, vaultID := range index {
		debt, err := s.GetDebt(vaultID, user)
		if err != nil {
			return nil, err
		}
		if debt != nil {
			debts = append(debts, debt)
		}
	}
	return debts, nil
}
