package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"lendcore/native/vault"
	"lendcore/observability"
)

const requestLimit = 1 << 20 // 1 MiB

var errMalformedRequest = errors.New("malformed request")

type lockPayload struct {
	DurationSeconds     int64  `json:"durationSeconds"`
	AllowEarlyWithdraw  bool   `json:"allowEarlyWithdraw"`
	EarlyWithdrawFeeBps uint64 `json:"earlyWithdrawFeeBps"`
}

type txRequest struct {
	VaultID string       `json:"vaultId"`
	User    string       `json:"user"`
	Amount  string       `json:"amount"`
	Lock    *lockPayload `json:"lock,omitempty"`
}

type liquidateRequest struct {
	VaultID    string `json:"vaultId,omitempty"`
	Liquidator string `json:"liquidator"`
	User       string `json:"user"`
}

type marketResponse struct {
	VaultID        string `json:"vaultId"`
	Asset          string `json:"asset"`
	TotalSupplied  string `json:"totalSupplied"`
	TotalBorrowed  string `json:"totalBorrowed"`
	TotalShares    string `json:"totalShares"`
	SupplyIndex    string `json:"supplyIndex"`
	BorrowIndex    string `json:"borrowIndex"`
	UtilizationBps uint64 `json:"utilizationBps"`
	BorrowRateBps  uint64 `json:"borrowRateBps"`
	Active         bool   `json:"active"`
	Paused         bool   `json:"paused"`
	LastAccrual    int64  `json:"lastAccrual"`
}

type lockState struct {
	UnlockAt            int64  `json:"unlockAt"`
	AllowEarlyWithdraw  bool   `json:"allowEarlyWithdraw"`
	EarlyWithdrawFeeBps uint64 `json:"earlyWithdrawFeeBps"`
}

type positionResponse struct {
	User          string     `json:"user"`
	Supplied      string     `json:"supplied"`
	Shares        string     `json:"shares"`
	Debt          string     `json:"debt"`
	DebtPrincipal string     `json:"debtPrincipal"`
	StakedLocked  string     `json:"stakedLocked"`
	Lock          *lockState `json:"lock,omitempty"`
}

type healthResponse struct {
	CollateralUSD   string `json:"collateralUsd"`
	DebtUSD         string `json:"debtUsd"`
	HealthFactorBps string `json:"healthFactorBps"`
	Liquidatable    bool   `json:"liquidatable"`
}

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", errMalformedRequest)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errMalformedRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", errMalformedRequest, raw)
	}
	return amount, nil
}

func marketPayload(engine *vault.Engine) (*marketResponse, error) {
	market, err := engine.MarketSnapshot()
	if err != nil {
		return nil, err
	}
	util, err := engine.UtilizationBps()
	if err != nil {
		return nil, err
	}
	rate, err := engine.BorrowRateBps()
	if err != nil {
		return nil, err
	}
	return &marketResponse{
		VaultID:        market.VaultID,
		Asset:          market.Asset,
		TotalSupplied:  market.TotalSupplied.String(),
		TotalBorrowed:  market.TotalBorrowed.String(),
		TotalShares:    market.TotalShares.String(),
		SupplyIndex:    market.SupplyIndex.String(),
		BorrowIndex:    market.BorrowIndex.String(),
		UtilizationBps: util,
		BorrowRateBps:  rate,
		Active:         market.Active,
		Paused:         market.Paused,
		LastAccrual:    market.LastAccrual,
	}, nil
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.VaultIDs()
	markets := make([]*marketResponse, 0, len(ids))
	for _, id := range ids {
		engine, err := s.registry.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		payload, err := marketPayload(engine)
		if err != nil {
			writeError(w, err)
			return
		}
		markets = append(markets, payload)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": markets})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	engine, err := s.registry.Get(chi.URLParam(r, "vaultID"))
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := marketPayload(engine)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	engine, err := s.registry.Get(chi.URLParam(r, "vaultID"))
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	position, err := engine.PositionOf(user)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := &positionResponse{
		User:          position.User.Hex(),
		Supplied:      position.Supplied.String(),
		Shares:        position.Shares.String(),
		Debt:          position.Debt.String(),
		DebtPrincipal: position.DebtPrincipal.String(),
		StakedLocked:  position.StakedLocked.String(),
	}
	if position.Lock != nil {
		resp.Lock = &lockState{
			UnlockAt:            position.Lock.UnlockAt,
			AllowEarlyWithdraw:  position.Lock.AllowEarlyWithdraw,
			EarlyWithdrawFeeBps: position.Lock.EarlyWithdrawFeeBps,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getAccountHealth(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	collateralUSD, err := s.manager.TotalCollateralUSD(user)
	if err != nil {
		writeError(w, err)
		return
	}
	debtUSD, err := s.manager.TotalDebtUSD(user)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := s.manager.HealthFactor(user)
	if err != nil {
		writeError(w, err)
		return
	}
	liquidatable, err := s.manager.IsLiquidatable(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &healthResponse{
		CollateralUSD:   collateralUSD.String(),
		DebtUSD:         debtUSD.String(),
		HealthFactorBps: health.String(),
		Liquidatable:    liquidatable,
	})
}

func (s *Server) decodeTx(r *http.Request) (*vault.Engine, common.Address, *big.Int, *txRequest, error) {
	req := &txRequest{}
	if err := decodeRequest(r, req); err != nil {
		return nil, common.Address{}, nil, nil, err
	}
	engine, err := s.registry.Get(req.VaultID)
	if err != nil {
		return nil, common.Address{}, nil, nil, err
	}
	user, err := parseAddress(req.User)
	if err != nil {
		return nil, common.Address{}, nil, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, common.Address{}, nil, nil, err
	}
	return engine, user, amount, req, nil
}

func (s *Server) publishVaultTotals(engine *vault.Engine) {
	market, err := engine.MarketSnapshot()
	if err != nil {
		return
	}
	util, err := engine.UtilizationBps()
	if err != nil {
		return
	}
	supplied, _ := new(big.Float).SetInt(market.TotalSupplied).Float64()
	borrowed, _ := new(big.Float).SetInt(market.TotalBorrowed).Float64()
	observability.LendingMetrics().SetVaultTotals(engine.VaultID(), supplied, borrowed, util)
}

func (s *Server) supplyAsset(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, req, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var lock *vault.LockRequest
	if req.Lock != nil {
		lock = &vault.LockRequest{
			DurationSeconds:     req.Lock.DurationSeconds,
			AllowEarlyWithdraw:  req.Lock.AllowEarlyWithdraw,
			EarlyWithdrawFeeBps: req.Lock.EarlyWithdrawFeeBps,
		}
	}
	minted, err := engine.Supply(user, amount, lock)
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"sharesMinted": minted.String()})
}

func (s *Server) withdrawAsset(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, _, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payout, err := engine.Withdraw(user, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"paidOut": payout.String()})
}

func (s *Server) borrowAsset(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, _, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := engine.Borrow(user, amount); err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"borrowed": amount.String()})
}

func (s *Server) borrowCross(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, _, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := engine.CrossCollateralBorrow(user, amount); err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"borrowed": amount.String()})
}

func (s *Server) repayAsset(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, _, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	repaid, err := engine.Repay(user, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"repaid": repaid.String()})
}

func (s *Server) repayCross(w http.ResponseWriter, r *http.Request) {
	engine, user, amount, _, err := s.decodeTx(r)
	if err != nil {
		writeError(w, err)
		return
	}
	repaid, err := engine.RepayCrossCollateralBorrow(user, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{"repaid": repaid.String()})
}

func (s *Server) liquidatePosition(w http.ResponseWriter, r *http.Request) {
	req := &liquidateRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	engine, err := s.registry.Get(req.VaultID)
	if err != nil {
		writeError(w, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	repaid, payout, err := engine.Liquidate(liquidator, user)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LendingMetrics().RecordLiquidation(engine.VaultID(), "vault")
	s.publishVaultTotals(engine)
	writeJSON(w, http.StatusOK, map[string]string{
		"repaid": repaid.String(),
		"payout": payout.String(),
	})
}

func (s *Server) liquidateCross(w http.ResponseWriter, r *http.Request) {
	req := &liquidateRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	repaidUSD, seizedUSD, err := s.manager.Liquidate(liquidator, user)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.LendingMetrics().RecordLiquidation("portfolio", "cross")
	writeJSON(w, http.StatusOK, map[string]string{
		"repaidUsd": repaidUSD.String(),
		"seizedUsd": seizedUSD.String(),
	})
}
