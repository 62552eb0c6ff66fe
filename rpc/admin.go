package rpc

import (
	"errors"
	"net/http"
	"strings"

	nativecommon "lendcore/native/common"
)

type adminToggleRequest struct {
	VaultID string `json:"vaultId"`
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

type adminParamsRequest struct {
	VaultID string `json:"vaultId"`
	Caller  string `json:"caller"`

	MaxLiquidity              string `json:"maxLiquidity"`
	BaseRateBps               uint64 `json:"baseRateBps"`
	SlopeBps                  uint64 `json:"slopeBps"`
	MaxBorrowRatioBps         uint64 `json:"maxBorrowRatioBps"`
	LiquidationThresholdBps   uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps       uint64 `json:"liquidationBonusBps"`
	MaxProtocolBorrowRatioBps uint64 `json:"maxProtocolBorrowRatioBps"`
	ProtocolFeeBps            uint64 `json:"protocolFeeBps"`
	CrossCollateralEnabled    bool   `json:"crossCollateralEnabled"`
}

type adminPriceRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Price  string `json:"price"` // USD, 1e8 fixed point
}

func (s *Server) adminPrice(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil || s.access == nil {
		writeError(w, errors.New("rpc: oracle administration is not configured"))
		return
	}
	req := &adminPriceRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.access.Require(caller, nativecommon.RoleOracle); err != nil {
		writeError(w, err)
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		writeBadRequest(w, errors.New("asset is required"))
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.oracle.SetManualPrice(asset, price); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("manual price updated", "asset", asset, "price", price.String())
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "price": price.String()})
}

func (s *Server) adminPause(w http.ResponseWriter, r *http.Request) {
	req := &adminToggleRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	engine, err := s.registry.Get(req.VaultID)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := engine.SetPaused(caller, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("vault pause updated", "vault", engine.VaultID(), "paused", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Enabled})
}

func (s *Server) adminActive(w http.ResponseWriter, r *http.Request) {
	req := &adminToggleRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	engine, err := s.registry.Get(req.VaultID)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := engine.SetActive(caller, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("vault active updated", "vault", engine.VaultID(), "active", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Enabled})
}

func (s *Server) adminParams(w http.ResponseWriter, r *http.Request) {
	req := &adminParamsRequest{}
	if err := decodeRequest(r, req); err != nil {
		writeBadRequest(w, err)
		return
	}
	engine, err := s.registry.Get(req.VaultID)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	params := engine.Params()
	params.BaseRateBps = req.BaseRateBps
	params.SlopeBps = req.SlopeBps
	params.MaxBorrowRatioBps = req.MaxBorrowRatioBps
	params.LiquidationThresholdBps = req.LiquidationThresholdBps
	params.LiquidationBonusBps = req.LiquidationBonusBps
	params.MaxProtocolBorrowRatioBps = req.MaxProtocolBorrowRatioBps
	params.ProtocolFeeBps = req.ProtocolFeeBps
	params.CrossCollateralEnabled = req.CrossCollateralEnabled
	params.MaxLiquidity = nil
	if req.MaxLiquidity != "" && req.MaxLiquidity != "0" {
		limit, err := parseAmount(req.MaxLiquidity)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		params.MaxLiquidity = limit
	}

	if err := engine.UpdateParams(caller, params); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("vault params updated", "vault", engine.VaultID())
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
