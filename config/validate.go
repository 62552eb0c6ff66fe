package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/collateral"
	"lendcore/native/vault"
)

// Validate checks the structural constraints the engines cannot enforce for
// themselves: identifier uniqueness, address syntax, and ratio ordering.
func (c *Config) Validate() error {
	if len(c.Vaults) == 0 {
		return fmt.Errorf("config: at least one vault must be configured")
	}
	seen := make(map[string]bool, len(c.Vaults))
	for i := range c.Vaults {
		vc := &c.Vaults[i]
		id := strings.ToLower(strings.TrimSpace(vc.ID))
		if id == "" {
			return fmt.Errorf("config: vault %d has an empty ID", i)
		}
		if seen[id] {
			return fmt.Errorf("config: duplicate vault ID %q", id)
		}
		seen[id] = true
		if _, err := vc.VaultParams(); err != nil {
			return fmt.Errorf("config: vault %q: %w", id, err)
		}
	}
	if _, err := c.RiskParams(); err != nil {
		return err
	}
	if s := strings.TrimSpace(c.Fees.CollectorAddress); s != "" && !common.IsHexAddress(s) {
		return fmt.Errorf("config: invalid fee collector address %q", s)
	}
	for _, group := range [][]string{c.Access.Admins, c.Access.Pausers, c.Access.Oracles, c.Access.Treasury} {
		for _, raw := range group {
			if !common.IsHexAddress(strings.TrimSpace(raw)) {
				return fmt.Errorf("config: invalid access address %q", raw)
			}
		}
	}
	for asset, raw := range c.Oracle.ManualPrices {
		if _, err := parsePrice(raw); err != nil {
			return fmt.Errorf("config: manual price for %q: %w", asset, err)
		}
	}
	return nil
}

func parsePrice(raw string) (*big.Int, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid price %q", raw)
	}
	return price, nil
}

// ManualPrices parses the seeded oracle prices, keyed by upper-cased asset.
func (c *Config) ManualPrices() (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(c.Oracle.ManualPrices))
	for asset, raw := range c.Oracle.ManualPrices {
		price, err := parsePrice(raw)
		if err != nil {
			return nil, fmt.Errorf("config: manual price for %q: %w", asset, err)
		}
		out[strings.ToUpper(strings.TrimSpace(asset))] = price
	}
	return out, nil
}

// VaultParams converts the vault section to engine parameters. A zero or
// empty MaxLiquidity disables the deposit cap.
func (vc *VaultConfig) VaultParams() (vault.Params, error) {
	params := vault.Params{
		Asset:                     strings.ToUpper(strings.TrimSpace(vc.Asset)),
		AssetDecimals:             vc.AssetDecimals,
		BaseRateBps:               vc.BaseRateBps,
		SlopeBps:                  vc.SlopeBps,
		MaxBorrowRatioBps:         vc.MaxBorrowRatioBps,
		LiquidationThresholdBps:   vc.LiquidationThresholdBps,
		LiquidationBonusBps:       vc.LiquidationBonusBps,
		MaxProtocolBorrowRatioBps: vc.MaxProtocolBorrowRatioBps,
		ProtocolFeeBps:            vc.ProtocolFeeBps,
		CrossCollateralEnabled:    vc.CrossCollateralEnabled,
	}
	if raw := strings.TrimSpace(vc.MaxLiquidity); raw != "" && raw != "0" {
		limit, ok := new(big.Int).SetString(raw, 10)
		if !ok || limit.Sign() < 0 {
			return vault.Params{}, fmt.Errorf("invalid MaxLiquidity %q", raw)
		}
		params.MaxLiquidity = limit
	}
	if err := params.Validate(); err != nil {
		return vault.Params{}, err
	}
	return params, nil
}

// RiskParams converts the risk section to collateral manager parameters.
func (c *Config) RiskParams() (collateral.RiskParams, error) {
	params := collateral.RiskParams{
		MaxLTVBps:               c.Risk.MaxLTVBps,
		LiquidationThresholdBps: c.Risk.LiquidationThresholdBps,
		LiquidationBonusBps:     c.Risk.LiquidationBonusBps,
	}
	if err := params.Validate(); err != nil {
		return collateral.RiskParams{}, fmt.Errorf("config: risk parameters: %w", err)
	}
	return params, nil
}

// FeeCollector returns the configured fee collector address or the zero
// address when unset.
func (c *Config) FeeCollector() common.Address {
	s := strings.TrimSpace(c.Fees.CollectorAddress)
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// AccessAddresses parses one access group into addresses.
func AccessAddresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		out = append(out, common.HexToAddress(strings.TrimSpace(s)))
	}
	return out
}
