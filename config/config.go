package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	LogLevel       string `toml:"LogLevel"`
	LogFormat      string `toml:"LogFormat"`

	Oracle OracleConfig  `toml:"Oracle"`
	Fees   FeesConfig    `toml:"Fees"`
	Risk   RiskConfig    `toml:"Risk"`
	Access AccessConfig  `toml:"Access"`
	Vaults []VaultConfig `toml:"Vaults"`
}

type OracleConfig struct {
	StaleAfterSeconds int64 `toml:"StaleAfterSeconds"`

	// ManualPrices seeds the oracle at startup: asset symbol to USD price in
	// 1e8 fixed point. Later updates come through the oracle admin API.
	ManualPrices map[string]string `toml:"ManualPrices"`
}

type FeesConfig struct {
	CollectorAddress string `toml:"CollectorAddress"`
}

type RiskConfig struct {
	MaxLTVBps               uint64 `toml:"MaxLTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
}

type AccessConfig struct {
	Admins   []string `toml:"Admins"`
	Pausers  []string `toml:"Pausers"`
	Oracles  []string `toml:"Oracles"`
	Treasury []string `toml:"Treasury"`
}

type VaultConfig struct {
	ID                        string `toml:"ID"`
	Asset                     string `toml:"Asset"`
	AssetDecimals             uint8  `toml:"AssetDecimals"`
	MaxLiquidity              string `toml:"MaxLiquidity"`
	BaseRateBps               uint64 `toml:"BaseRateBps"`
	SlopeBps                  uint64 `toml:"SlopeBps"`
	MaxBorrowRatioBps         uint64 `toml:"MaxBorrowRatioBps"`
	LiquidationThresholdBps   uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps       uint64 `toml:"LiquidationBonusBps"`
	MaxProtocolBorrowRatioBps uint64 `toml:"MaxProtocolBorrowRatioBps"`
	ProtocolFeeBps            uint64 `toml:"ProtocolFeeBps"`
	CrossCollateralEnabled    bool   `toml:"CrossCollateralEnabled"`
}

// Load loads the configuration from the given path, creating a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lendcore-data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.LogFormat) == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Oracle.StaleAfterSeconds <= 0 {
		cfg.Oracle.StaleAfterSeconds = 300
	}
	if cfg.Risk.MaxLTVBps == 0 {
		cfg.Risk.MaxLTVBps = 7000
	}
	if cfg.Risk.LiquidationThresholdBps == 0 {
		cfg.Risk.LiquidationThresholdBps = 8000
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Risk.LiquidationBonusBps = 500
	cfg.Vaults = []VaultConfig{{
		ID:                        "eth-main",
		Asset:                     "ETH",
		AssetDecimals:             18,
		MaxLiquidity:              "0",
		BaseRateBps:               200,
		SlopeBps:                  1800,
		MaxBorrowRatioBps:         7000,
		LiquidationThresholdBps:   7500,
		LiquidationBonusBps:       500,
		MaxProtocolBorrowRatioBps: 2000,
		ProtocolFeeBps:            1000,
		CrossCollateralEnabled:    true,
	}}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
