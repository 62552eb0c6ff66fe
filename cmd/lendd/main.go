package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendcore/config"
	"lendcore/native/bank"
	"lendcore/native/collateral"
	nativecommon "lendcore/native/common"
	"lendcore/native/fees"
	"lendcore/native/oracle"
	"lendcore/native/registry"
	"lendcore/observability/logging"
	"lendcore/rpc"
	"lendcore/state"
	"lendcore/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("lendd", "info", "json").Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.Setup("lendd", cfg.LogLevel, cfg.LogFormat)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)
	ledger := bank.NewStore(db)
	collector := fees.NewAccrual()
	pauses := nativecommon.NewSwitchboard()

	access := nativecommon.NewAccessControl()
	for _, addr := range config.AccessAddresses(cfg.Access.Admins) {
		access.Grant(addr, nativecommon.RoleAdmin)
	}
	for _, addr := range config.AccessAddresses(cfg.Access.Pausers) {
		access.Grant(addr, nativecommon.RolePauser)
	}
	for _, addr := range config.AccessAddresses(cfg.Access.Oracles) {
		access.Grant(addr, nativecommon.RoleOracle)
	}
	for _, addr := range config.AccessAddresses(cfg.Access.Treasury) {
		access.Grant(addr, nativecommon.RoleTreasury)
	}

	priceOracle := oracle.New(time.Duration(cfg.Oracle.StaleAfterSeconds) * time.Second)
	seedPrices, err := cfg.ManualPrices()
	if err != nil {
		log.Error("manual prices", "error", err)
		os.Exit(1)
	}
	for asset, price := range seedPrices {
		if err := priceOracle.SetManualPrice(asset, price); err != nil {
			log.Error("seed price", "asset", asset, "error", err)
			os.Exit(1)
		}
	}

	riskParams, err := cfg.RiskParams()
	if err != nil {
		log.Error("risk parameters", "error", err)
		os.Exit(1)
	}
	manager, err := collateral.NewManager(priceOracle, riskParams)
	if err != nil {
		log.Error("collateral manager", "error", err)
		os.Exit(1)
	}
	manager.SetState(store)

	reg := registry.NewRegistry()
	feeAddr := cfg.FeeCollector()
	for i := range cfg.Vaults {
		vc := &cfg.Vaults[i]
		params, err := vc.VaultParams()
		if err != nil {
			log.Error("vault parameters", "vault", vc.ID, "error", err)
			os.Exit(1)
		}
		engine, err := reg.CreateVault(vc.ID, params)
		if err != nil {
			log.Error("create vault", "vault", vc.ID, "error", err)
			os.Exit(1)
		}
		engine.SetState(store)
		engine.SetLedger(ledger)
		engine.SetFeeCollector(feeAddr, collector)
		engine.SetPauses(pauses)
		engine.SetAccessControl(access)
		if err := ledger.RegisterAsset(params.Asset, params.AssetDecimals); err != nil {
			log.Error("register asset", "asset", params.Asset, "error", err)
			os.Exit(1)
		}
		if err := manager.AddVault(engine); err != nil {
			log.Error("register vault with collateral manager", "vault", vc.ID, "error", err)
			os.Exit(1)
		}
		hub, err := manager.HubFor(engine)
		if err != nil {
			log.Error("issue collateral hub", "vault", vc.ID, "error", err)
			os.Exit(1)
		}
		engine.SetCollateralHub(hub)
		if err := engine.InitMarket(); err != nil {
			// Existing markets resume from the persisted ledger.
			market, getErr := engine.MarketSnapshot()
			if getErr != nil || market == nil {
				log.Error("init market", "vault", vc.ID, "error", err)
				os.Exit(1)
			}
		}
		log.Info("vault ready", "vault", engine.VaultID(), "asset", params.Asset)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, log, cfg.MetricsAddress)

	server := rpc.NewServer(log, reg, manager)
	server.SetOracle(priceOracle)
	server.SetAccessControl(access)
	log.Info("listening", "address", cfg.ListenAddress, "vaults", reg.VaultCount())
	if err := server.Serve(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}
