package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lendcore/native/collateral"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
	"lendcore/native/registry"
)

// Server exposes the lending ledgers over HTTP. All state transitions route
// through the vault engines and the collateral manager; the server itself
// holds no ledger state.
type Server struct {
	log      *slog.Logger
	registry *registry.Registry
	manager  *collateral.Manager
	oracle   *oracle.Oracle
	access   *nativecommon.AccessControl
}

func NewServer(log *slog.Logger, reg *registry.Registry, manager *collateral.Manager) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, registry: reg, manager: manager}
}

// SetOracle enables the oracle admin endpoint.
func (s *Server) SetOracle(o *oracle.Oracle) { s.oracle = o }

// SetAccessControl wires the capability set checked by privileged endpoints.
func (s *Server) SetAccessControl(access *nativecommon.AccessControl) { s.access = access }

// Router assembles the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.observe)

	r.Get("/healthz", s.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/{vaultID}", s.getMarket)
		r.Get("/markets/{vaultID}/positions/{address}", s.getPosition)
		r.Get("/accounts/{address}/health", s.getAccountHealth)

		r.Post("/supply", s.supplyAsset)
		r.Post("/withdraw", s.withdrawAsset)
		r.Post("/borrow", s.borrowAsset)
		r.Post("/borrow/cross", s.borrowCross)
		r.Post("/repay", s.repayAsset)
		r.Post("/repay/cross", s.repayCross)
		r.Post("/liquidate", s.liquidatePosition)
		r.Post("/liquidate/cross", s.liquidateCross)

		r.Post("/admin/pause", s.adminPause)
		r.Post("/admin/active", s.adminActive)
		r.Post("/admin/params", s.adminParams)
		r.Post("/admin/price", s.adminPrice)
	})
	return r
}

// Serve runs the HTTP listener until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
