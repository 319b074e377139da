package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/handlers/clients"
	atlasmiddleware "github.com/de-tools/waste-atlas/pkg/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Clients   clients.Directory
	Findings  clients.Findings
	Auditor   clients.Auditor
	Inventory clients.Inventory
	Verifier  atlasmiddleware.Verifier
	// Gatherer is exposed on /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func ConfigureRouter(config Config) *chi.Mux {
	deps := config.Dependencies
	handler := clients.NewHandler(deps.Clients, deps.Findings, deps.Auditor, deps.Inventory)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(atlasmiddleware.Logger(&deps.Logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(atlasmiddleware.Authenticate(deps.Verifier))

		r.With(atlasmiddleware.Require(auth.CapClientsRead)).Get("/clients", handler.ListClients)

		r.Route("/clients/{client}", func(r chi.Router) {
			r.Use(atlasmiddleware.ClientScope)

			r.With(atlasmiddleware.Require(auth.CapFindingsRead)).
				Get("/findings", handler.ListFindings)
			r.With(atlasmiddleware.Require(auth.CapFindingsResolve)).
				Post("/findings/{id}/resolve", handler.ResolveFinding)
			r.With(atlasmiddleware.Require(auth.CapAuditsRun)).
				Post("/audits", handler.RunAudit)
			r.With(atlasmiddleware.Require(auth.CapInventorySweep)).
				Post("/inventory/sweep", handler.SweepInventory)
			r.With(atlasmiddleware.Require(auth.CapInventoryRead)).
				Get("/resources", handler.ListResources)
		})
	})

	return router
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	config.Dependencies.Logger = logger
	router := ConfigureRouter(config)

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
