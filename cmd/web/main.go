package main

import (
	"fmt"
	"os"

	"github.com/de-tools/waste-atlas/pkg/runtime/app"
	"github.com/de-tools/waste-atlas/pkg/server"
	"github.com/de-tools/waste-atlas/pkg/services/config"
	"github.com/de-tools/waste-atlas/pkg/services/schedule"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:          "web",
		Short:        "Start the web server for Waste Atlas",
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the configuration file (default is ./waste-atlas.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel, os.Stdout)
	ctx := logger.WithContext(cmd.Context())

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	verifier, err := a.TokenVerifier()
	if err != nil {
		return fmt.Errorf("web API needs auth.secret: %w", err)
	}

	clients, err := a.Clients.ListClients(ctx)
	if err != nil {
		return err
	}
	logger.Info().Msgf("Client registry `%s` loaded with %d clients", cfg.ClientsFile, len(clients))

	if cfg.Schedule.Enabled() {
		scheduler := schedule.NewController(a.Clients, a.Orchestrator, cfg.Schedule)
		if err := scheduler.Init(ctx); err != nil {
			return fmt.Errorf("failed to start scheduled jobs: %w", err)
		}
		defer scheduler.Stop()
		logger.Info().
			Dur("audit_interval", cfg.Schedule.AuditInterval).
			Dur("sweep_interval", cfg.Schedule.SweepInterval).
			Msg("scheduled jobs started")
	}

	api := server.NewWebAPI(logger, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Clients:   a.Clients,
			Findings:  a.Engine,
			Auditor:   a.Orchestrator,
			Inventory: a.Inventory,
			Verifier:  verifier,
			Gatherer:  a.Metrics,
		},
	})

	return api.Start()
}
