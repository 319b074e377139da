package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/services/audit"
	"github.com/de-tools/waste-atlas/pkg/services/config"
	inventorysvc "github.com/de-tools/waste-atlas/pkg/services/inventory"
	"github.com/de-tools/waste-atlas/pkg/services/lock"
	"github.com/de-tools/waste-atlas/pkg/services/metrics"
	"github.com/de-tools/waste-atlas/pkg/services/notify"
	"github.com/de-tools/waste-atlas/pkg/services/reconcile"
	"github.com/de-tools/waste-atlas/pkg/services/rules"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
	"github.com/de-tools/waste-atlas/pkg/services/scanner/aws"
	"github.com/de-tools/waste-atlas/pkg/services/tracing"
	"github.com/de-tools/waste-atlas/pkg/store/db"
	"github.com/de-tools/waste-atlas/pkg/store/db/findings"
	"github.com/de-tools/waste-atlas/pkg/store/db/inventory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the wired services shared by the CLI and the web API.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *sql.DB
	Clients      config.Registry
	Engine       *reconcile.Engine
	Inventory    *inventorysvc.Service
	Orchestrator *audit.Orchestrator
	Metrics      *prometheus.Registry

	closers []func() error
}

// Options override parts of the wiring, mostly for tests.
type Options struct {
	// Connector replaces the AWS connector.
	Connector scanner.Connector
	// Clients replaces the registry read from the configured clients file.
	Clients config.Registry
	// SpanProcessor receives every recorded span next to the configured exporter.
	SpanProcessor sdktrace.SpanProcessor
}

func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// New opens the database and every configured backend and wires the audit
// pipeline on top of them. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Clients = opts.Clients; a.Clients == nil {
		a.Clients, err = config.NewRegistry(cfg.ClientsFile)
		if err != nil {
			return nil, err
		}
	}

	a.DB, err = db.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)

	findingStore, err := findings.NewStore(a.DB)
	if err != nil {
		return nil, err
	}
	inventoryStore, err := inventory.NewStore(a.DB)
	if err != nil {
		return nil, err
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var processors []sdktrace.SpanProcessor
	if opts.SpanProcessor != nil {
		processors = append(processors, opts.SpanProcessor)
	}
	tracerProvider, err := tracing.NewProvider(ctx, cfg.Tracing, processors...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracerProvider.Shutdown(shutdownCtx)
	})
	if cfg.Tracing.Endpoint != "" {
		a.Logger.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("exporting traces")
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher()
	if err != nil {
		return nil, err
	}

	a.Engine, err = reconcile.NewEngine(findingStore,
		reconcile.WithLocker(locker),
		reconcile.WithPublisher(publisher),
		reconcile.WithMetrics(m),
		reconcile.WithSettings(cfg.Reconcile),
	)
	if err != nil {
		return nil, err
	}

	a.Inventory, err = inventorysvc.NewService(inventoryStore, cfg.Inventory, m)
	if err != nil {
		return nil, err
	}

	ruleRegistry, err := rules.NewRegistry(rules.DefaultRules(cfg.Rules)...)
	if err != nil {
		return nil, err
	}

	connector := opts.Connector
	if connector == nil {
		connector = aws.NewConnector(cfg.AWS)
	}

	a.Orchestrator, err = audit.NewOrchestrator(audit.Dependencies{
		Connector: connector,
		Rules:     ruleRegistry,
		Engine:    a.Engine,
		Inventory: a.Inventory,
		Policies:  a.Clients,
		Metrics:   m,
		Tracer:    tracerProvider.Tracer(audit.TracerName),
	}, cfg.Audit)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Lock.Backend != config.LockBackendRedis {
		return lock.NewLocalLocker(), nil
	}

	client, err := lock.DialRedis(ctx, a.Config.Lock.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.Logger.Info().Str("addr", a.Config.Lock.Redis.Addr).Msg("using redis reconcile locks")
	return lock.NewRedisLocker(client, a.Config.Lock.Redis), nil
}

func (a *App) publisher() (notify.Publisher, error) {
	if a.Config.Notify.Backend != config.NotifyBackendAMQP {
		return notify.NopPublisher{}, nil
	}

	publisher, err := notify.DialAMQP(a.Config.Notify.AMQP)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)
	a.Logger.Info().Str("exchange", a.Config.Notify.AMQP.Exchange).Msg("publishing finding events")
	return publisher, nil
}

// TokenVerifier builds the bearer token verifier from the auth settings.
func (a *App) TokenVerifier() (*auth.TokenVerifier, error) {
	return auth.NewTokenVerifier(a.Config.Auth)
}

// Close releases the backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
