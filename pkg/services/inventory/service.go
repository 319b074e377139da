package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/de-tools/waste-atlas/pkg/adapters"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/metrics"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
	"github.com/de-tools/waste-atlas/pkg/store/db/inventory"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Settings struct {
	// Concurrency bounds the scanners running at the same time during a sweep (default: 4)
	Concurrency int `mapstructure:"concurrency" validate:"gte=1"`
}

func DefaultSettings() Settings {
	return Settings{Concurrency: 4}
}

// Service keeps the inventory store in line with what the provider reports.
type Service struct {
	store    inventory.Store
	settings Settings
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store inventory.Store, settings Settings, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory store is nil")
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = DefaultSettings().Concurrency
	}
	return &Service{
		store:    store,
		settings: settings,
		metrics:  m,
		now:      time.Now,
	}, nil
}

type scan struct {
	result scanner.Result
	err    error
}

// Sweep runs every scanner of the registry and replaces the active set of
// each resource type that scanned cleanly. A type with a failing scanner keeps
// its previous rows untouched. Sweep only returns an error when ctx is done.
func (s *Service) Sweep(
	ctx context.Context,
	clientID, accountID string,
	reg *scanner.Registry,
) (domain.SweepResult, error) {
	if clientID == "" || accountID == "" {
		return domain.SweepResult{}, fmt.Errorf("client id and account id are required")
	}

	logger := zerolog.Ctx(ctx).With().
		Str("client_id", clientID).
		Str("account_id", accountID).
		Logger()

	types := reg.ResourceTypes()
	scans := make(map[domain.ResourceType][]scan, len(types))
	for _, rt := range types {
		scans[rt] = make([]scan, len(reg.Scanners(rt)))
	}

	var g errgroup.Group
	g.SetLimit(s.settings.Concurrency)
	for _, rt := range types {
		for i, sc := range reg.Scanners(rt) {
			slot := &scans[rt][i]
			g.Go(func() error {
				slot.result, slot.err = reg.Run(ctx, sc)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.SweepResult{}, fmt.Errorf("sweep canceled: %w", err)
	}

	res := domain.SweepResult{ClientID: clientID, AccountID: accountID}
	now := s.now().UTC()
	for _, rt := range types {
		outcome := s.apply(ctx, clientID, accountID, rt, scans[rt], now)
		if outcome.Error != "" {
			logger.Error().Str("resource_type", string(rt)).Str("error", outcome.Error).Msg("resource type not swept")
		} else {
			s.metrics.InventoryObserved(rt, outcome.Observed)
		}
		res.Observed += outcome.Observed
		res.Skipped += outcome.Skipped
		res.Types = append(res.Types, outcome)
	}

	logger.Info().
		Int("observed", res.Observed).
		Int("skipped", res.Skipped).
		Int("failed_types", res.Failed()).
		Msg("inventory sweep finished")

	return res, nil
}

func (s *Service) apply(
	ctx context.Context,
	clientID, accountID string,
	rt domain.ResourceType,
	scans []scan,
	now time.Time,
) domain.SweepTypeOutcome {
	outcome := domain.SweepTypeOutcome{ResourceType: rt}

	var resources []domain.Resource
	for _, sc := range scans {
		if sc.err != nil {
			outcome.Error = sc.err.Error()
			return outcome
		}
		resources = append(resources, sc.result.Resources...)
		outcome.Skipped += sc.result.Skipped
	}

	err := s.store.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.Deactivate(ctx, clientID, accountID, string(rt)); err != nil {
			return err
		}
		for _, r := range resources {
			if r.ResourceID == "" {
				outcome.Skipped++
				continue
			}
			r.ClientID = clientID
			r.AccountID = accountID
			r.ResourceType = rt
			r.DetectedAt = now
			r.LastSeenAt = now
			r.IsActive = true
			if err := s.store.Upsert(ctx, adapters.MapResourceDomainToStore(r)); err != nil {
				return err
			}
			outcome.Observed++
		}
		return nil
	})
	if err != nil {
		return domain.SweepTypeOutcome{ResourceType: rt, Error: fmt.Sprintf("persist %s: %v", rt, err)}
	}
	return outcome
}

func (s *Service) ListActive(ctx context.Context, clientID string, filter domain.ResourceFilter) ([]domain.Resource, error) {
	rows, err := s.store.ListActive(ctx, clientID, adapters.MapResourceFilterDomainToStore(filter))
	if err != nil {
		return nil, err
	}

	res := make([]domain.Resource, 0, len(rows))
	for _, row := range rows {
		res = append(res, adapters.MapResourceStoreToDomain(row))
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, clientID, resourceID string) (domain.Resource, error) {
	row, err := s.store.Get(ctx, clientID, resourceID)
	if err != nil {
		return domain.Resource{}, err
	}
	return adapters.MapResourceStoreToDomain(*row), nil
}
