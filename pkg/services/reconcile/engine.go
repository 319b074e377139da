package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/waste-atlas/pkg/adapters"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/lock"
	"github.com/de-tools/waste-atlas/pkg/services/metrics"
	"github.com/de-tools/waste-atlas/pkg/services/notify"
	"github.com/de-tools/waste-atlas/pkg/store/db/findings"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Settings struct {
	// MaxAttempts bounds how often a conflicting reconcile transaction is run (default: 3)
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`
	// RetryDelay is the first backoff step, doubled on every attempt (default: 50ms)
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxRetryDelay caps the backoff (default: 1s)
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:   3,
		RetryDelay:    50 * time.Millisecond,
		MaxRetryDelay: time.Second,
	}
}

func (s Settings) nextDelay(attempt int) time.Duration {
	d := s.RetryDelay << attempt
	if d > s.MaxRetryDelay {
		return s.MaxRetryDelay
	}
	return d
}

type Option func(*Engine)

func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// Engine is the only writer of finding lifecycle state.
type Engine struct {
	store     findings.Store
	locker    lock.Locker
	publisher notify.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	settings  Settings
}

func NewEngine(store findings.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("finding store is nil")
	}

	e := &Engine{
		store:     store,
		locker:    lock.NewLocalLocker(),
		publisher: notify.NopPublisher{},
		now:       time.Now,
		settings:  DefaultSettings(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.settings.MaxAttempts < 1 {
		e.settings.MaxAttempts = 1
	}
	return e, nil
}

// Request is the current violating set of one finding type for a client.
// With AccountID set, auto-resolve only touches findings of that account.
type Request struct {
	ClientID    string
	AccountID   string
	FindingType string
	Violations  []domain.Violation
}

type Result struct {
	Created   int
	Reopened  int
	Unchanged int
	Resolved  int
}

// CreatedCount counts reopened findings as created: both are a new active
// problem from the caller's point of view.
func (r Result) CreatedCount() int {
	return r.Created + r.Reopened
}

// Reconcile brings the stored findings of req.FindingType in line with the
// violating set. Runs for the same client and finding type are serialized,
// and a run that loses a uniqueness race is retried as a whole.
func (e *Engine) Reconcile(ctx context.Context, req Request) (Result, error) {
	if req.ClientID == "" {
		return Result{}, fmt.Errorf("client id is required")
	}
	if req.FindingType == "" {
		return Result{}, fmt.Errorf("finding type is required")
	}

	logger := zerolog.Ctx(ctx).With().
		Str("client_id", req.ClientID).
		Str("finding_type", req.FindingType).
		Logger()

	violations := normalize(req.Violations)

	unlock, err := e.locker.Lock(ctx, lock.Key(req.ClientID, req.FindingType))
	if err != nil {
		return Result{}, fmt.Errorf("failed to lock %s for client %s: %w", req.FindingType, req.ClientID, err)
	}
	defer unlock()

	var (
		res    Result
		events []domain.FindingEvent
	)
	for attempt := 0; ; attempt++ {
		res, events, err = e.reconcileOnce(ctx, req, violations)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt+1 >= e.settings.MaxAttempts {
			return Result{}, fmt.Errorf("reconcile %s for client %s: %w", req.FindingType, req.ClientID, err)
		}

		delay := e.settings.nextDelay(attempt)
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("reconcile conflict, retrying")
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("reconcile %s canceled: %w", req.FindingType, ctx.Err())
		case <-time.After(delay):
		}
	}

	e.metrics.Transition(req.FindingType, domain.TransitionCreated, res.Created)
	e.metrics.Transition(req.FindingType, domain.TransitionReopened, res.Reopened)
	e.metrics.Transition(req.FindingType, domain.TransitionResolved, res.Resolved)
	e.publish(ctx, events)

	logger.Debug().
		Int("created", res.Created).
		Int("reopened", res.Reopened).
		Int("unchanged", res.Unchanged).
		Int("resolved", res.Resolved).
		Msg("reconciled findings")

	return res, nil
}

func (e *Engine) reconcileOnce(
	ctx context.Context,
	req Request,
	violations []domain.Violation,
) (Result, []domain.FindingEvent, error) {
	var (
		res    Result
		events []domain.FindingEvent
		now    = e.now().UTC()
	)

	err := e.store.InTx(ctx, func(ctx context.Context) error {
		rows, err := e.store.ListByType(ctx, req.ClientID, req.FindingType)
		if err != nil {
			return err
		}

		existing := make(map[string]domain.Finding, len(rows))
		for _, row := range rows {
			existing[row.ResourceID] = adapters.MapFindingStoreToDomain(row)
		}

		violating := make(map[string]struct{}, len(violations))
		for _, v := range violations {
			violating[v.ResourceID] = struct{}{}

			current, ok := existing[v.ResourceID]
			switch {
			case !ok:
				f := domain.Finding{
					ID:                      uuid.NewString(),
					ClientID:                req.ClientID,
					AccountID:               req.AccountID,
					ResourceID:              v.ResourceID,
					ResourceType:            v.ResourceType,
					FindingType:             req.FindingType,
					Severity:                v.Severity,
					Message:                 v.Message,
					EstimatedMonthlySavings: v.EstimatedMonthlySavings,
					DetectedAt:              now,
					CreatedAt:               now,
					UpdatedAt:               now,
				}
				if err := e.store.Insert(ctx, adapters.MapFindingDomainToStore(f)); err != nil {
					return err
				}
				res.Created++
				events = append(events, domain.FindingEvent{Transition: domain.TransitionCreated, Finding: f, OccurredAt: now})

			case !current.Resolved:
				res.Unchanged++

			default:
				f := reopened(current, req.AccountID, v, now)
				if err := e.store.Reopen(ctx, adapters.MapFindingDomainToStore(f)); err != nil {
					return err
				}
				res.Reopened++
				events = append(events, domain.FindingEvent{Transition: domain.TransitionReopened, Finding: f, OccurredAt: now})
			}
		}

		for _, f := range existing {
			if f.Resolved {
				continue
			}
			if _, ok := violating[f.ResourceID]; ok {
				continue
			}
			if req.AccountID != "" && f.AccountID != req.AccountID {
				continue
			}

			ok, err := e.store.Resolve(ctx, f.ID, now, domain.SystemActor)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("finding %s changed during reconcile: %w", f.ID, domain.ErrConflict)
			}
			res.Resolved++
			events = append(events, domain.FindingEvent{Transition: domain.TransitionResolved, Finding: resolved(f, domain.SystemActor, now), OccurredAt: now})
		}
		return nil
	})
	if err != nil {
		return Result{}, nil, err
	}
	return res, events, nil
}

// ReconcileIDs reconciles a violating set of one resource type that shares one
// severity, message and savings value. It returns the number of created and
// reopened findings.
func (e *Engine) ReconcileIDs(
	ctx context.Context,
	clientID, accountID, findingType string,
	resourceType domain.ResourceType,
	resourceIDs []string,
	severity domain.Severity,
	message string,
	savings decimal.Decimal,
) (int, error) {
	violations := make([]domain.Violation, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		violations = append(violations, domain.Violation{
			ResourceID:              id,
			ResourceType:            resourceType,
			Severity:                severity,
			Message:                 message,
			EstimatedMonthlySavings: savings,
		})
	}

	res, err := e.Reconcile(ctx, Request{
		ClientID:    clientID,
		AccountID:   accountID,
		FindingType: findingType,
		Violations:  violations,
	})
	if err != nil {
		return 0, err
	}
	return res.CreatedCount(), nil
}

// ResolveFinding closes one finding on behalf of actor. Resolving an already
// resolved finding returns it unchanged.
func (e *Engine) ResolveFinding(ctx context.Context, clientID, findingID, actor string) (domain.Finding, error) {
	if actor == "" {
		return domain.Finding{}, fmt.Errorf("actor is required")
	}

	row, err := e.store.Get(ctx, clientID, findingID)
	if err != nil {
		return domain.Finding{}, err
	}

	unlock, err := e.locker.Lock(ctx, lock.Key(clientID, row.FindingType))
	if err != nil {
		return domain.Finding{}, fmt.Errorf("failed to lock %s for client %s: %w", row.FindingType, clientID, err)
	}
	defer unlock()

	var (
		f       domain.Finding
		changed bool
	)
	err = e.store.InTx(ctx, func(ctx context.Context) error {
		current, err := e.store.Get(ctx, clientID, findingID)
		if err != nil {
			return err
		}
		f = adapters.MapFindingStoreToDomain(*current)
		if f.Resolved {
			return nil
		}

		now := e.now().UTC()
		changed, err = e.store.Resolve(ctx, f.ID, now, actor)
		if err != nil {
			return err
		}
		if changed {
			f = resolved(f, actor, now)
		}
		return nil
	})
	if err != nil {
		return domain.Finding{}, err
	}

	if changed {
		e.metrics.Transition(f.FindingType, domain.TransitionResolved, 1)
		e.publish(ctx, []domain.FindingEvent{{Transition: domain.TransitionResolved, Finding: f, OccurredAt: *f.ResolvedAt}})
		zerolog.Ctx(ctx).Info().
			Str("client_id", clientID).
			Str("finding_id", f.ID).
			Str("actor", actor).
			Msg("finding resolved manually")
	}
	return f, nil
}

// ListActiveFindings returns active findings ordered by severity, highest
// first, then by detection time.
func (e *Engine) ListActiveFindings(ctx context.Context, clientID string, filter domain.FindingFilter) ([]domain.Finding, error) {
	rows, err := e.store.ListActive(ctx, clientID, adapters.MapFindingFilterDomainToStore(filter))
	if err != nil {
		return nil, err
	}

	res := make([]domain.Finding, 0, len(rows))
	for _, row := range rows {
		res = append(res, adapters.MapFindingStoreToDomain(row))
	}
	return res, nil
}

// ActiveFindingTypes lists the finding types with active findings that start
// with prefix. An empty accountID covers every account of the client.
func (e *Engine) ActiveFindingTypes(ctx context.Context, clientID, accountID, prefix string) ([]string, error) {
	return e.store.ListActiveTypes(ctx, clientID, accountID, prefix)
}

// ActiveMonthlySavings sums the estimated savings of the active findings.
func (e *Engine) ActiveMonthlySavings(ctx context.Context, clientID, accountID string) (decimal.Decimal, error) {
	active, err := e.ListActiveFindings(ctx, clientID, domain.FindingFilter{AccountID: accountID})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, f := range active {
		total = total.Add(f.EstimatedMonthlySavings)
	}
	return total, nil
}

func (e *Engine) publish(ctx context.Context, events []domain.FindingEvent) {
	if len(events) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("events", len(events)).Msg("failed to publish finding events")
	}
}

// normalize collapses duplicate resource ids, keeping the last violation
// reported for each, and clamps negative savings to zero.
func normalize(violations []domain.Violation) []domain.Violation {
	index := make(map[string]int, len(violations))
	res := make([]domain.Violation, 0, len(violations))
	for _, v := range violations {
		if v.ResourceID == "" {
			continue
		}
		if v.EstimatedMonthlySavings.IsNegative() {
			v.EstimatedMonthlySavings = decimal.Zero
		}
		if i, ok := index[v.ResourceID]; ok {
			res[i] = v
			continue
		}
		index[v.ResourceID] = len(res)
		res = append(res, v)
	}
	return res
}

func reopened(f domain.Finding, accountID string, v domain.Violation, now time.Time) domain.Finding {
	if accountID != "" {
		f.AccountID = accountID
	}
	if v.ResourceType != "" {
		f.ResourceType = v.ResourceType
	}
	f.Severity = v.Severity
	f.Message = v.Message
	f.EstimatedMonthlySavings = v.EstimatedMonthlySavings
	f.Resolved = false
	f.ResolvedAt = nil
	f.ResolvedBy = ""
	f.ReopenCount++
	f.DetectedAt = now
	f.UpdatedAt = now
	return f
}

func resolved(f domain.Finding, actor string, now time.Time) domain.Finding {
	f.Resolved = true
	f.ResolvedAt = &now
	f.ResolvedBy = actor
	f.UpdatedAt = now
	return f
}
