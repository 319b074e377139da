package audit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/inventory"
	"github.com/de-tools/waste-atlas/pkg/services/metrics"
	"github.com/de-tools/waste-atlas/pkg/services/reconcile"
	"github.com/de-tools/waste-atlas/pkg/services/rules"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// TracerName names the tracer audit spans are recorded with.
const TracerName = "github.com/de-tools/waste-atlas/pkg/services/audit"

type Settings struct {
	// RuleConcurrency bounds the rules evaluated at the same time (default: 4)
	RuleConcurrency int `mapstructure:"rule_concurrency" validate:"gte=1"`
	// SweepBeforeAudit refreshes the inventory before inventory backed rules run (default: true)
	SweepBeforeAudit bool `mapstructure:"sweep_before_audit"`
}

func DefaultSettings() Settings {
	return Settings{
		RuleConcurrency:  4,
		SweepBeforeAudit: true,
	}
}

// TagPolicy supplies the tag keys every resource of a client must carry.
type TagPolicy interface {
	RequiredTags(clientID string) []string
}

type Dependencies struct {
	Connector scanner.Connector
	Rules     *rules.Registry
	Engine    *reconcile.Engine
	Inventory *inventory.Service
	Policies  TagPolicy
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
}

type Orchestrator struct {
	deps     Dependencies
	settings Settings
	now      func() time.Time
}

func NewOrchestrator(deps Dependencies, settings Settings) (*Orchestrator, error) {
	switch {
	case deps.Connector == nil:
		return nil, fmt.Errorf("connector is required")
	case deps.Rules == nil:
		return nil, fmt.Errorf("rule registry is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("reconciliation engine is required")
	case deps.Inventory == nil:
		return nil, fmt.Errorf("inventory service is required")
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(TracerName)
	}
	if settings.RuleConcurrency < 1 {
		settings.RuleConcurrency = DefaultSettings().RuleConcurrency
	}
	return &Orchestrator{deps: deps, settings: settings, now: time.Now}, nil
}

// RunAudit evaluates and reconciles every registered rule for one account.
// Failures past the connection step are recorded per rule and never abort the
// run; the returned error is reserved for invalid arguments.
func (o *Orchestrator) RunAudit(ctx context.Context, clientID string, account domain.Account) (domain.AuditResult, error) {
	if clientID == "" || account.ID == "" {
		return domain.AuditResult{}, fmt.Errorf("client id and account id are required")
	}

	ctx, span := o.deps.Tracer.Start(ctx, "audit.run", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("account_id", account.ID),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().
		Str("client_id", clientID).
		Str("account_id", account.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	result := domain.AuditResult{
		ClientID:             clientID,
		AccountID:            account.ID,
		StartedAt:            o.now().UTC(),
		Rules:                []domain.RuleOutcome{},
		ActiveMonthlySavings: decimal.Zero,
	}
	finish := func() domain.AuditResult {
		result.FinishedAt = o.now().UTC()
		o.deps.Metrics.AuditFinished(result.Status, result.FinishedAt.Sub(result.StartedAt))
		span.SetAttributes(attribute.String("status", string(result.Status)))
		logger.Info().
			Str("status", string(result.Status)).
			Int("created", result.FindingsCreated).
			Int("resolved", result.FindingsResolved).
			Msg("audit finished")
		return result
	}

	reg, err := o.deps.Connector.Connect(ctx, account)
	if err != nil {
		if errors.Is(err, domain.ErrCredentials) {
			logger.Error().Err(err).Msg("account credentials rejected")
		} else {
			logger.Error().Err(err).Msg("failed to connect to account")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect")
		result.Status = domain.AuditStatusError
		result.Error = err.Error()
		return finish(), nil
	}

	if o.settings.SweepBeforeAudit {
		sweep, err := o.deps.Inventory.Sweep(ctx, clientID, account.ID, reg)
		if err != nil {
			span.RecordError(err)
			result.Status = domain.AuditStatusError
			result.Error = err.Error()
			return finish(), nil
		}
		result.Sweep = &sweep
	}
	unswept := unsweptTypes(result.Sweep)

	var requiredTags []string
	if o.deps.Policies != nil {
		requiredTags = o.deps.Policies.RequiredTags(clientID)
	}

	now := o.now().UTC()
	registered := o.deps.Rules.Rules()
	outcomes := make([]domain.RuleOutcome, len(registered))

	var g errgroup.Group
	g.SetLimit(o.settings.RuleConcurrency)
	for i, rule := range registered {
		g.Go(func() error {
			outcomes[i] = o.runRule(ctx, rule, reg, unswept, rules.Input{
				ClientID:     clientID,
				AccountID:    account.ID,
				RequiredTags: requiredTags,
				Now:          now,
			})
			return nil
		})
	}
	_ = g.Wait()

	result.Status = domain.AuditStatusSuccess
	for _, outcome := range outcomes {
		result.FindingsCreated += outcome.Created
		result.FindingsResolved += outcome.Resolved
		if outcome.Failed() {
			result.Status = domain.AuditStatusPartial
		}
	}
	result.Rules = outcomes

	savings, err := o.deps.Engine.ActiveMonthlySavings(ctx, clientID, account.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to sum active savings")
	} else {
		result.ActiveMonthlySavings = savings
	}

	if result.Status == domain.AuditStatusPartial {
		span.SetStatus(codes.Error, "rule failures")
	}
	return finish(), nil
}

func (o *Orchestrator) runRule(
	ctx context.Context,
	rule rules.Rule,
	reg *scanner.Registry,
	unswept map[domain.ResourceType]string,
	in rules.Input,
) domain.RuleOutcome {
	ctx, span := o.deps.Tracer.Start(ctx, "audit.rule", trace.WithAttributes(
		attribute.String("rule", rule.Name()),
		attribute.String("source", string(rule.Source())),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str("rule", rule.Name()).Logger()
	outcome := domain.RuleOutcome{Rule: rule.Name()}

	fail := func(err error) domain.RuleOutcome {
		logger.Error().Err(err).Msg("rule failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule failed")
		o.deps.Metrics.RuleFailed(rule.Name())
		outcome.Error = err.Error()
		return outcome
	}

	if rule.Source() == rules.SourceInventory {
		if err := staleInventory(rule, unswept); err != nil {
			return fail(err)
		}
	}

	resources, scanSkipped, err := o.resources(ctx, rule, reg, in)
	if err != nil {
		return fail(err)
	}
	in.Resources = resources

	ev := rule.Evaluate(in)
	outcome.Skipped = ev.Skipped + scanSkipped
	o.deps.Metrics.Skipped(rule.Name(), outcome.Skipped)

	findingTypes := rule.FindingTypes(in)
	if family, ok := rule.(rules.FamilyRule); ok {
		stale, err := o.deps.Engine.ActiveFindingTypes(ctx, in.ClientID, in.AccountID, family.FindingTypePrefix())
		if err != nil {
			return fail(fmt.Errorf("list active %s findings: %w", family.FindingTypePrefix(), err))
		}
		for _, ft := range stale {
			if !slices.Contains(findingTypes, ft) {
				findingTypes = append(findingTypes, ft)
			}
		}
	}
	outcome.FindingTypes = findingTypes

	var errs []error
	for _, ft := range findingTypes {
		res, err := o.deps.Engine.Reconcile(ctx, reconcile.Request{
			ClientID:    in.ClientID,
			AccountID:   in.AccountID,
			FindingType: ft,
			Violations:  ev.Violations[ft],
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcome.Created += res.CreatedCount()
		outcome.Resolved += res.Resolved
	}
	if err := errors.Join(errs...); err != nil {
		return fail(err)
	}

	span.SetAttributes(
		attribute.Int("created", outcome.Created),
		attribute.Int("resolved", outcome.Resolved),
	)
	return outcome
}

// resources loads the rule input from the inventory store or from a fresh
// scan, depending on the rule source.
func (o *Orchestrator) resources(
	ctx context.Context,
	rule rules.Rule,
	reg *scanner.Registry,
	in rules.Input,
) ([]domain.Resource, int, error) {
	types := rule.ResourceTypes()

	if rule.Source() == rules.SourceInventory {
		res, err := o.deps.Inventory.ListActive(ctx, in.ClientID, domain.ResourceFilter{
			AccountID:     in.AccountID,
			ResourceTypes: types,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("load inventory: %w", err)
		}
		return res, 0, nil
	}

	if len(types) == 0 {
		types = reg.ResourceTypes()
	}

	var (
		resources []domain.Resource
		skipped   int
	)
	for _, rt := range types {
		res, err := reg.Scan(ctx, rt)
		if err != nil {
			return nil, 0, err
		}
		for _, r := range res.Resources {
			r.ClientID = in.ClientID
			r.AccountID = in.AccountID
			resources = append(resources, r)
		}
		skipped += res.Skipped
	}
	return resources, skipped, nil
}

// SweepInventory connects to the account and refreshes its inventory without
// evaluating rules.
func (o *Orchestrator) SweepInventory(ctx context.Context, clientID string, account domain.Account) (domain.SweepResult, error) {
	if clientID == "" || account.ID == "" {
		return domain.SweepResult{}, fmt.Errorf("client id and account id are required")
	}

	ctx, span := o.deps.Tracer.Start(ctx, "inventory.sweep", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("account_id", account.ID),
	))
	defer span.End()

	reg, err := o.deps.Connector.Connect(ctx, account)
	if err != nil {
		span.RecordError(err)
		return domain.SweepResult{}, fmt.Errorf("connect to account %s: %w", account.ID, err)
	}
	return o.deps.Inventory.Sweep(ctx, clientID, account.ID, reg)
}

func unsweptTypes(sweep *domain.SweepResult) map[domain.ResourceType]string {
	if sweep == nil {
		return nil
	}
	unswept := make(map[domain.ResourceType]string)
	for _, t := range sweep.Types {
		if t.Error != "" {
			unswept[t.ResourceType] = t.Error
		}
	}
	return unswept
}

// staleInventory fails an inventory backed rule when one of its resource types
// could not be swept in this run. A rule without resource types reads every
// type.
func staleInventory(rule rules.Rule, unswept map[domain.ResourceType]string) error {
	if len(unswept) == 0 {
		return nil
	}
	types := rule.ResourceTypes()
	if len(types) == 0 {
		types = slices.Sorted(maps.Keys(unswept))
	}
	for _, rt := range types {
		if msg, ok := unswept[rt]; ok {
			return fmt.Errorf("inventory for %s not refreshed: %s: %w", rt, msg, domain.ErrProvider)
		}
	}
	return nil
}
