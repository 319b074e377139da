package rules

import (
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

// Source tells the orchestrator where a rule reads its resources from.
type Source string

const (
	// SourceInventory rules read the active rows of the inventory store.
	SourceInventory Source = "inventory"
	// SourceLive rules read fresh scanner output for their resource types.
	SourceLive Source = "live"
)

type Input struct {
	ClientID     string
	AccountID    string
	RequiredTags []string
	Resources    []domain.Resource
	Now          time.Time
}

// Evaluation holds the violating set of every finding type a rule covers.
// A finding type with no violations is present with an empty slice so the
// caller still reconciles it.
type Evaluation struct {
	Violations map[string][]domain.Violation
	Skipped    int
}

func newEvaluation(findingTypes ...string) Evaluation {
	ev := Evaluation{Violations: make(map[string][]domain.Violation, len(findingTypes))}
	for _, ft := range findingTypes {
		ev.Violations[ft] = []domain.Violation{}
	}
	return ev
}

func (e *Evaluation) add(findingType string, v domain.Violation) {
	e.Violations[findingType] = append(e.Violations[findingType], v)
}

// Rule is a pure detection policy over a set of resources.
type Rule interface {
	Name() string
	Source() Source
	// ResourceTypes returns the types the rule inspects. Nil means every type.
	ResourceTypes() []domain.ResourceType
	// FindingTypes returns the finding types evaluated for the input.
	FindingTypes(in Input) []string
	Evaluate(in Input) Evaluation
}

// FamilyRule is a rule whose finding types share a prefix and depend on
// per-client configuration. Active findings of the family whose type is no
// longer evaluated have to be resolved by the caller.
type FamilyRule interface {
	Rule
	FindingTypePrefix() string
}

// Settings holds the thresholds and savings heuristics used by the default rules.
type Settings struct {
	// StoppedInstanceMonthlySavings is the flat estimate for a stopped instance (default: 10.00)
	StoppedInstanceMonthlySavings float64 `mapstructure:"stopped_instance_monthly_savings" validate:"gte=0"`
	// VolumePricePerGB is the monthly price of one GB of unattached volume (default: 0.08)
	VolumePricePerGB float64 `mapstructure:"volume_price_per_gb" validate:"gte=0"`
	// ElasticIPMonthlyCost is the monthly cost of an idle elastic IP (default: 3.60)
	ElasticIPMonthlyCost float64 `mapstructure:"elastic_ip_monthly_cost" validate:"gte=0"`
	// LoadBalancerMonthlyCost is the monthly cost of an idle load balancer (default: 16.20)
	LoadBalancerMonthlyCost float64 `mapstructure:"load_balancer_monthly_cost" validate:"gte=0"`
	// SnapshotPricePerGB is the monthly price of one GB of snapshot storage (default: 0.05)
	SnapshotPricePerGB float64 `mapstructure:"snapshot_price_per_gb" validate:"gte=0"`
	// SnapshotMaxAgeDays is the age after which a snapshot is reported (default: 30)
	SnapshotMaxAgeDays int `mapstructure:"snapshot_max_age_days" validate:"gt=0"`
}

func DefaultSettings() Settings {
	return Settings{
		StoppedInstanceMonthlySavings: 10.00,
		VolumePricePerGB:              0.08,
		ElasticIPMonthlyCost:          3.60,
		LoadBalancerMonthlyCost:       16.20,
		SnapshotPricePerGB:            0.05,
		SnapshotMaxAgeDays:            30,
	}
}

// DefaultRules returns every built-in rule configured with the settings.
func DefaultRules(settings Settings) []Rule {
	return []Rule{
		NewStoppedInstanceRule(settings),
		NewUnattachedVolumeRule(settings),
		NewUnusedElasticIPRule(settings),
		NewIdleLoadBalancerRule(settings),
		NewBucketWithoutLifecycleRule(),
		NewOldSnapshotRule(settings),
		NewMissingTagRule(),
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func perGB(sizeGB int64, price float64) decimal.Decimal {
	return decimal.NewFromInt(sizeGB).Mul(decimal.NewFromFloat(price)).Round(2)
}

// ofType yields the resources of the given type. Resources without an id are
// counted as skipped.
func ofType(resources []domain.Resource, rt domain.ResourceType, ev *Evaluation) []domain.Resource {
	var res []domain.Resource
	for _, r := range resources {
		if r.ResourceType != rt {
			continue
		}
		if r.ResourceID == "" {
			ev.Skipped++
			continue
		}
		res = append(res, r)
	}
	return res
}
