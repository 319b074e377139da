package rules

import (
	"testing"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ids(vs []domain.Violation) []string {
	res := make([]string, 0, len(vs))
	for _, v := range vs {
		res = append(res, v.ResourceID)
	}
	return res
}

func TestSingleTypeRules(t *testing.T) {
	settings := DefaultSettings()

	tests := []struct {
		name        string
		rule        Rule
		findingType string
		resources   []domain.Resource
		violating   []string
		skipped     int
		savings     map[string]string
	}{
		{
			name:        "stopped instance",
			rule:        NewStoppedInstanceRule(settings),
			findingType: FindingStoppedInstance,
			resources: []domain.Resource{
				{ResourceID: "i-1", ResourceType: domain.ResourceTypeCompute, State: "stopped"},
				{ResourceID: "i-2", ResourceType: domain.ResourceTypeCompute, State: "running"},
				{ResourceID: "vol-1", ResourceType: domain.ResourceTypeVolume, State: "stopped"},
				{ResourceID: "", ResourceType: domain.ResourceTypeCompute, State: "stopped"},
			},
			violating: []string{"i-1"},
			skipped:   1,
			savings:   map[string]string{"i-1": "10"},
		},
		{
			name:        "unattached volume",
			rule:        NewUnattachedVolumeRule(settings),
			findingType: FindingUnattachedVolume,
			resources: []domain.Resource{
				{ResourceID: "vol-1", ResourceType: domain.ResourceTypeVolume, State: "available",
					Metadata: map[string]any{domain.MetadataSizeGB: int64(100)}},
				{ResourceID: "vol-2", ResourceType: domain.ResourceTypeVolume, State: "in-use",
					Metadata: map[string]any{domain.MetadataSizeGB: int64(8)}},
				{ResourceID: "", ResourceType: domain.ResourceTypeVolume, State: "available"},
			},
			violating: []string{"vol-1"},
			skipped:   1,
			savings:   map[string]string{"vol-1": "8"},
		},
		{
			name:        "unattached volume without size",
			rule:        NewUnattachedVolumeRule(settings),
			findingType: FindingUnattachedVolume,
			resources: []domain.Resource{
				{ResourceID: "vol-3", ResourceType: domain.ResourceTypeVolume, State: "available"},
				{ResourceID: "vol-4", ResourceType: domain.ResourceTypeVolume, State: "available",
					Metadata: map[string]any{domain.MetadataSizeGB: "unknown"}},
				{ResourceID: "vol-5", ResourceType: domain.ResourceTypeVolume, State: "available",
					Metadata: map[string]any{domain.MetadataSizeGB: int64(-1)}},
			},
			violating: []string{"vol-3", "vol-4", "vol-5"},
			savings:   map[string]string{"vol-3": "0", "vol-4": "0", "vol-5": "0"},
		},
		{
			name:        "unused elastic ip",
			rule:        NewUnusedElasticIPRule(settings),
			findingType: FindingUnusedElasticIP,
			resources: []domain.Resource{
				{ResourceID: "eip-1", ResourceType: domain.ResourceTypeElasticIP,
					Metadata: map[string]any{domain.MetadataAssociationID: ""}},
				{ResourceID: "eip-2", ResourceType: domain.ResourceTypeElasticIP},
				{ResourceID: "eip-3", ResourceType: domain.ResourceTypeElasticIP,
					Metadata: map[string]any{domain.MetadataAssociationID: "eipassoc-3"}},
			},
			violating: []string{"eip-1", "eip-2"},
			savings:   map[string]string{"eip-1": "3.6"},
		},
		{
			name:        "idle load balancer",
			rule:        NewIdleLoadBalancerRule(settings),
			findingType: FindingIdleLoadBalancer,
			resources: []domain.Resource{
				{ResourceID: "lb-1", ResourceType: domain.ResourceTypeLoadBalancer,
					Metadata: map[string]any{domain.MetadataTargetGroupCount: float64(0)}},
				{ResourceID: "lb-2", ResourceType: domain.ResourceTypeLoadBalancer,
					Metadata: map[string]any{domain.MetadataTargetGroupCount: int64(3)}},
				{ResourceID: "lb-3", ResourceType: domain.ResourceTypeLoadBalancer},
			},
			violating: []string{"lb-1"},
			skipped:   1,
			savings:   map[string]string{"lb-1": "16.2"},
		},
		{
			name:        "bucket without lifecycle",
			rule:        NewBucketWithoutLifecycleRule(),
			findingType: FindingBucketNoLifecycle,
			resources: []domain.Resource{
				{ResourceID: "logs", ResourceType: domain.ResourceTypeBucket,
					Metadata: map[string]any{domain.MetadataLifecycleRuleCount: int64(0)}},
				{ResourceID: "archive", ResourceType: domain.ResourceTypeBucket,
					Metadata: map[string]any{domain.MetadataLifecycleRuleCount: int64(2)}},
			},
			violating: []string{"logs"},
			savings:   map[string]string{"logs": "0"},
		},
		{
			name:        "old snapshot",
			rule:        NewOldSnapshotRule(settings),
			findingType: FindingOldSnapshot,
			resources: []domain.Resource{
				{ResourceID: "snap-old", ResourceType: domain.ResourceTypeSnapshot,
					Metadata: map[string]any{
						domain.MetadataStartTime: now.AddDate(0, 0, -45),
						domain.MetadataSizeGB:    int64(20),
					}},
				{ResourceID: "snap-new", ResourceType: domain.ResourceTypeSnapshot,
					Metadata: map[string]any{domain.MetadataStartTime: now.AddDate(0, 0, -3).Format(time.RFC3339Nano)}},
				{ResourceID: "snap-bad", ResourceType: domain.ResourceTypeSnapshot,
					Metadata: map[string]any{domain.MetadataStartTime: "yesterday"}},
			},
			violating: []string{"snap-old"},
			skipped:   1,
			savings:   map[string]string{"snap-old": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{ClientID: "acme", Resources: tt.resources, Now: now}
			assert.Equal(t, []string{tt.findingType}, tt.rule.FindingTypes(in))

			ev := tt.rule.Evaluate(in)
			require.Contains(t, ev.Violations, tt.findingType)
			assert.ElementsMatch(t, tt.violating, ids(ev.Violations[tt.findingType]))
			assert.Equal(t, tt.skipped, ev.Skipped)

			for _, v := range ev.Violations[tt.findingType] {
				assert.NotEmpty(t, v.Message)
				if want, ok := tt.savings[v.ResourceID]; ok {
					assert.True(t, decimal.RequireFromString(want).Equal(v.EstimatedMonthlySavings),
						"savings for %s: got %s", v.ResourceID, v.EstimatedMonthlySavings)
				}
			}
		})
	}
}

func TestRules_EmptyInputKeepsFindingType(t *testing.T) {
	for _, rule := range DefaultRules(DefaultSettings()) {
		t.Run(rule.Name(), func(t *testing.T) {
			in := Input{RequiredTags: []string{"Owner"}, Now: now}
			ev := rule.Evaluate(in)
			for _, ft := range rule.FindingTypes(in) {
				v, ok := ev.Violations[ft]
				assert.True(t, ok, ft)
				assert.Empty(t, v)
			}
		})
	}
}

func TestOldSnapshotRule_Threshold(t *testing.T) {
	settings := DefaultSettings()
	settings.SnapshotMaxAgeDays = 7
	rule := NewOldSnapshotRule(settings)

	ev := rule.Evaluate(Input{
		Now: now,
		Resources: []domain.Resource{
			{ResourceID: "snap-1", ResourceType: domain.ResourceTypeSnapshot,
				Metadata: map[string]any{domain.MetadataStartTime: now.AddDate(0, 0, -10)}},
		},
	})
	assert.Equal(t, []string{"snap-1"}, ids(ev.Violations[FindingOldSnapshot]))
}

func TestMissingTagRule(t *testing.T) {
	rule := NewMissingTagRule()
	assert.Equal(t, MissingTagPrefix, rule.FindingTypePrefix())

	resources := []domain.Resource{
		{ResourceID: "i-1", ResourceType: domain.ResourceTypeCompute, Tags: map[string]string{}},
		{ResourceID: "i-2", ResourceType: domain.ResourceTypeCompute, Tags: map[string]string{"Owner": "data"}},
		{ResourceID: "logs", ResourceType: domain.ResourceTypeBucket,
			Tags: map[string]string{"Owner": "ops", "CostCenter": "42"}},
	}

	t.Run("one finding type per required key", func(t *testing.T) {
		in := Input{RequiredTags: []string{"Owner", " CostCenter ", "Owner", ""}, Resources: resources}
		assert.Equal(t, []string{"MISSING_TAG_Owner", "MISSING_TAG_CostCenter"}, rule.FindingTypes(in))

		ev := rule.Evaluate(in)
		assert.ElementsMatch(t, []string{"i-1"}, ids(ev.Violations["MISSING_TAG_Owner"]))
		assert.ElementsMatch(t, []string{"i-1", "i-2"}, ids(ev.Violations["MISSING_TAG_CostCenter"]))
	})

	t.Run("adding a tag clears only its finding type", func(t *testing.T) {
		tagged := []domain.Resource{
			{ResourceID: "i-1", ResourceType: domain.ResourceTypeCompute, Tags: map[string]string{"Owner": "data"}},
		}
		ev := rule.Evaluate(Input{RequiredTags: []string{"Owner", "CostCenter"}, Resources: tagged})
		assert.Empty(t, ev.Violations["MISSING_TAG_Owner"])
		assert.Equal(t, []string{"i-1"}, ids(ev.Violations["MISSING_TAG_CostCenter"]))
	})

	t.Run("no required tags", func(t *testing.T) {
		ev := rule.Evaluate(Input{Resources: resources})
		assert.Empty(t, ev.Violations)
		assert.Empty(t, rule.FindingTypes(Input{}))
	})
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(DefaultRules(DefaultSettings())...)
	require.NoError(t, err)

	rules := reg.Rules()
	require.Len(t, rules, 7)
	assert.Equal(t, "bucket-without-lifecycle", rules[0].Name())

	_, ok := reg.Get("old-snapshot")
	assert.True(t, ok)

	err = reg.Register(NewMissingTagRule())
	assert.ErrorContains(t, err, "already registered")

	_, err = NewRegistry()
	assert.ErrorContains(t, err, "at least one rule")
}
