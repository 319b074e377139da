package rules

import (
	"fmt"
	"strings"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

// MissingTagPrefix prefixes the finding type of every required tag key.
const MissingTagPrefix = "MISSING_TAG_"

// MissingTagFindingType returns the finding type tracking resources without key.
func MissingTagFindingType(key string) string {
	return MissingTagPrefix + key
}

type missingTagRule struct{}

func NewMissingTagRule() FamilyRule {
	return &missingTagRule{}
}

func (r *missingTagRule) Name() string                         { return "missing-tag" }
func (r *missingTagRule) Source() Source                       { return SourceInventory }
func (r *missingTagRule) ResourceTypes() []domain.ResourceType { return nil }
func (r *missingTagRule) FindingTypePrefix() string            { return MissingTagPrefix }

func (r *missingTagRule) FindingTypes(in Input) []string {
	keys := requiredKeys(in.RequiredTags)
	res := make([]string, 0, len(keys))
	for _, key := range keys {
		res = append(res, MissingTagFindingType(key))
	}
	return res
}

// Evaluate produces one violating set per required key, so a resource
// missing two keys is reported under two finding types.
func (r *missingTagRule) Evaluate(in Input) Evaluation {
	keys := requiredKeys(in.RequiredTags)
	ev := newEvaluation(r.FindingTypes(in)...)
	if len(keys) == 0 {
		return ev
	}

	for _, res := range in.Resources {
		if res.ResourceID == "" {
			ev.Skipped++
			continue
		}
		for _, key := range keys {
			if res.HasTag(key) {
				continue
			}
			ev.add(MissingTagFindingType(key), domain.Violation{
				ResourceID:              res.ResourceID,
				ResourceType:            res.ResourceType,
				Severity:                domain.SeverityLow,
				Message:                 fmt.Sprintf("%s %s is missing required tag %q", res.ResourceType, res.ResourceID, key),
				EstimatedMonthlySavings: decimal.Zero,
			})
		}
	}
	return ev
}

func requiredKeys(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	res := make([]string, 0, len(tags))
	for _, t := range tags {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res = append(res, key)
	}
	return res
}
