package rules

import (
	"fmt"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

type bucketWithoutLifecycleRule struct{}

func NewBucketWithoutLifecycleRule() Rule {
	return &bucketWithoutLifecycleRule{}
}

func (r *bucketWithoutLifecycleRule) Name() string   { return "bucket-without-lifecycle" }
func (r *bucketWithoutLifecycleRule) Source() Source { return SourceLive }
func (r *bucketWithoutLifecycleRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeBucket}
}
func (r *bucketWithoutLifecycleRule) FindingTypes(Input) []string {
	return []string{FindingBucketNoLifecycle}
}

func (r *bucketWithoutLifecycleRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingBucketNoLifecycle)
	for _, res := range ofType(in.Resources, domain.ResourceTypeBucket, &ev) {
		count, ok := res.MetadataInt(domain.MetadataLifecycleRuleCount)
		if !ok {
			ev.Skipped++
			continue
		}
		if count > 0 {
			continue
		}
		ev.add(FindingBucketNoLifecycle, domain.Violation{
			ResourceID:              res.ResourceID,
			ResourceType:            res.ResourceType,
			Severity:                domain.SeverityLow,
			Message:                 fmt.Sprintf("Bucket %s has no lifecycle rules", res.ResourceID),
			EstimatedMonthlySavings: decimal.Zero,
		})
	}
	return ev
}

type oldSnapshotRule struct {
	maxAge     time.Duration
	pricePerGB float64
}

func NewOldSnapshotRule(settings Settings) Rule {
	return &oldSnapshotRule{
		maxAge:     time.Duration(settings.SnapshotMaxAgeDays) * 24 * time.Hour,
		pricePerGB: settings.SnapshotPricePerGB,
	}
}

func (r *oldSnapshotRule) Name() string   { return "old-snapshot" }
func (r *oldSnapshotRule) Source() Source { return SourceLive }
func (r *oldSnapshotRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeSnapshot}
}
func (r *oldSnapshotRule) FindingTypes(Input) []string { return []string{FindingOldSnapshot} }

func (r *oldSnapshotRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingOldSnapshot)
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	for _, res := range ofType(in.Resources, domain.ResourceTypeSnapshot, &ev) {
		started, ok := res.MetadataTime(domain.MetadataStartTime)
		if !ok {
			ev.Skipped++
			continue
		}
		age := now.Sub(started)
		if age <= r.maxAge {
			continue
		}

		size, _ := res.MetadataInt(domain.MetadataSizeGB)
		ev.add(FindingOldSnapshot, domain.Violation{
			ResourceID:   res.ResourceID,
			ResourceType: res.ResourceType,
			Severity:     domain.SeverityLow,
			Message: fmt.Sprintf("Snapshot %s is %d days old (threshold %d days)",
				res.ResourceID, int(age.Hours()/24), int(r.maxAge.Hours()/24)),
			EstimatedMonthlySavings: perGB(max(size, 0), r.pricePerGB),
		})
	}
	return ev
}
