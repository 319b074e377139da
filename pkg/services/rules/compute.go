package rules

import (
	"fmt"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

const (
	FindingStoppedInstance   = "STOPPED_INSTANCE"
	FindingUnattachedVolume  = "UNATTACHED_VOLUME"
	FindingUnusedElasticIP   = "UNUSED_ELASTIC_IP"
	FindingIdleLoadBalancer  = "IDLE_LOAD_BALANCER"
	FindingBucketNoLifecycle = "BUCKET_WITHOUT_LIFECYCLE"
	FindingOldSnapshot       = "OLD_SNAPSHOT"
)

type stoppedInstanceRule struct {
	savings decimal.Decimal
}

func NewStoppedInstanceRule(settings Settings) Rule {
	return &stoppedInstanceRule{savings: money(settings.StoppedInstanceMonthlySavings)}
}

func (r *stoppedInstanceRule) Name() string   { return "stopped-instance" }
func (r *stoppedInstanceRule) Source() Source { return SourceInventory }
func (r *stoppedInstanceRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeCompute}
}
func (r *stoppedInstanceRule) FindingTypes(Input) []string { return []string{FindingStoppedInstance} }

func (r *stoppedInstanceRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingStoppedInstance)
	for _, res := range ofType(in.Resources, domain.ResourceTypeCompute, &ev) {
		if res.State != "stopped" {
			continue
		}
		ev.add(FindingStoppedInstance, domain.Violation{
			ResourceID:              res.ResourceID,
			ResourceType:            res.ResourceType,
			Severity:                domain.SeverityMedium,
			Message:                 fmt.Sprintf("Instance %s is stopped and still pays for its attached storage", res.ResourceID),
			EstimatedMonthlySavings: r.savings,
		})
	}
	return ev
}

type unattachedVolumeRule struct {
	pricePerGB float64
}

func NewUnattachedVolumeRule(settings Settings) Rule {
	return &unattachedVolumeRule{pricePerGB: settings.VolumePricePerGB}
}

func (r *unattachedVolumeRule) Name() string   { return "unattached-volume" }
func (r *unattachedVolumeRule) Source() Source { return SourceInventory }
func (r *unattachedVolumeRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeVolume}
}
func (r *unattachedVolumeRule) FindingTypes(Input) []string { return []string{FindingUnattachedVolume} }

func (r *unattachedVolumeRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingUnattachedVolume)
	for _, res := range ofType(in.Resources, domain.ResourceTypeVolume, &ev) {
		if res.State != "available" {
			continue
		}
		// An unknown size still violates, only the estimate drops to zero.
		message := fmt.Sprintf("Volume %s is not attached to any instance", res.ResourceID)
		size, ok := res.MetadataInt(domain.MetadataSizeGB)
		if ok && size >= 0 {
			message = fmt.Sprintf("Volume %s (%d GB) is not attached to any instance", res.ResourceID, size)
		}
		ev.add(FindingUnattachedVolume, domain.Violation{
			ResourceID:              res.ResourceID,
			ResourceType:            res.ResourceType,
			Severity:                domain.SeverityMedium,
			Message:                 message,
			EstimatedMonthlySavings: perGB(max(size, 0), r.pricePerGB),
		})
	}
	return ev
}
