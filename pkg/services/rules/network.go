package rules

import (
	"fmt"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
)

type unusedElasticIPRule struct {
	cost decimal.Decimal
}

func NewUnusedElasticIPRule(settings Settings) Rule {
	return &unusedElasticIPRule{cost: money(settings.ElasticIPMonthlyCost)}
}

func (r *unusedElasticIPRule) Name() string   { return "unused-elastic-ip" }
func (r *unusedElasticIPRule) Source() Source { return SourceLive }
func (r *unusedElasticIPRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeElasticIP}
}
func (r *unusedElasticIPRule) FindingTypes(Input) []string { return []string{FindingUnusedElasticIP} }

func (r *unusedElasticIPRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingUnusedElasticIP)
	for _, res := range ofType(in.Resources, domain.ResourceTypeElasticIP, &ev) {
		if assoc, _ := res.MetadataString(domain.MetadataAssociationID); assoc != "" {
			continue
		}
		ev.add(FindingUnusedElasticIP, domain.Violation{
			ResourceID:              res.ResourceID,
			ResourceType:            res.ResourceType,
			Severity:                domain.SeverityLow,
			Message:                 fmt.Sprintf("Elastic IP %s is not associated with any resource", res.ResourceID),
			EstimatedMonthlySavings: r.cost,
		})
	}
	return ev
}

type idleLoadBalancerRule struct {
	cost decimal.Decimal
}

func NewIdleLoadBalancerRule(settings Settings) Rule {
	return &idleLoadBalancerRule{cost: money(settings.LoadBalancerMonthlyCost)}
}

func (r *idleLoadBalancerRule) Name() string   { return "idle-load-balancer" }
func (r *idleLoadBalancerRule) Source() Source { return SourceLive }
func (r *idleLoadBalancerRule) ResourceTypes() []domain.ResourceType {
	return []domain.ResourceType{domain.ResourceTypeLoadBalancer}
}
func (r *idleLoadBalancerRule) FindingTypes(Input) []string { return []string{FindingIdleLoadBalancer} }

func (r *idleLoadBalancerRule) Evaluate(in Input) Evaluation {
	ev := newEvaluation(FindingIdleLoadBalancer)
	for _, res := range ofType(in.Resources, domain.ResourceTypeLoadBalancer, &ev) {
		count, ok := res.MetadataInt(domain.MetadataTargetGroupCount)
		if !ok {
			ev.Skipped++
			continue
		}
		if count > 0 {
			continue
		}

		name, _ := res.MetadataString(domain.MetadataName)
		if name == "" {
			name = res.ResourceID
		}
		ev.add(FindingIdleLoadBalancer, domain.Violation{
			ResourceID:              res.ResourceID,
			ResourceType:            res.ResourceType,
			Severity:                domain.SeverityHigh,
			Message:                 fmt.Sprintf("Load balancer %s has no target groups", name),
			EstimatedMonthlySavings: r.cost,
		})
	}
	return ev
}
