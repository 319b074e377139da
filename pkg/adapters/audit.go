package adapters

import (
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
)

func MapSeverityDomainToApi(s domain.Severity) api.Severity {
	switch s {
	case domain.SeverityLow:
		return api.SeverityLow
	case domain.SeverityMedium:
		return api.SeverityMedium
	case domain.SeverityHigh:
		return api.SeverityHigh
	default:
		return api.SeverityLow
	}
}

func MapRuleOutcomeDomainToApi(o domain.RuleOutcome) api.RuleOutcome {
	types := o.FindingTypes
	if types == nil {
		types = []string{}
	}
	return api.RuleOutcome{
		Rule:         o.Rule,
		FindingTypes: types,
		Created:      o.Created,
		Resolved:     o.Resolved,
		Skipped:      o.Skipped,
		Error:        o.Error,
	}
}

func MapSweepResultDomainToApi(r domain.SweepResult) api.SweepResult {
	res := api.SweepResult{
		ClientID:  r.ClientID,
		AccountID: r.AccountID,
		Observed:  r.Observed,
		Skipped:   r.Skipped,
		Types:     make([]api.SweepTypeOutcome, 0, len(r.Types)),
	}
	for _, t := range r.Types {
		res.Types = append(res.Types, api.SweepTypeOutcome{
			ResourceType: string(t.ResourceType),
			Observed:     t.Observed,
			Skipped:      t.Skipped,
			Error:        t.Error,
		})
	}
	return res
}

func MapAuditResultDomainToApi(r domain.AuditResult) api.AuditResult {
	res := api.AuditResult{
		ClientID:             r.ClientID,
		AccountID:            r.AccountID,
		Status:               string(r.Status),
		FindingsCreated:      r.FindingsCreated,
		FindingsResolved:     r.FindingsResolved,
		ActiveMonthlySavings: r.ActiveMonthlySavings,
		Rules:                make([]api.RuleOutcome, 0, len(r.Rules)),
		StartedAt:            r.StartedAt,
		FinishedAt:           r.FinishedAt,
		Error:                r.Error,
	}
	for _, o := range r.Rules {
		res.Rules = append(res.Rules, MapRuleOutcomeDomainToApi(o))
	}
	if r.Sweep != nil {
		sweep := MapSweepResultDomainToApi(*r.Sweep)
		res.Sweep = &sweep
	}
	return res
}
