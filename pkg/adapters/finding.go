package adapters

import (
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/models/store"
)

func MapFindingDomainToStore(f domain.Finding) store.Finding {
	var resolvedBy *string
	if f.ResolvedBy != "" {
		actor := f.ResolvedBy
		resolvedBy = &actor
	}
	return store.Finding{
		ID:                      f.ID,
		ClientID:                f.ClientID,
		AccountID:               f.AccountID,
		ResourceID:              f.ResourceID,
		ResourceType:            string(f.ResourceType),
		FindingType:             f.FindingType,
		Severity:                f.Severity.String(),
		Message:                 f.Message,
		EstimatedMonthlySavings: f.EstimatedMonthlySavings,
		Resolved:                f.Resolved,
		ResolvedAt:              f.ResolvedAt,
		ResolvedBy:              resolvedBy,
		ReopenCount:             f.ReopenCount,
		DetectedAt:              f.DetectedAt,
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
}

// MapFindingStoreToDomain tolerates unknown severities by falling back to LOW
// so a single bad row never hides the rest of a listing.
func MapFindingStoreToDomain(f store.Finding) domain.Finding {
	severity, _ := domain.ParseSeverity(f.Severity)
	var resolvedBy string
	if f.ResolvedBy != nil {
		resolvedBy = *f.ResolvedBy
	}
	return domain.Finding{
		ID:                      f.ID,
		ClientID:                f.ClientID,
		AccountID:               f.AccountID,
		ResourceID:              f.ResourceID,
		ResourceType:            domain.ResourceType(f.ResourceType),
		FindingType:             f.FindingType,
		Severity:                severity,
		Message:                 f.Message,
		EstimatedMonthlySavings: f.EstimatedMonthlySavings,
		Resolved:                f.Resolved,
		ResolvedAt:              f.ResolvedAt,
		ResolvedBy:              resolvedBy,
		ReopenCount:             f.ReopenCount,
		DetectedAt:              f.DetectedAt,
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
}

func MapFindingDomainToApi(f domain.Finding) api.Finding {
	return api.Finding{
		ID:                      f.ID,
		ClientID:                f.ClientID,
		AccountID:               f.AccountID,
		ResourceID:              f.ResourceID,
		ResourceType:            string(f.ResourceType),
		FindingType:             f.FindingType,
		Severity:                MapSeverityDomainToApi(f.Severity),
		Message:                 f.Message,
		EstimatedMonthlySavings: f.EstimatedMonthlySavings,
		Resolved:                f.Resolved,
		ResolvedAt:              f.ResolvedAt,
		ResolvedBy:              f.ResolvedBy,
		ReopenCount:             f.ReopenCount,
		DetectedAt:              f.DetectedAt,
		CreatedAt:               f.CreatedAt,
	}
}

func MapFindingEventDomainToApi(e domain.FindingEvent) api.FindingEvent {
	return api.FindingEvent{
		Transition: string(e.Transition),
		Finding:    MapFindingDomainToApi(e.Finding),
		OccurredAt: e.OccurredAt,
	}
}

func MapFindingFilterDomainToStore(f domain.FindingFilter) store.FindingFilter {
	res := store.FindingFilter{
		AccountID:    f.AccountID,
		FindingTypes: f.FindingTypes,
		ResourceID:   f.ResourceID,
	}
	for _, rt := range f.ResourceTypes {
		res.ResourceTypes = append(res.ResourceTypes, string(rt))
	}
	if f.Severity != nil {
		res.Severity = f.Severity.String()
	}
	return res
}
