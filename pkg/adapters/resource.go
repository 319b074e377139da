package adapters

import (
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/models/store"
)

func MapResourceDomainToStore(r domain.Resource) store.Resource {
	return store.Resource{
		ClientID:     r.ClientID,
		AccountID:    r.AccountID,
		ResourceID:   r.ResourceID,
		ResourceType: string(r.ResourceType),
		Region:       r.Region,
		State:        r.State,
		Tags:         r.Tags,
		Metadata:     r.Metadata,
		DetectedAt:   r.DetectedAt,
		LastSeenAt:   r.LastSeenAt,
		IsActive:     r.IsActive,
	}
}

func MapResourceStoreToDomain(r store.Resource) domain.Resource {
	return domain.Resource{
		ClientID:     r.ClientID,
		AccountID:    r.AccountID,
		ResourceID:   r.ResourceID,
		ResourceType: domain.ResourceType(r.ResourceType),
		Region:       r.Region,
		State:        r.State,
		Tags:         r.Tags,
		Metadata:     r.Metadata,
		DetectedAt:   r.DetectedAt,
		LastSeenAt:   r.LastSeenAt,
		IsActive:     r.IsActive,
	}
}

func MapResourceDomainToApi(r domain.Resource) api.Resource {
	tags := r.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return api.Resource{
		ClientID:     r.ClientID,
		AccountID:    r.AccountID,
		ResourceID:   r.ResourceID,
		ResourceType: string(r.ResourceType),
		Region:       r.Region,
		State:        r.State,
		Tags:         tags,
		Metadata:     metadata,
		DetectedAt:   r.DetectedAt,
		LastSeenAt:   r.LastSeenAt,
		IsActive:     r.IsActive,
	}
}

func MapResourceFilterDomainToStore(f domain.ResourceFilter) store.ResourceFilter {
	res := store.ResourceFilter{AccountID: f.AccountID}
	for _, rt := range f.ResourceTypes {
		res.ResourceTypes = append(res.ResourceTypes, string(rt))
	}
	return res
}

func MapClientDomainToApi(c domain.Client) api.Client {
	regions := c.Account.Regions
	if regions == nil {
		regions = []string{}
	}
	tags := c.RequiredTags
	if tags == nil {
		tags = []string{}
	}
	return api.Client{
		ID:           c.ID,
		Name:         c.Name,
		AccountID:    c.Account.ID,
		Regions:      regions,
		RequiredTags: tags,
	}
}
