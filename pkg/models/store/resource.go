package store

import "time"

type Resource struct {
	ClientID     string
	AccountID    string
	ResourceID   string
	ResourceType string
	Region       string
	State        string
	Tags         map[string]string
	Metadata     map[string]any
	DetectedAt   time.Time
	LastSeenAt   time.Time
	IsActive     bool
}

type ResourceFilter struct {
	AccountID     string
	ResourceTypes []string
}
