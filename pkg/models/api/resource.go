package api

import "time"

type Resource struct {
	ClientID     string            `json:"client_id"`
	AccountID    string            `json:"account_id"`
	ResourceID   string            `json:"resource_id"`
	ResourceType string            `json:"resource_type"`
	Region       string            `json:"region"`
	State        string            `json:"state"`
	Tags         map[string]string `json:"tags"`
	Metadata     map[string]any    `json:"metadata"`
	DetectedAt   time.Time         `json:"detected_at"`
	LastSeenAt   time.Time         `json:"last_seen_at"`
	IsActive     bool              `json:"is_active"`
}

type Client struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AccountID    string   `json:"account_id"`
	Regions      []string `json:"regions"`
	RequiredTags []string `json:"required_tags"`
}
