package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type Finding struct {
	ID                      string
	ClientID                string
	AccountID               string
	ResourceID              string
	ResourceType            string
	FindingType             string
	Severity                string
	Message                 string
	EstimatedMonthlySavings decimal.Decimal
	Resolved                bool
	ResolvedAt              *time.Time
	ResolvedBy              *string
	ReopenCount             int
	DetectedAt              time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type FindingFilter struct {
	AccountID     string
	FindingTypes  []string
	ResourceTypes []string
	Severity      string
	ResourceID    string
}
