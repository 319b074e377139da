package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SystemActor is recorded as resolved_by when a finding is closed automatically.
const SystemActor = "system"

type Finding struct {
	ID                      string
	ClientID                string
	AccountID               string
	ResourceID              string
	ResourceType            ResourceType
	FindingType             string
	Severity                Severity
	Message                 string
	EstimatedMonthlySavings decimal.Decimal
	Resolved                bool
	ResolvedAt              *time.Time
	ResolvedBy              string
	ReopenCount             int
	DetectedAt              time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Violation is a single resource currently breaking a rule, as reported by a
// rule evaluator.
type Violation struct {
	ResourceID              string
	ResourceType            ResourceType
	Severity                Severity
	Message                 string
	EstimatedMonthlySavings decimal.Decimal
}

type FindingFilter struct {
	AccountID     string
	FindingTypes  []string
	ResourceTypes []ResourceType
	Severity      *Severity
	ResourceID    string
}

type Transition string

const (
	TransitionCreated  Transition = "created"
	TransitionReopened Transition = "reopened"
	TransitionResolved Transition = "resolved"
)

type FindingEvent struct {
	Transition Transition
	Finding    Finding
	OccurredAt time.Time
}

func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity: %q", s)
	}
}
