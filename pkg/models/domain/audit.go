package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	// AuditStatusPartial means the run completed but at least one rule failed.
	AuditStatusPartial AuditStatus = "partial"
	AuditStatusError   AuditStatus = "error"
)

type RuleOutcome struct {
	Rule         string
	FindingTypes []string
	Created      int
	Resolved     int
	Skipped      int
	Error        string
}

func (o RuleOutcome) Failed() bool {
	return o.Error != ""
}

type AuditResult struct {
	ClientID             string
	AccountID            string
	Status               AuditStatus
	FindingsCreated      int
	FindingsResolved     int
	ActiveMonthlySavings decimal.Decimal
	Rules                []RuleOutcome
	Sweep                *SweepResult
	StartedAt            time.Time
	FinishedAt           time.Time
	Error                string
}
