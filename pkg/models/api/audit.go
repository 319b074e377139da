package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type RuleOutcome struct {
	Rule         string   `json:"rule"`
	FindingTypes []string `json:"finding_types"`
	Created      int      `json:"created"`
	Resolved     int      `json:"resolved"`
	Skipped      int      `json:"skipped"`
	Error        string   `json:"error,omitempty"`
}

type AuditResult struct {
	ClientID             string          `json:"client_id"`
	AccountID            string          `json:"account_id"`
	Status               string          `json:"status"`
	FindingsCreated      int             `json:"findings_created"`
	FindingsResolved     int             `json:"findings_resolved"`
	ActiveMonthlySavings decimal.Decimal `json:"active_monthly_savings"`
	Rules                []RuleOutcome   `json:"rules"`
	Sweep                *SweepResult    `json:"sweep,omitempty"`
	StartedAt            time.Time       `json:"started_at"`
	FinishedAt           time.Time       `json:"finished_at"`
	Error                string          `json:"error,omitempty"`
}

type SweepTypeOutcome struct {
	ResourceType string `json:"resource_type"`
	Observed     int    `json:"observed"`
	Skipped      int    `json:"skipped"`
	Error        string `json:"error,omitempty"`
}

type SweepResult struct {
	ClientID  string             `json:"client_id"`
	AccountID string             `json:"account_id"`
	Observed  int                `json:"observed"`
	Skipped   int                `json:"skipped"`
	Types     []SweepTypeOutcome `json:"types"`
}
