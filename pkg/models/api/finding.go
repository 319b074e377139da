package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type Finding struct {
	ID                      string          `json:"id"`
	ClientID                string          `json:"client_id"`
	AccountID               string          `json:"account_id"`
	ResourceID              string          `json:"resource_id"`
	ResourceType            string          `json:"resource_type"`
	FindingType             string          `json:"finding_type"`
	Severity                Severity        `json:"severity"`
	Message                 string          `json:"message"`
	EstimatedMonthlySavings decimal.Decimal `json:"estimated_monthly_savings"`
	Resolved                bool            `json:"resolved"`
	ResolvedAt              *time.Time      `json:"resolved_at"`
	ResolvedBy              string          `json:"resolved_by,omitempty"`
	ReopenCount             int             `json:"reopen_count"`
	DetectedAt              time.Time       `json:"detected_at"`
	CreatedAt               time.Time       `json:"created_at"`
}

type FindingEvent struct {
	Transition string    `json:"transition"`
	Finding    Finding   `json:"finding"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ResolveRequest struct {
	Actor string `json:"actor,omitempty"`
}

type Error struct {
	Error string `json:"error"`
}
