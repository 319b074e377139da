package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_Findings(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	err := r.Findings([]domain.Finding{
		{
			ID:                      "f-1",
			FindingType:             "IDLE_LOAD_BALANCER",
			ResourceID:              "arn:aws:elasticloadbalancing:us-east-1:1:loadbalancer/app/web/1",
			Severity:                domain.SeverityHigh,
			EstimatedMonthlySavings: decimal.RequireFromString("16.2"),
			DetectedAt:              time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
			Message:                 "load balancer has no targets",
		},
		{
			ID:                      "f-2",
			FindingType:             "STOPPED_INSTANCE",
			ResourceID:              "i-1",
			Severity:                domain.SeverityMedium,
			EstimatedMonthlySavings: decimal.NewFromInt(10),
			DetectedAt:              time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
			ReopenCount:             2,
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "| ID  | TYPE")
	assert.Contains(t, out, "16.20")
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, "2025-07-02")
	assert.Contains(t, out, "Total estimated monthly savings: USD 26.20")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	width := len(lines[0])
	for _, line := range lines[:6] {
		assert.Len(t, line, width, "rows are aligned: %q", line)
	}
}

func TestReporter_EmptyFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf).Findings(nil))

	assert.Equal(t, "No active findings.\nTotal estimated monthly savings: USD 0.00\n", buf.String())
}

func TestReporter_Audit(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	err := NewReporter(&buf).Audit(domain.AuditResult{
		ClientID:             "acme",
		AccountID:            "123456789012",
		Status:               domain.AuditStatusPartial,
		FindingsCreated:      3,
		FindingsResolved:     1,
		ActiveMonthlySavings: decimal.RequireFromString("29.8"),
		Rules: []domain.RuleOutcome{
			{Rule: "stopped-instance", FindingTypes: []string{"STOPPED_INSTANCE"}, Created: 3, Resolved: 1},
			{Rule: "idle-load-balancer", FindingTypes: []string{"IDLE_LOAD_BALANCER"}, Error: "throttled"},
		},
		Sweep: &domain.SweepResult{
			Observed: 4,
			Types:    []domain.SweepTypeOutcome{{ResourceType: domain.ResourceTypeCompute, Observed: 4}},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Audit of acme / 123456789012: partial")
	assert.Contains(t, out, "=== Inventory ===")
	assert.Contains(t, out, "COMPUTE")
	assert.Contains(t, out, "throttled")
	assert.Contains(t, out, "Findings created: 3  resolved: 1")
	assert.Contains(t, out, "USD 29.80")
}

func TestReporter_Clients(t *testing.T) {
	var buf bytes.Buffer

	err := NewReporter(&buf).Clients([]domain.Client{{
		ID:           "acme",
		Name:         "Acme Corp",
		Account:      domain.Account{ID: "123456789012", Regions: []string{"us-east-1", "eu-west-1"}},
		RequiredTags: []string{"Owner"},
	}})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "| acme | Acme Corp | 123456789012 | us-east-1,eu-west-1 | Owner         |")
}
