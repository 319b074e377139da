package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/de-tools/waste-atlas/pkg/services/inventory"
	"github.com/de-tools/waste-atlas/pkg/services/metrics"
	"github.com/de-tools/waste-atlas/pkg/services/reconcile"
	"github.com/de-tools/waste-atlas/pkg/services/rules"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
	"github.com/de-tools/waste-atlas/pkg/services/scanner/scannertest"
	"github.com/de-tools/waste-atlas/pkg/store/db"
	"github.com/de-tools/waste-atlas/pkg/store/db/findings"
	inventorystore "github.com/de-tools/waste-atlas/pkg/store/db/inventory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientID = "acme"

var account = domain.Account{ID: "111122223333", Regions: []string{"us-east-1"}}

type staticPolicy map[string][]string

func (p staticPolicy) RequiredTags(clientID string) []string {
	return p[clientID]
}

type scanners struct {
	instances *scannertest.Stub
	volumes   *scannertest.Stub
	addresses *scannertest.Stub
	lbs       *scannertest.Stub
	buckets   *scannertest.Stub
	snapshots *scannertest.Stub
}

func newScanners() *scanners {
	return &scanners{
		instances: &scannertest.Stub{ScannerName: "ec2:instances", Type: domain.ResourceTypeCompute},
		volumes:   &scannertest.Stub{ScannerName: "ec2:volumes", Type: domain.ResourceTypeVolume},
		addresses: &scannertest.Stub{ScannerName: "ec2:addresses", Type: domain.ResourceTypeElasticIP},
		lbs:       &scannertest.Stub{ScannerName: "elbv2:load-balancers", Type: domain.ResourceTypeLoadBalancer},
		buckets:   &scannertest.Stub{ScannerName: "s3:buckets", Type: domain.ResourceTypeBucket, Location: scanner.GlobalRegion},
		snapshots: &scannertest.Stub{ScannerName: "ec2:snapshots", Type: domain.ResourceTypeSnapshot},
	}
}

type fixture struct {
	ctx          context.Context
	orchestrator *Orchestrator
	engine       *reconcile.Engine
	connector    *scannertest.Connector
	scanners     *scanners
	policy       staticPolicy
	metrics      *metrics.Metrics
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewDB(context.Background(), db.Settings{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	findingStore, err := findings.NewStore(conn)
	require.NoError(t, err)
	resourceStore, err := inventorystore.NewStore(conn)
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	engine, err := reconcile.NewEngine(findingStore, reconcile.WithMetrics(m))
	require.NoError(t, err)
	inv, err := inventory.NewService(resourceStore, inventory.DefaultSettings(), m)
	require.NoError(t, err)
	ruleRegistry, err := rules.NewRegistry(rules.DefaultRules(rules.DefaultSettings())...)
	require.NoError(t, err)

	sc := newScanners()
	reg, err := scanner.NewRegistry(sc.instances, sc.volumes, sc.addresses, sc.lbs, sc.buckets, sc.snapshots)
	require.NoError(t, err)

	connector := &scannertest.Connector{Registry: reg}
	policy := staticPolicy{}

	orchestrator, err := NewOrchestrator(Dependencies{
		Connector: connector,
		Rules:     ruleRegistry,
		Engine:    engine,
		Inventory: inv,
		Policies:  policy,
		Metrics:   m,
	}, DefaultSettings())
	require.NoError(t, err)

	return &fixture{
		ctx:          zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background()),
		orchestrator: orchestrator,
		engine:       engine,
		connector:    connector,
		scanners:     sc,
		policy:       policy,
		metrics:      m,
	}
}

func (f *fixture) active(t *testing.T, findingType string) []string {
	t.Helper()
	found, err := f.engine.ListActiveFindings(f.ctx, clientID, domain.FindingFilter{FindingTypes: []string{findingType}})
	require.NoError(t, err)

	ids := make([]string, 0, len(found))
	for _, finding := range found {
		ids = append(ids, finding.ResourceID)
	}
	return ids
}

func outcomeOf(t *testing.T, res domain.AuditResult, rule string) domain.RuleOutcome {
	t.Helper()
	for _, o := range res.Rules {
		if o.Rule == rule {
			return o
		}
	}
	t.Fatalf("no outcome for rule %s", rule)
	return domain.RuleOutcome{}
}

func instance(id, state string, tags map[string]string) domain.Resource {
	return domain.Resource{ResourceID: id, ResourceType: domain.ResourceTypeCompute, State: state, Tags: tags}
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(Dependencies{}, DefaultSettings())
	assert.EqualError(t, err, "connector is required")
}

func TestRunAudit_StoppedInstance(t *testing.T) {
	f := setupFixture(t)

	f.scanners.instances.Result = scannertest.Resources(
		instance("i-1", "stopped", nil),
		instance("i-2", "running", nil),
	)

	res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusSuccess, res.Status)
	assert.Equal(t, 1, res.FindingsCreated)
	assert.Len(t, res.Rules, 7)
	require.NotNil(t, res.Sweep)
	assert.Equal(t, 2, res.Sweep.Observed)
	assert.True(t, decimal.NewFromInt(10).Equal(res.ActiveMonthlySavings))
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	assert.Equal(t, []string{"i-1"}, f.active(t, rules.FindingStoppedInstance))
	assert.Equal(t, 1, outcomeOf(t, res, "stopped-instance").Created)

	t.Run("repeated audit changes nothing", func(t *testing.T) {
		res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
		require.NoError(t, err)
		assert.Equal(t, 0, res.FindingsCreated)
		assert.Equal(t, 0, res.FindingsResolved)
	})

	t.Run("started instance resolves the finding", func(t *testing.T) {
		f.scanners.instances.Result = scannertest.Resources(
			instance("i-1", "running", nil),
			instance("i-2", "running", nil),
		)

		res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
		require.NoError(t, err)
		assert.Equal(t, 1, res.FindingsResolved)
		assert.Empty(t, f.active(t, rules.FindingStoppedInstance))
	})

	t.Run("stopped again reopens it", func(t *testing.T) {
		f.scanners.instances.Result = scannertest.Resources(instance("i-1", "stopped", nil))

		res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
		require.NoError(t, err)
		assert.Equal(t, 1, res.FindingsCreated)

		found, err := f.engine.ListActiveFindings(f.ctx, clientID, domain.FindingFilter{ResourceID: "i-1"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, 1, found[0].ReopenCount)
	})
}

func TestRunAudit_CredentialFailure(t *testing.T) {
	f := setupFixture(t)
	f.connector.Err = fmt.Errorf("%w: assume role: access denied", domain.ErrCredentials)
	f.scanners.instances.Result = scannertest.Resources(instance("i-1", "stopped", nil))

	res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusError, res.Status)
	assert.Contains(t, res.Error, "access denied")
	assert.Empty(t, res.Rules)
	assert.Nil(t, res.Sweep)
	assert.Zero(t, f.scanners.instances.Calls())

	active, err := f.engine.ListActiveFindings(f.ctx, clientID, domain.FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunAudit_RuleFailureIsPartial(t *testing.T) {
	f := setupFixture(t)
	f.scanners.lbs.Err = errors.New("throttled")
	f.scanners.addresses.Result = scannertest.Resources(domain.Resource{
		ResourceID: "eipalloc-1", ResourceType: domain.ResourceTypeElasticIP,
	})

	res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusPartial, res.Status)

	failed := outcomeOf(t, res, "idle-load-balancer")
	assert.True(t, failed.Failed())
	assert.Contains(t, failed.Error, "throttled")

	assert.False(t, outcomeOf(t, res, "unused-elastic-ip").Failed())
	assert.Equal(t, []string{"eipalloc-1"}, f.active(t, rules.FindingUnusedElasticIP))
	require.NotNil(t, res.Sweep)
	assert.Equal(t, 1, res.Sweep.Failed())
}

func TestRunAudit_UnsweptInventoryFailsRules(t *testing.T) {
	f := setupFixture(t)
	f.policy[clientID] = []string{"Owner"}
	f.scanners.instances.Result = scannertest.Resources(instance("i-1", "stopped", map[string]string{}))

	res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusSuccess, res.Status)
	assert.Equal(t, []string{"i-1"}, f.active(t, rules.FindingStoppedInstance))

	f.scanners.instances.Result = scannertest.Resources(instance("i-1", "running", map[string]string{"Owner": "ops"}))
	f.scanners.instances.Err = errors.New("throttled")

	res, err = f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusPartial, res.Status)
	require.NotNil(t, res.Sweep)
	assert.Equal(t, 1, res.Sweep.Failed())

	tests := []struct {
		rule   string
		failed bool
	}{
		{rule: "stopped-instance", failed: true},
		{rule: "missing-tag", failed: true},
		{rule: "unattached-volume", failed: false},
		{rule: "unused-elastic-ip", failed: false},
	}
	for _, tc := range tests {
		t.Run(tc.rule, func(t *testing.T) {
			outcome := outcomeOf(t, res, tc.rule)
			assert.Equal(t, tc.failed, outcome.Failed())
			if tc.failed {
				assert.Contains(t, outcome.Error, "throttled")
				assert.Zero(t, outcome.Resolved)
			}
		})
	}

	assert.Equal(t, []string{"i-1"}, f.active(t, rules.FindingStoppedInstance))
	assert.Equal(t, []string{"i-1"}, f.active(t, "MISSING_TAG_Owner"))
}

func TestRunAudit_MissingTags(t *testing.T) {
	f := setupFixture(t)
	f.policy[clientID] = []string{"Owner", "CostCenter"}
	f.scanners.instances.Result = scannertest.Resources(
		instance("i-1", "running", map[string]string{}),
		instance("i-2", "running", map[string]string{"Owner": "data"}),
	)

	res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, 3, outcomeOf(t, res, "missing-tag").Created)
	assert.Equal(t, []string{"i-1"}, f.active(t, "MISSING_TAG_Owner"))
	assert.ElementsMatch(t, []string{"i-1", "i-2"}, f.active(t, "MISSING_TAG_CostCenter"))

	t.Run("tag added resolves one finding", func(t *testing.T) {
		f.scanners.instances.Result = scannertest.Resources(
			instance("i-1", "running", map[string]string{"Owner": "ops"}),
			instance("i-2", "running", map[string]string{"Owner": "data"}),
		)

		res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
		require.NoError(t, err)
		assert.Equal(t, 1, outcomeOf(t, res, "missing-tag").Resolved)
		assert.Empty(t, f.active(t, "MISSING_TAG_Owner"))
		assert.Len(t, f.active(t, "MISSING_TAG_CostCenter"), 2)
	})

	t.Run("dropped requirement resolves its findings", func(t *testing.T) {
		f.policy[clientID] = []string{"Owner"}

		res, err := f.orchestrator.RunAudit(f.ctx, clientID, account)
		require.NoError(t, err)

		outcome := outcomeOf(t, res, "missing-tag")
		assert.Equal(t, 2, outcome.Resolved)
		assert.Contains(t, outcome.FindingTypes, "MISSING_TAG_CostCenter")
		assert.Empty(t, f.active(t, "MISSING_TAG_CostCenter"))
	})
}

func TestRunAudit_Validation(t *testing.T) {
	f := setupFixture(t)

	_, err := f.orchestrator.RunAudit(f.ctx, "", account)
	assert.Error(t, err)
	assert.Zero(t, f.connector.Calls())
}

func TestSweepInventory(t *testing.T) {
	f := setupFixture(t)
	f.scanners.volumes.Result = scannertest.Resources(domain.Resource{
		ResourceID: "vol-1", ResourceType: domain.ResourceTypeVolume, State: "available",
	})

	res, err := f.orchestrator.SweepInventory(f.ctx, clientID, account)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Observed)
	assert.Empty(t, f.active(t, rules.FindingUnattachedVolume))

	f.connector.Err = domain.ErrCredentials
	_, err = f.orchestrator.SweepInventory(f.ctx, clientID, account)
	assert.ErrorIs(t, err, domain.ErrCredentials)
}
