package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDirectory []domain.Client

func (d staticDirectory) ListClients(context.Context) ([]domain.Client, error) {
	return d, nil
}

type countingAuditor struct {
	mu       sync.Mutex
	audits   map[string]int
	sweeps   map[string]int
	auditErr error
}

func newCountingAuditor() *countingAuditor {
	return &countingAuditor{audits: map[string]int{}, sweeps: map[string]int{}}
}

func (a *countingAuditor) RunAudit(_ context.Context, clientID string, _ domain.Account) (domain.AuditResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits[clientID]++
	if a.auditErr != nil {
		return domain.AuditResult{ClientID: clientID, Status: domain.AuditStatusError, Error: a.auditErr.Error()}, nil
	}
	return domain.AuditResult{ClientID: clientID, Status: domain.AuditStatusSuccess}, nil
}

func (a *countingAuditor) SweepInventory(_ context.Context, clientID string, _ domain.Account) (domain.SweepResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweeps[clientID]++
	return domain.SweepResult{ClientID: clientID}, nil
}

func (a *countingAuditor) counts(clientID string) (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audits[clientID], a.sweeps[clientID]
}

var directory = staticDirectory{
	{ID: "acme", Account: domain.Account{ID: "1"}},
	{ID: "globex", Account: domain.Account{ID: "2"}},
}

func TestController_Init(t *testing.T) {
	auditor := newCountingAuditor()
	ctrl := NewController(directory, auditor, Settings{
		AuditInterval: 10 * time.Millisecond,
		SweepInterval: time.Hour,
	})

	require.NoError(t, ctrl.Init(context.Background()))
	defer ctrl.Stop()

	assert.Eventually(t, func() bool {
		audits, _ := auditor.counts("globex")
		return audits >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, sweeps := auditor.counts("acme")
		return sweeps == 1
	}, 2*time.Second, 5*time.Millisecond, "sweeps run once right away")

	progress, ok := ctrl.Progress(KindAudit, "acme")
	require.True(t, ok)
	assert.Positive(t, progress.Runs)
	assert.Zero(t, progress.Failures)
}

func TestController_OnlyEnabledJobs(t *testing.T) {
	ctrl := NewController(directory, newCountingAuditor(), Settings{SweepInterval: time.Hour})
	require.NoError(t, ctrl.Init(context.Background()))
	defer ctrl.Stop()

	_, ok := ctrl.Progress(KindAudit, "acme")
	assert.False(t, ok)
	_, ok = ctrl.Progress(KindSweep, "acme")
	assert.True(t, ok)

	err := ctrl.Start(context.Background(), KindAudit, directory[0])
	assert.EqualError(t, err, "audit interval is not configured")
}

func TestController_Cancel(t *testing.T) {
	auditor := newCountingAuditor()
	ctrl := NewController(directory, auditor, Settings{AuditInterval: 5 * time.Millisecond})

	require.NoError(t, ctrl.Start(context.Background(), KindAudit, directory[0]))
	assert.ErrorContains(t, ctrl.Start(context.Background(), KindAudit, directory[0]), "already running")

	require.NoError(t, ctrl.Cancel(context.Background(), KindAudit, "acme"))
	stopped, _ := auditor.counts("acme")
	time.Sleep(20 * time.Millisecond)
	after, _ := auditor.counts("acme")
	assert.Equal(t, stopped, after, "no runs after cancel")

	err := ctrl.Cancel(context.Background(), KindAudit, "acme")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestController_RecordsFailures(t *testing.T) {
	auditor := newCountingAuditor()
	auditor.auditErr = errors.New("credential failure")
	ctrl := NewController(directory, auditor, Settings{AuditInterval: time.Hour})

	require.NoError(t, ctrl.Start(context.Background(), KindAudit, directory[1]))
	defer ctrl.Stop()

	assert.Eventually(t, func() bool {
		p, _ := ctrl.Progress(KindAudit, "globex")
		return p.Failures == 1
	}, 2*time.Second, 5*time.Millisecond)

	p, _ := ctrl.Progress(KindAudit, "globex")
	assert.Equal(t, "audit failed: credential failure", p.LastError)
}

func TestController_UnknownKind(t *testing.T) {
	ctrl := NewController(directory, newCountingAuditor(), Settings{AuditInterval: time.Hour})
	assert.EqualError(t, ctrl.Start(context.Background(), "report", directory[0]), "unknown job kind: report")
}
