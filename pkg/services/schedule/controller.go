package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
)

const (
	KindAudit = "audit"
	KindSweep = "sweep"
)

type Settings struct {
	// AuditInterval audits every registered client periodically, 0 disables it (default: 0)
	AuditInterval time.Duration `mapstructure:"audit_interval" validate:"gte=0"`
	// SweepInterval refreshes every client's inventory periodically, 0 disables it (default: 0)
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

func (s Settings) Enabled() bool {
	return s.AuditInterval > 0 || s.SweepInterval > 0
}

type Directory interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
}

type Auditor interface {
	RunAudit(ctx context.Context, clientID string, account domain.Account) (domain.AuditResult, error)
	SweepInventory(ctx context.Context, clientID string, account domain.Account) (domain.SweepResult, error)
}

type runnerDescriptor struct {
	cancelFunc context.CancelFunc
	runner     *Runner
}

type DefaultController struct {
	directory Directory
	auditor   Auditor
	settings  Settings

	mu      sync.Mutex
	runners map[string]runnerDescriptor
}

func NewController(directory Directory, auditor Auditor, settings Settings) *DefaultController {
	return &DefaultController{
		directory: directory,
		auditor:   auditor,
		settings:  settings,
		runners:   make(map[string]runnerDescriptor),
	}
}

// Init starts the enabled jobs for every registered client.
func (ctrl *DefaultController) Init(ctx context.Context) error {
	clients, err := ctrl.directory.ListClients(ctx)
	if err != nil {
		return err
	}

	for _, client := range clients {
		if ctrl.settings.AuditInterval > 0 {
			if err := ctrl.Start(ctx, KindAudit, client); err != nil {
				return err
			}
		}
		if ctrl.settings.SweepInterval > 0 {
			if err := ctrl.Start(ctx, KindSweep, client); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ctrl *DefaultController) Start(ctx context.Context, kind string, client domain.Client) error {
	job, interval, err := ctrl.job(kind)
	if err != nil {
		return err
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	key := runnerKey(kind, client.ID)
	if _, ok := ctrl.runners[key]; ok {
		return fmt.Errorf("%s job already running for client %s", kind, client.ID)
	}

	ctx, cancel := context.WithCancel(ctx)
	runner := NewRunner(kind, client, interval, job)
	ctrl.runners[key] = runnerDescriptor{cancelFunc: cancel, runner: runner}

	go runner.Run(ctx)
	return nil
}

func (ctrl *DefaultController) Cancel(_ context.Context, kind, clientID string) error {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	key := runnerKey(kind, clientID)
	desc, ok := ctrl.runners[key]
	if !ok {
		return fmt.Errorf("%s job not running for client %s: %w", kind, clientID, domain.ErrNotFound)
	}
	desc.cancelFunc()
	<-desc.runner.Done()

	delete(ctrl.runners, key)
	return nil
}

// Progress reports the state of a running job.
func (ctrl *DefaultController) Progress(kind, clientID string) (RunnerProgress, bool) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	desc, ok := ctrl.runners[runnerKey(kind, clientID)]
	if !ok {
		return RunnerProgress{}, false
	}
	return desc.runner.Progress(), true
}

// Stop cancels every job and waits for the running ones to return.
func (ctrl *DefaultController) Stop() {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	for _, desc := range ctrl.runners {
		desc.cancelFunc()
	}
	for key, desc := range ctrl.runners {
		<-desc.runner.Done()
		delete(ctrl.runners, key)
	}
}

func (ctrl *DefaultController) job(kind string) (Job, time.Duration, error) {
	switch kind {
	case KindAudit:
		if ctrl.settings.AuditInterval <= 0 {
			return nil, 0, fmt.Errorf("audit interval is not configured")
		}
		return func(ctx context.Context, client domain.Client) error {
			result, err := ctrl.auditor.RunAudit(ctx, client.ID, client.Account)
			if err != nil {
				return err
			}
			if result.Status == domain.AuditStatusError {
				return fmt.Errorf("audit failed: %s", result.Error)
			}
			return nil
		}, ctrl.settings.AuditInterval, nil
	case KindSweep:
		if ctrl.settings.SweepInterval <= 0 {
			return nil, 0, fmt.Errorf("sweep interval is not configured")
		}
		return func(ctx context.Context, client domain.Client) error {
			_, err := ctrl.auditor.SweepInventory(ctx, client.ID, client.Account)
			return err
		}, ctrl.settings.SweepInterval, nil
	default:
		return nil, 0, fmt.Errorf("unknown job kind: %s", kind)
	}
}

func runnerKey(kind, clientID string) string {
	return kind + ":" + clientID
}
