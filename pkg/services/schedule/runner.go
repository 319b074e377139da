package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

// Job is one unit of scheduled work for a client.
type Job func(ctx context.Context, client domain.Client) error

type RunnerProgress struct {
	Runs      int64
	Failures  int64
	LastRunAt time.Time
	LastError string
}

// Runner executes a job for one client right away and then on every tick of
// its interval until the context is canceled.
type Runner struct {
	kind     string
	client   domain.Client
	interval time.Duration
	job      Job
	done     chan struct{}

	mu       sync.Mutex
	progress RunnerProgress
}

func NewRunner(kind string, client domain.Client, interval time.Duration, job Job) *Runner {
	return &Runner{
		kind:     kind,
		client:   client,
		interval: interval,
		job:      job,
		done:     make(chan struct{}),
	}
}

func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) Progress() RunnerProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	logger := zerolog.Ctx(ctx).With().
		Str("job", r.kind).
		Str("client_id", r.client.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx, &logger)

		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduled job stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, logger *zerolog.Logger) {
	err := r.job(ctx, r.client)

	r.mu.Lock()
	r.progress.Runs++
	r.progress.LastRunAt = time.Now()
	r.progress.LastError = ""
	if err != nil {
		r.progress.Failures++
		r.progress.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("scheduled job failed")
	}
}
