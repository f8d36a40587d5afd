// Package scheduling runs periodic knowledge base reloads.
package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ddx/ddx/internal/domain/knowledge"
)

// Target is reloaded on every tick. *diagnosis.Service satisfies it.
type Target interface {
	Reload(ctx context.Context) (knowledge.Stats, error)
}

// Status reports the reloader's most recent activity.
type Status struct {
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next"`
}

// Reloader reloads a Target on a cron schedule. Overlapping ticks are
// skipped while a reload is still running.
type Reloader struct {
	cron     *cron.Cron
	entry    cron.EntryID
	target   Target
	schedule string
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	status Status
}

// NewReloader validates schedule (standard five-field cron or a descriptor
// such as "@every 15m") and registers the reload job. Each run gets its own
// context bounded by timeout; zero means no bound.
func NewReloader(schedule string, target Target, timeout time.Duration, logger zerolog.Logger) (*Reloader, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", schedule, err)
	}
	r := &Reloader{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:   target,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.With().Str("component", "reloader").Logger(),
		status:   Status{Schedule: schedule},
	}
	id, err := r.cron.AddFunc(schedule, func() { r.RunNow(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("schedule reload: %w", err)
	}
	r.entry = id
	return r, nil
}

// Start begins the schedule in the background.
func (r *Reloader) Start() {
	r.cron.Start()
	r.logger.Info().Str("schedule", r.schedule).Time("next", r.cron.Entry(r.entry).Next).Msg("reload scheduler started")
}

// Stop halts the schedule and waits for a running reload to finish or ctx
// to end.
func (r *Reloader) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn().Msg("reload still running at shutdown")
	}
}

// RunNow performs one reload synchronously and records its outcome.
func (r *Reloader) RunNow(ctx context.Context) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	st, err := r.target.Reload(ctx)

	r.mu.Lock()
	r.status.Runs++
	r.status.LastRun = start.UTC()
	r.status.LastError = ""
	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().Err(err).Msg("scheduled reload failed, keeping current knowledge base")
		return err
	}
	r.logger.Info().
		Int("facts", st.Facts).
		Dur("took", time.Since(start)).
		Msg("scheduled reload complete")
	return nil
}

// Status returns a copy of the current status.
func (r *Reloader) Status() Status {
	r.mu.Lock()
	st := r.status
	r.mu.Unlock()
	st.Next = r.cron.Entry(r.entry).Next
	return st
}
