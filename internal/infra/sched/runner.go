package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/redis"
)

// Job is one periodic sweep. Run returns the number of rows it changed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Runner ticks every registered job on its own interval. When a Locker is set,
// each run holds lock:sweep:<name> so only one instance sweeps at a time.
type Runner struct {
	locker  redis.Locker
	timeout time.Duration
	jobs    map[string]entry
	order   []string
	wg      sync.WaitGroup
	log     *zerolog.Logger
}

func NewRunner(locker redis.Locker, timeout time.Duration, logger *zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	l := logger.With().Str("component", "SweepRunner").Logger()
	return &Runner{locker: locker, timeout: timeout, jobs: map[string]entry{}, log: &l}
}

// Add registers job; a non-positive interval registers it for manual runs only.
func (r *Runner) Add(job Job, interval time.Duration) {
	if _, dup := r.jobs[job.Name()]; !dup {
		r.order = append(r.order, job.Name())
	}
	r.jobs[job.Name()] = entry{job: job, interval: interval}
}

// Start launches one ticker goroutine per scheduled job.
func (r *Runner) Start(ctx context.Context) {
	for _, name := range r.order {
		e := r.jobs[name]
		if e.interval <= 0 {
			continue
		}
		r.wg.Add(1)
		go func(e entry) {
			defer r.wg.Done()
			r.loop(ctx, e)
		}(e)
	}
}

// Wait blocks until every loop has returned after ctx cancellation.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) loop(ctx context.Context, e entry) {
	r.log.Info().Str("job", e.job.Name()).Dur("interval", e.interval).Msg("sweep scheduled")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Str("job", e.job.Name()).Msg("sweep stopped")
			return
		case <-ticker.C:
			if _, err := r.run(ctx, e.job); err != nil && !errors.Is(err, domain.ErrLockHeld) {
				r.log.Error().Err(err).Str("job", e.job.Name()).Msg("sweep failed")
			}
		}
	}
}

// RunNow triggers a registered job outside its schedule, under the same lock.
func (r *Runner) RunNow(ctx context.Context, name string) (int, error) {
	e, ok := r.jobs[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown sweep %q", domain.ErrNotFound, name)
	}
	return r.run(ctx, e.job)
}

func (r *Runner) run(ctx context.Context, job Job) (int, error) {
	name := job.Name()
	if r.locker != nil {
		key := redis.SweepLockKey(name)
		token, err := r.locker.TryLock(ctx, key, r.timeout)
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.IncSweepSkipped(name)
			r.log.Debug().Str("job", name).Msg("sweep skipped; lock held elsewhere")
			return 0, err
		}
		if err != nil {
			return 0, fmt.Errorf("acquire %s: %w", key, err)
		}
		defer func() {
			// the run context may be done by now
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.locker.Unlock(uctx, key, token); err != nil {
				r.log.Warn().Err(err).Str("job", name).Msg("release sweep lock")
			}
		}()
	}

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	n, err := job.Run(rctx)
	metrics.ObserveSweep(name, time.Since(start), n, err)
	return n, err
}
