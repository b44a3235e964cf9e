// Package worker runs background jobs: webhook wallet crediting and the
// provider code-polling sweep. Handlers hand jobs to the pool so they can
// acknowledge upstream callers immediately.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"brandotp/internal/app/logger"
)

// ErrRetryable marks a job failure worth one more attempt. Only idempotent
// jobs should return it.
var ErrRetryable = errors.New("retryable")

type Job func() error

type Pool struct {
	logger logger.Logger
	jobs   chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	retryDelay time.Duration
}

func New(numWorkers int) *Pool {
	p := &Pool{
		logger:     logger.Global().WithComponent("Worker.Pool"),
		jobs:       make(chan Job, 64),
		stopCh:     make(chan struct{}),
		retryDelay: time.Second,
	}
	p.start(numWorkers)

	return p
}

func (p *Pool) start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case <-p.stopCh:
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					id := uuid.New()
					l := p.logger.With().Int("worker_id", workerID).Str("job_id", id.String()).Logger()
					l.Debug().Msg("Running job")

					err := job()
					if errors.Is(err, ErrRetryable) {
						l.Info().Msg("Retrying job")
						time.Sleep(p.retryDelay)
						err = job()
					}
					if err != nil {
						l.Error().Err(err).Msg("Job failed")
						continue
					}
					l.Debug().Msg("Job done")
				}
			}
		}(i)
	}
}

// Run submits a job. Returns false when the pool is stopped.
func (p *Pool) Run(job Job) bool {
	// the read lock holds Stop back until the send lands, so Run never
	// races the stopCh close
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	p.jobs <- job

	return true
}

// Schedule invokes fetch on every tick and submits the returned jobs, until
// the pool stops.
func (p *Pool) Schedule(interval time.Duration, fetch func(ctx context.Context) []Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				jobs := fetch(ctx)
				cancel()
				for _, job := range jobs {
					if !p.Run(job) {
						return
					}
				}
			}
		}
	}()
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.logger.Debug().Msg("Pool shutdown")
	close(p.stopCh)
	p.wg.Wait()
}
