package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of work executed by the pool
type Job struct {
	ID string
	Fn func(context.Context) error
}

// Pool runs jobs on a bounded set of goroutines. Every job receives the
// context it was submitted with.
type Pool struct {
	name       string
	maxWorkers int
	queueSize  int
	jobs       chan queuedJob
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	activeWorkers atomic.Int32
	submitted     atomic.Uint64
	completed     atomic.Uint64
	failed        atomic.Uint64
	rejected      atomic.Uint64
}

type queuedJob struct {
	ctx  context.Context
	job  Job
	done chan<- error
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New creates a pool and starts its workers
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		jobs:       make(chan queuedJob, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Debug("Worker pool started",
		zap.String("pool", p.name),
		zap.Int("max_workers", p.maxWorkers),
		zap.Int("queue_size", p.queueSize))

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case qj := <-p.jobs:
			err := p.execute(id, qj)
			if qj.done != nil {
				qj.done <- err
			}
		}
	}
}

func (p *Pool) execute(workerID int, qj queuedJob) error {
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)

	start := time.Now()
	err := p.safeExecute(qj)
	duration := time.Since(start)

	if err != nil {
		p.failed.Add(1)
		p.logger.Debug("Job failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("job_id", qj.job.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		p.completed.Add(1)
		p.logger.Debug("Job completed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("job_id", qj.job.ID),
			zap.Duration("duration", duration))
	}
	return err
}

// safeExecute runs a job, converting a panic into an error
func (p *Pool) safeExecute(qj queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", qj.job.ID, r)
			p.logger.Error("Job panic recovered",
				zap.String("pool", p.name),
				zap.String("job_id", qj.job.ID),
				zap.Any("panic", r))
		}
	}()

	if err := qj.ctx.Err(); err != nil {
		return err
	}
	return qj.job.Fn(qj.ctx)
}

// Submit queues a job, blocking until there is room, the pool stops or ctx
// is done. The returned channel receives the job's result exactly once.
func (p *Pool) Submit(ctx context.Context, job Job) (<-chan error, error) {
	done := make(chan error, 1)
	qj := queuedJob{ctx: ctx, job: job, done: done}

	select {
	case <-p.stopChan:
		p.rejected.Add(1)
		return nil, fmt.Errorf("worker pool '%s' is stopped", p.name)
	default:
	}

	select {
	case <-p.stopChan:
		p.rejected.Add(1)
		return nil, fmt.Errorf("worker pool '%s' is stopped", p.name)
	case <-ctx.Done():
		p.rejected.Add(1)
		return nil, ctx.Err()
	case p.jobs <- qj:
		p.submitted.Add(1)
		return done, nil
	}
}

// Run submits every job and waits for all of them. Results are returned in
// job order; a job that could not be submitted reports the submit error.
func (p *Pool) Run(ctx context.Context, jobs []Job) []error {
	results := make([]error, len(jobs))
	waits := make([]<-chan error, len(jobs))

	for i, job := range jobs {
		done, err := p.Submit(ctx, job)
		if err != nil {
			results[i] = err
			continue
		}
		waits[i] = done
	}

	for i, done := range waits {
		if done != nil {
			results[i] = <-done
		}
	}
	return results
}

// drain fails every job still queued once the workers are gone
func (p *Pool) drain() {
	for {
		select {
		case qj := <-p.jobs:
			p.rejected.Add(1)
			if qj.done != nil {
				qj.done <- fmt.Errorf("worker pool '%s' stopped before job %s ran", p.name, qj.job.ID)
			}
		default:
			return
		}
	}
}

// Stop stops the workers once they finish their current job. Jobs still
// queued fail without running.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			p.drain()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Debug("Worker pool stopped", zap.String("pool", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("Worker pool stop timeout", zap.String("pool", p.name))
		}
	})
	return err
}

// Stats returns current worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Name:          p.name,
		MaxWorkers:    p.maxWorkers,
		ActiveWorkers: int(p.activeWorkers.Load()),
		QueueSize:     p.queueSize,
		QueuedJobs:    len(p.jobs),
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Rejected:      p.rejected.Load(),
	}
}

// Stats represents worker pool statistics
type Stats struct {
	Name          string
	MaxWorkers    int
	ActiveWorkers int
	QueueSize     int
	QueuedJobs    int
	Submitted     uint64
	Completed     uint64
	Failed        uint64
	Rejected      uint64
}

// SuccessRate returns the job success rate as a percentage
func (s Stats) SuccessRate() float64 {
	if s.Submitted == 0 {
		return 100.0
	}
	return (float64(s.Completed) / float64(s.Submitted)) * 100.0
}
