package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/model"
)

// Pool submission errors.
var (
	ErrQueueFull   = errors.New("query queue is full")
	ErrPoolStopped = errors.New("pool is stopped")
)

// Runner executes one query end to end. The agent pipeline implements it.
type Runner interface {
	Execute(ctx context.Context, queryID, query string) (*model.FinanceState, error)
}

// Archiver persists finished runs. Implementations must be safe for
// concurrent use; archiving failures are logged, never propagated.
type Archiver interface {
	ArchiveRun(ctx context.Context, job Job) error
}

// Pool runs queries concurrently over an in-memory job channel. Each query
// is sequential internally; concurrency exists only across queries.
type Pool struct {
	cfg      config.QueueConfig
	runner   Runner
	archiver Archiver
	logger   *slog.Logger

	jobs   chan *Job
	stopCh chan struct{}

	mu        sync.RWMutex
	records   map[string]*Job
	cancels   map[string]context.CancelFunc
	active    int
	processed int
	started   bool
	stopped   bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures optional pool collaborators.
type Option func(*Pool)

// WithArchiver attaches a run archive; finished jobs are handed to it.
func WithArchiver(a Archiver) Option {
	return func(p *Pool) { p.archiver = a }
}

// NewPool creates a pool sized by cfg. Start must be called before Enqueue.
func NewPool(cfg config.QueueConfig, runner Runner, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
		jobs:    make(chan *Job, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		records: make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start spawns the worker goroutines. Duplicate calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		p.logger.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.Info("Starting worker pool", "worker_count", p.cfg.WorkerCount, "queue_size", p.cfg.QueueSize)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
}

// Stop stops accepting jobs and waits for in-flight queries to finish,
// bounded by the configured graceful shutdown timeout. Pending jobs left
// in the queue are marked cancelled.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stopCh)
	})

	p.logger.Info("Stopping worker pool gracefully")
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.logger.Warn("Graceful shutdown timeout elapsed with queries still running")
	}

	p.drainPending()
}

// Enqueue submits a query and returns its job id immediately.
func (p *Pool) Enqueue(query string) (string, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Query:       query,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", ErrPoolStopped
	}
	p.records[job.ID] = job
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		return job.ID, nil
	default:
		p.mu.Lock()
		delete(p.records, job.ID)
		p.mu.Unlock()
		return "", ErrQueueFull
	}
}

// Job returns a snapshot of the job with the given id.
func (p *Pool) Job(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.records[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Cancel cancels the job with the given id: a running job has its context
// cancelled, a pending one is marked cancelled and skipped when dequeued.
// Returns false when the id is unknown or the job already finished.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.records[id]
	if !ok || job.Finished() {
		return false
	}
	if cancel, ok := p.cancels[id]; ok {
		cancel()
		return true
	}
	job.Status = StatusCancelled
	job.FinishedAt = time.Now()
	return true
}

// Health reports a point-in-time view of the pool.
func (p *Pool) Health() PoolHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolHealth{
		IsHealthy:     p.started && !p.stopped,
		TotalWorkers:  p.cfg.WorkerCount,
		ActiveWorkers: p.active,
		QueueDepth:    len(p.jobs),
		JobsProcessed: p.processed,
	}
}

// run is the worker loop: take a job, process it, repeat until stopped.
func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", workerID)
	log.Info("Worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case job := <-p.jobs:
			p.process(ctx, log, job)
		}
	}
}

// process runs one job under the per-query timeout and records its outcome.
func (p *Pool) process(ctx context.Context, log *slog.Logger, job *Job) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	p.mu.Lock()
	if job.Status != StatusPending { // cancelled while queued
		p.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	p.cancels[job.ID] = cancel
	p.active++
	p.mu.Unlock()

	log.Info("Processing query", "job_id", job.ID)
	state, err := p.runner.Execute(runCtx, job.ID, job.Query)

	p.mu.Lock()
	delete(p.cancels, job.ID)
	p.active--
	p.processed++
	job.State = state
	job.FinishedAt = time.Now()
	switch {
	case err == nil:
		job.Status = StatusCompleted
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
		job.Error = err.Error()
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
	}
	snapshot := *job
	p.mu.Unlock()

	if err != nil {
		log.Warn("Query finished abnormally", "job_id", job.ID, "status", snapshot.Status, "error", err)
	} else {
		log.Info("Query completed", "job_id", job.ID, "duration", snapshot.FinishedAt.Sub(snapshot.StartedAt))
	}
	p.archive(snapshot)
}

// archive hands a finished job to the configured archiver, if any.
func (p *Pool) archive(job Job) {
	if p.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.archiver.ArchiveRun(ctx, job); err != nil {
		p.logger.Error("Failed to archive run", "job_id", job.ID, "error", err)
	}
}

// drainPending marks jobs still sitting in the queue after shutdown.
func (p *Pool) drainPending() {
	for {
		select {
		case job := <-p.jobs:
			p.mu.Lock()
			if job.Status == StatusPending {
				job.Status = StatusCancelled
				job.Error = "pool stopped before the query started"
				job.FinishedAt = time.Now()
			}
			p.mu.Unlock()
		default:
			return
		}
	}
}
