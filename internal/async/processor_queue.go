package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
)

const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
	DefaultProcessTimeout = 5 * time.Minute
)

type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.RWMutex
	closed   bool
	inflight map[string]int
	ifMu     sync.Mutex
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// OptionsFromConfig maps the queue settings of the app config.
func OptionsFromConfig(c common.QueueConfig) []Option {
	return []Option{WithWorkers(c.Workers), WithQueueSize(c.Size), WithProcessTimeout(c.ProcessTimeout)}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:     proc,
		logger:   logger,
		workers:  DefaultWorkers,
		timeout:  DefaultProcessTimeout,
		ch:       make(chan Job, DefaultQueueSize),
		inflight: make(map[string]int),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	defer q.release(job)
	ctx, cancel := context.WithTimeout(common.WithRequestID(context.Background(), job.TraceID), q.timeout)
	defer cancel()

	start := time.Now()
	out, err := q.proc.Process(ctx, job.Job)
	if err != nil {
		q.logger.Error("queue.job.failed",
			"worker_id", workerID,
			"trace_id", job.TraceID,
			"session_id", out.SessionID,
			"file", job.Name(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	q.logger.Info("queue.job.ok",
		"worker_id", workerID,
		"trace_id", job.TraceID,
		"session_id", out.SessionID,
		"file", job.Name(),
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// claim counts a path job as queued. It reports false when the path is already queued or
// running and the job is not forced.
func (q *ProcessorQueue) claim(job Job) bool {
	if job.Path == "" {
		return true
	}
	q.ifMu.Lock()
	defer q.ifMu.Unlock()
	if q.inflight[job.Path] > 0 && !job.Force {
		return false
	}
	q.inflight[job.Path]++
	return true
}

func (q *ProcessorQueue) release(job Job) {
	if job.Path == "" {
		return
	}
	q.ifMu.Lock()
	if q.inflight[job.Path]--; q.inflight[job.Path] <= 0 {
		delete(q.inflight, job.Path)
	}
	q.ifMu.Unlock()
}

// Enqueue hands job to the workers. A full queue blocks the caller until a slot frees up
// or ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "file", job.Name())
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	if !q.claim(job) {
		q.logger.Info("queue.enqueue.duplicate", "path", job.Path)
		return nil
	}

	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueue.ok", "trace_id", job.TraceID, "file", job.Name(), "force", job.Force)
		return nil
	default:
	}
	q.logger.Warn("queue.enqueue.backpressure", "trace_id", job.TraceID, "file", job.Name())
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueue.ok", "trace_id", job.TraceID, "file", job.Name(), "force", job.Force)
		return nil
	case <-ctx.Done():
		q.release(job)
		return ctx.Err()
	}
}

// Pending reports the number of jobs waiting for a worker.
func (q *ProcessorQueue) Pending() int {
	return len(q.ch)
}

// Shutdown stops accepting jobs and waits for queued ones to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.ok")
	}
}
