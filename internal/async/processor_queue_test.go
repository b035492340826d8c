package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
)

type fakeProcessor struct {
	mu    sync.Mutex
	jobs  []pipeline.Job
	gate  chan struct{}
	fail  bool
	delay time.Duration
}

func (f *fakeProcessor) Process(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.fail {
		return pipeline.Outcome{SessionID: job.SessionID}, errors.New("boom")
	}
	return pipeline.Outcome{SessionID: job.SessionID}, nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueProcessesAllJobs(t *testing.T) {
	proc := &fakeProcessor{}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(3), WithQueueSize(4))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "x"}}))
	}
	q.Shutdown(context.Background())
	assert.Equal(t, 10, proc.count())
}

func TestQueueFailuresDoNotStopWorkers(t *testing.T) {
	proc := &fakeProcessor{fail: true}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "a"}}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "b"}}))
	q.Shutdown(context.Background())
	assert.Equal(t, 2, proc.count())
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, discardLogger())
	q.Shutdown(context.Background())
	err := q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "late"}})
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Shutdown(context.Background())
}

func TestQueueBackpressureHonoursContext(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "held by worker"}}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "fills buffer"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Job: pipeline.Job{Text: "blocked"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.gate)
	q.Shutdown(context.Background())
	assert.Equal(t, 2, proc.count())
}

func TestQueueDeduplicatesPaths(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(1))

	job := Job{Job: pipeline.Job{Path: "/in/a.pdf"}}
	require.NoError(t, q.Enqueue(context.Background(), job))
	require.NoError(t, q.Enqueue(context.Background(), job))
	job.Force = true
	require.NoError(t, q.Enqueue(context.Background(), job))

	close(proc.gate)
	q.Shutdown(context.Background())
	assert.Equal(t, 2, proc.count())

	q2 := NewProcessorQueue(proc, discardLogger(), WithWorkers(1))
	require.NoError(t, q2.Enqueue(context.Background(), Job{Job: pipeline.Job{Path: "/in/a.pdf"}}))
	q2.Shutdown(context.Background())
	assert.Equal(t, 3, proc.count())
}

func (q *ProcessorQueue) claims(path string) int {
	q.ifMu.Lock()
	defer q.ifMu.Unlock()
	return q.inflight[path]
}

func TestQueueForcedJobKeepsPathClaimed(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(1))
	const path = "/in/a.pdf"

	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Path: path}}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Path: path}, Force: true}))
	assert.Equal(t, 2, q.claims(path))

	// let the first job finish while the forced one is still pending
	proc.gate <- struct{}{}
	require.Eventually(t, func() bool { return q.claims(path) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Path: path}}))
	assert.Equal(t, 1, q.claims(path), "duplicate of a forced job is dropped")

	close(proc.gate)
	q.Shutdown(context.Background())
	assert.Equal(t, 2, proc.count())
	assert.Zero(t, q.claims(path))
}

func TestQueueShutdownInterrupted(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewProcessorQueue(proc, discardLogger(), WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{Job: pipeline.Job{Text: "slow"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)
	assert.Less(t, time.Since(start), time.Second)
	close(proc.gate)
}
