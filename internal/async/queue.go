// Package async runs pipeline jobs on a bounded worker pool.
package async

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job wraps a pipeline job with queueing metadata.
type Job struct {
	pipeline.Job
	Force   bool // enqueue even if the same path is already queued or running
	TraceID string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is the work each queued job runs.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error)
}
