// Package ingest discovers contract documents on disk and submits them for parsing.
package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/contracts-parser/internal/async"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	Deduplicated bool
	HashHex      string
	FileExt      string
	SubmittedAt  time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the daemon depends on.
type Ingestor interface {
	// IngestPath submits a single path.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory submits all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

// Submitter accepts parse jobs; *async.ProcessorQueue satisfies it.
type Submitter interface {
	Enqueue(ctx context.Context, job async.Job) error
}
