package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/async"
	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
)

// FSIngestor reads from the local filesystem and submits each new document once. Files
// are deduplicated by content hash for the lifetime of the ingestor.
type FSIngestor struct {
	Submit Submitter
	Mode   constants.ParseMode
	Logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // hash hex -> first path
}

func NewFSIngestor(submit Submitter, mode constants.ParseMode, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Submit: submit, Mode: mode, Logger: logger, seen: make(map[string]string)}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	sum, err := hashFile(abs)
	if err != nil {
		i.Logger.Warn("ingest.hash.failed", "path", abs, "error", err)
		return out, err
	}
	out = IngestionResult{SourcePath: abs, HashHex: sum, FileExt: ext}

	i.mu.Lock()
	first, dup := i.seen[sum]
	if !dup {
		i.seen[sum] = abs
	}
	i.mu.Unlock()
	if dup {
		out.Deduplicated = true
		i.Logger.Info("ingest.path.duplicate", "path", abs, "first_path", first)
		return out, nil
	}

	out.SubmittedAt = time.Now().UTC()
	job := async.Job{Job: pipeline.Job{Path: abs, Mode: i.Mode, SubmittedAt: out.SubmittedAt}}
	if err := i.Submit.Enqueue(ctx, job); err != nil {
		i.mu.Lock()
		delete(i.seen, sum)
		i.mu.Unlock()
		return out, fmt.Errorf("enqueue: %w", err)
	}
	i.Logger.Info("ingest.path.submitted", "path", abs, "hash", sum[:12])
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || isTempFile(path) || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.Logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
