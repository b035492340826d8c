package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/async"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (r *recordingSubmitter) Enqueue(_ context.Context, job async.Job) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubmitter) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.Path
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestIngestPathDeduplicatesByContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "copy-of-a.txt")
	writeFile(t, a, "合同编号：HT-1")
	writeFile(t, b, "合同编号：HT-1")

	sub := &recordingSubmitter{}
	ing := NewFSIngestor(sub, constants.ModeRAG, discardLogger())

	r1, err := ing.IngestPath(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, r1.Deduplicated)
	assert.Len(t, r1.HashHex, 64)

	r2, err := ing.IngestPath(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, r2.Deduplicated)

	require.Len(t, sub.jobs, 1)
	assert.Equal(t, a, sub.jobs[0].Path)
	assert.Equal(t, constants.ModeRAG, sub.jobs[0].Mode)
}

func TestIngestPathRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "scan.png")
	writeFile(t, p, "x")
	_, err := NewFSIngestor(&recordingSubmitter{}, constants.ModeAuto, discardLogger()).IngestPath(context.Background(), p)
	assert.Error(t, err)
}

func TestIngestPathEnqueueFailureAllowsRetry(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.md")
	writeFile(t, p, "# 合同")
	sub := &recordingSubmitter{err: async.ErrQueueClosed}
	ing := NewFSIngestor(sub, constants.ModeAuto, discardLogger())

	_, err := ing.IngestPath(context.Background(), p)
	assert.True(t, errors.Is(err, async.ErrQueueClosed))

	sub.err = nil
	r, err := ing.IngestPath(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "pdf-bytes")
	writeFile(t, filepath.Join(dir, "sub", "b.docx"), "docx-bytes")
	writeFile(t, filepath.Join(dir, "sub", "dup.pdf"), "pdf-bytes")
	writeFile(t, filepath.Join(dir, "notes.png"), "png")
	writeFile(t, filepath.Join(dir, "~$b.docx"), "lock")
	writeFile(t, filepath.Join(dir, ".hidden", "c.txt"), "hidden")

	sub := &recordingSubmitter{}
	results, stats, err := NewFSIngestor(sub, constants.ModeAuto, discardLogger()).IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(0), stats.Failed)
	assert.Len(t, sub.paths(), 2)
}

func TestStartWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "1")
	writeFile(t, filepath.Join(dir, "nested", "b.txt"), "2")
	writeFile(t, filepath.Join(dir, "c.jpg"), "3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Logger: discardLogger()})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case p := <-events:
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatal("initial scan did not emit")
		}
	}
	sort.Strings(got)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "nested", "b.txt")}, got)
}

func TestStartWatcherEmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, Debounce: 20 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)

	target := filepath.Join(dir, "new.docx")
	writeFile(t, target, "docx")
	writeFile(t, filepath.Join(dir, "ignored.xlsx"), "x")

	select {
	case p := <-events:
		assert.Equal(t, target, p)
	case <-time.After(3 * time.Second):
		t.Fatal("no event for new file")
	}
}

func TestStartWatcherNoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{Logger: discardLogger()})
	assert.Error(t, err)
}

func TestRunSubmitsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "甲方")

	sub := &recordingSubmitter{}
	ing := NewFSIngestor(sub, constants.ModeAuto, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Logger: discardLogger()}, ing)
	}()

	require.Eventually(t, func() bool { return len(sub.paths()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
