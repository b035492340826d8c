package concurrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
)

// DefaultMaxConcurrent bounds in-flight model calls when the caller gives no limit.
const DefaultMaxConcurrent = 3

// Task is one model call over one chunk, scoped to the requested fields the chunk is
// relevant to. Index is the submission order.
type Task struct {
	Index   int
	ChunkID string
	Title   string
	Type    chunking.ChunkType
	Fields  []string
	Text    string
}

type TaskResult struct {
	Index      int        `json:"index"`
	ChunkID    string     `json:"chunkId"`
	Fields     []string   `json:"fields"`
	Data       fields.Map `json:"data,omitempty"`
	Success    bool       `json:"success"`
	Skipped    bool       `json:"skipped,omitempty"`
	Error      string     `json:"error,omitempty"`
	TokensUsed int        `json:"tokensUsed"`
	DurationMs int64      `json:"durationMs"`
}

type Result struct {
	Data            fields.Map               `json:"data"`
	Results         []TaskResult             `json:"results"`
	TotalTokensUsed int                      `json:"totalTokensUsed"`
	TotalTimeMs     int64                    `json:"totalTimeMs"`
	Chunks          []chunking.SemanticChunk `json:"-"`
}

// Succeeded counts the tasks whose model call succeeded.
func (r Result) Succeeded() int {
	n := 0
	for _, tr := range r.Results {
		if tr.Success {
			n++
		}
	}
	return n
}

// Confidence is the fraction of attempted tasks that succeeded, 0 when none ran.
func (r Result) Confidence() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Succeeded()) / float64(len(r.Results))
}

// Observer follows task state. TasksPlanned is called once before any task starts; the
// other methods may be called from several goroutines.
type Observer interface {
	TasksPlanned(tasks []Task)
	TaskStarted(t Task)
	TaskFinished(r TaskResult)
}

// Extractor fans chunk tasks out to the model with a bounded number in flight.
type Extractor struct {
	chunker      *chunking.Chunker
	extractor    llm.Extractor
	minChunkSize int
	logger       *slog.Logger
}

func NewExtractor(chunker *chunking.Chunker, extractor llm.Extractor, minChunkSize int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker = chunking.NewChunker(logger)
	}
	return &Extractor{chunker: chunker, extractor: extractor, minChunkSize: minChunkSize, logger: logger}
}

// BuildTasks creates one task per chunk relevant to at least one of fieldNames, in chunk order.
func BuildTasks(chunks []chunking.SemanticChunk, fieldNames []string) []Task {
	var tasks []Task
	for _, c := range chunks {
		rel := c.RelevantFields(fieldNames)
		if len(rel) == 0 {
			continue
		}
		tasks = append(tasks, Task{
			Index:   len(tasks),
			ChunkID: c.ID,
			Title:   c.Metadata.Title,
			Type:    c.Metadata.Type,
			Fields:  rel,
			Text:    c.Text,
		})
	}
	return tasks
}

// Parse chunks text and runs the chunk tasks. It does not fail: task errors, including a
// cancelled context, are reported per task.
func (e *Extractor) Parse(ctx context.Context, text string, fieldNames []string, maxConcurrent int) Result {
	return e.ParseChunks(ctx, e.chunker.Chunk(text, e.minChunkSize), fieldNames, maxConcurrent, nil)
}

// ParseChunks runs the tasks of already chunked text. obs may be nil.
func (e *Extractor) ParseChunks(ctx context.Context, chunks []chunking.SemanticChunk, fieldNames []string, maxConcurrent int, obs Observer) Result {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	start := time.Now()
	tasks := BuildTasks(chunks, fieldNames)
	results := make([]TaskResult, len(tasks))

	e.logger.Info("concurrent.start", "chunks", len(chunks), "tasks", len(tasks), "max_concurrent", maxConcurrent)
	if obs != nil {
		obs.TasksPlanned(tasks)
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = e.run(ctx, t, obs)
			return nil // task failures never cancel siblings
		})
	}
	_ = g.Wait()

	res := Result{Data: MergeResults(results), Results: results, Chunks: chunks}
	for _, r := range results {
		res.TotalTokensUsed += r.TokensUsed
	}
	res.TotalTimeMs = time.Since(start).Milliseconds()

	e.logger.Info("concurrent.done",
		"tasks", len(tasks),
		"succeeded", res.Succeeded(),
		"fields", len(res.Data),
		"tokens", res.TotalTokensUsed,
		"elapsed_ms", res.TotalTimeMs,
	)
	return res
}

var errNoExtractor = errors.New("no model extractor configured")

func (e *Extractor) run(ctx context.Context, t Task, obs Observer) TaskResult {
	if obs != nil {
		obs.TaskStarted(t)
	}
	start := time.Now()
	tr := TaskResult{Index: t.Index, ChunkID: t.ChunkID, Fields: t.Fields}

	var err error
	if e.extractor == nil {
		err = errNoExtractor
	} else if err = ctx.Err(); err == nil {
		var out llm.ExtractResult
		out, err = e.extractor.Extract(ctx, llm.ExtractRequest{
			Fields:  t.Fields,
			Context: t.Text,
			Hint:    TaskHint(t),
		})
		tr.TokensUsed = out.Usage.Total()
		tr.Data = out.Data
	}
	tr.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		tr.Data = nil
		tr.Error = err.Error()
		e.logger.Warn("concurrent.task.failed", "chunk_id", t.ChunkID, "error", err, "elapsed_ms", tr.DurationMs)
	} else {
		tr.Success = true
		e.logger.Debug("concurrent.task.ok", "chunk_id", t.ChunkID, "fields", len(tr.Data), "elapsed_ms", tr.DurationMs)
	}
	if obs != nil {
		obs.TaskFinished(tr)
	}
	return tr
}

// TaskHint describes the text of t to the model.
func TaskHint(t Task) string {
	if t.Type == "" {
		return "The full text of a contract."
	}
	if t.Title != "" {
		return fmt.Sprintf("One %s section of a contract, titled %q.", t.Type, t.Title)
	}
	return fmt.Sprintf("One %s section of a contract.", t.Type)
}

// MergeResults folds successful task data in submission order. The first task to hold a
// value for a field wins, whatever order the tasks completed in.
func MergeResults(results []TaskResult) fields.Map {
	ordered := append([]TaskResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	merged := fields.Map{}
	for _, r := range ordered {
		if !r.Success {
			continue
		}
		merged.FillMissing(r.Data)
	}
	return merged
}
