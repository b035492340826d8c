package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/concurrent"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/rag"
)

// AUTO mode size bands, in characters.
const (
	LegacyMaxChars   = 10000
	SemanticMaxChars = 20000
)

// LegacyTaskID names the single whole-text task of LEGACY mode.
const LegacyTaskID = "full-text"

// Options tune one parse. Zero values take the orchestrator defaults.
type Options struct {
	MinChunkSize      int
	MaxConcurrent     int
	MaxChunksPerField int
	// Observer follows stages and tasks; may be nil.
	Observer Observer
}

// OptionsFromConfig maps the parser settings of the app config.
func OptionsFromConfig(c common.ParserConfig) Options {
	return Options{
		MinChunkSize:      c.MinChunkSize,
		MaxConcurrent:     c.MaxConcurrent,
		MaxChunksPerField: c.MaxChunksPerField,
	}
}

func (o Options) merge(def Options) Options {
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = def.MinChunkSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = def.MaxConcurrent
	}
	if o.MaxChunksPerField <= 0 {
		o.MaxChunksPerField = def.MaxChunksPerField
	}
	if o.Observer == nil {
		o.Observer = def.Observer
	}
	return o
}

// Observer follows an optimized parse. Implementations must be safe for concurrent use.
type Observer interface {
	concurrent.Observer
	rag.ChunkObserver
	StageChanged(stage constants.SessionStatus)
	ChunksReady(chunks []chunking.SemanticChunk)
}

// Result is the envelope every mode returns.
type Result struct {
	Success           bool                     `json:"success"`
	Mode              constants.ParseMode      `json:"mode"`
	ExtractedDataJSON string                   `json:"extractedDataJson,omitempty"`
	Confidence        float64                  `json:"confidence"`
	ProcessingTimeMs  int64                    `json:"processingTimeMs"`
	Error             string                   `json:"error,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
	TokensUsed        int                      `json:"tokensUsed"`
	ChunksProcessed   int                      `json:"chunksProcessed"`
	Data              fields.Map               `json:"-"`
	Chunks            []chunking.SemanticChunk `json:"-"`
}

// Orchestrator picks an execution mode for a document and runs it.
type Orchestrator struct {
	chunker   *chunking.Chunker
	extractor llm.Extractor
	scorer    *completeness.Scorer
	defaults  Options
	logger    *slog.Logger
}

func NewOrchestrator(extractor llm.Extractor, defaults Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.MaxConcurrent <= 0 {
		defaults.MaxConcurrent = concurrent.DefaultMaxConcurrent
	}
	if defaults.MaxChunksPerField <= 0 {
		defaults.MaxChunksPerField = rag.DefaultMaxChunksPerField
	}
	return &Orchestrator{
		chunker:   chunking.NewChunker(logger),
		extractor: extractor,
		scorer:    completeness.NewScorer(logger),
		defaults:  defaults,
		logger:    logger,
	}
}

// SelectMode resolves AUTO by document size. Explicit modes are returned unchanged.
func SelectMode(text string, mode constants.ParseMode) constants.ParseMode {
	if mode != constants.ModeAuto && mode != "" {
		return mode
	}
	switch n := utf8.RuneCountInString(text); {
	case n <= LegacyMaxChars:
		return constants.ModeLegacy
	case n <= SemanticMaxChars:
		return constants.ModeSemantic
	default:
		return constants.ModeConcurrent
	}
}

func invalidMode(mode constants.ParseMode) error {
	return common.NewAppError("INVALID_MODE", fmt.Sprintf("unknown parse mode %q", mode), common.ErrInvalidMode)
}

// ParseOptimized extracts targetFields from text. An empty target list means the whole
// completeness catalog. The only error is ErrInvalidMode; model failures come back as
// Success false with Error set.
func (o *Orchestrator) ParseOptimized(ctx context.Context, text string, mode constants.ParseMode, targetFields []string, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.merge(o.defaults)
	if len(targetFields) == 0 {
		targetFields = completeness.FieldNames()
	}

	selected := SelectMode(text, mode)
	switch selected {
	case constants.ModeLegacy, constants.ModeSemantic, constants.ModeRAG, constants.ModeConcurrent:
	default:
		return Result{}, invalidMode(mode)
	}
	o.logger.Info("parser.optimized.start",
		"requested_mode", mode,
		"mode", selected,
		"chars", utf8.RuneCountInString(text),
		"fields", len(targetFields),
	)

	var res Result
	switch selected {
	case constants.ModeLegacy:
		res = o.parseLegacy(ctx, text, targetFields, opts)
	case constants.ModeSemantic:
		res = o.parseSemantic(ctx, o.chunk(text, opts), targetFields, opts)
	case constants.ModeRAG:
		res = o.parseRAG(ctx, o.chunk(text, opts), targetFields, opts)
	case constants.ModeConcurrent:
		res = o.parseConcurrent(ctx, o.chunk(text, opts), targetFields, opts)
	}
	res.Mode = selected
	if res.Data == nil {
		res.Data = fields.Map{}
	}
	if res.Success {
		if opts.Observer != nil {
			opts.Observer.StageChanged(constants.StatusMerging)
		}
		js, err := res.Data.JSON()
		if err != nil {
			res.Success = false
			res.Error = fmt.Sprintf("encode extracted data: %v", err)
		} else {
			res.ExtractedDataJSON = js
		}
	}
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	if res.Success {
		o.logger.Info("parser.optimized.ok",
			"mode", selected,
			"fields", len(res.Data),
			"confidence", res.Confidence,
			"tokens", res.TokensUsed,
			"warnings", len(res.Warnings),
			"elapsed_ms", res.ProcessingTimeMs,
		)
	} else {
		o.logger.Warn("parser.optimized.failed", "mode", selected, "error", res.Error, "elapsed_ms", res.ProcessingTimeMs)
	}
	return res, nil
}

func (o *Orchestrator) chunk(text string, opts Options) []chunking.SemanticChunk {
	if opts.Observer != nil {
		opts.Observer.StageChanged(constants.StatusChunking)
	}
	chunks := o.chunker.Chunk(text, opts.MinChunkSize)
	if opts.Observer != nil {
		opts.Observer.ChunksReady(chunks)
		opts.Observer.StageChanged(constants.StatusLLMProcessing)
	}
	return chunks
}

// parseLegacy sends the whole text in one call.
func (o *Orchestrator) parseLegacy(ctx context.Context, text string, targetFields []string, opts Options) Result {
	if opts.Observer != nil {
		opts.Observer.StageChanged(constants.StatusLLMProcessing)
	}
	task := concurrent.Task{ChunkID: LegacyTaskID, Fields: targetFields, Text: text}
	if opts.Observer != nil {
		opts.Observer.TasksPlanned([]concurrent.Task{task})
	}
	tr := o.runTask(ctx, task, opts.Observer)
	res := Result{Data: tr.Data, TokensUsed: tr.TokensUsed}
	if !tr.Success {
		res.Error = tr.Error
		return res
	}
	res.Success = true
	res.Confidence = 1
	return res
}

// parseSemantic walks the relevant chunks one at a time, highest priority first. Earlier
// chunks win on conflict, and chunks whose fields are all resolved are skipped.
func (o *Orchestrator) parseSemantic(ctx context.Context, chunks []chunking.SemanticChunk, targetFields []string, opts Options) Result {
	ordered := chunking.GetRelevantChunksForFields(chunks, targetFields)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Metadata.Priority > ordered[j].Metadata.Priority
	})

	tasks := make([]concurrent.Task, len(ordered))
	for i, c := range ordered {
		tasks[i] = concurrent.Task{
			Index:   i,
			ChunkID: c.ID,
			Title:   c.Metadata.Title,
			Type:    c.Metadata.Type,
			Fields:  c.RelevantFields(targetFields),
			Text:    c.Text,
		}
	}
	if opts.Observer != nil {
		opts.Observer.TasksPlanned(tasks)
	}

	res := Result{Data: fields.Map{}, Chunks: chunks, Success: true}
	attempted, succeeded := 0, 0
	var firstErr string
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("stopped before %s: %v", task.ChunkID, err))
			break
		}
		var pending []string
		for _, f := range task.Fields {
			if !res.Data.Has(f) {
				pending = append(pending, f)
			}
		}
		if len(pending) == 0 {
			if opts.Observer != nil {
				opts.Observer.TaskFinished(concurrent.TaskResult{Index: task.Index, ChunkID: task.ChunkID, Success: true, Skipped: true})
			}
			continue
		}
		task.Fields = pending
		attempted++
		tr := o.runTask(ctx, task, opts.Observer)
		res.TokensUsed += tr.TokensUsed
		if !tr.Success {
			if firstErr == "" {
				firstErr = tr.Error
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", task.ChunkID, tr.Error))
			continue
		}
		succeeded++
		res.Data.FillMissing(tr.Data)
	}
	res.ChunksProcessed = attempted
	res.Confidence = ratio(succeeded, attempted)
	if len(tasks) == 0 {
		res.Warnings = append(res.Warnings, "no chunk is relevant to the requested fields")
	}
	switch {
	case ctx.Err() != nil:
		res.Success = false
		res.Error = ctx.Err().Error()
	case attempted > 0 && succeeded == 0:
		res.Success = false
		res.Error = firstErr
	}
	return res
}

func (o *Orchestrator) parseRAG(ctx context.Context, chunks []chunking.SemanticChunk, targetFields []string, opts Options) Result {
	ropts := rag.Options{
		MaxChunksPerField: opts.MaxChunksPerField,
		MinChunkSize:      opts.MinChunkSize,
	}
	if opts.Observer != nil {
		ropts.Observer = opts.Observer
	}
	p := rag.NewParser(o.chunker, o.extractor, ropts, o.logger)
	out, err := p.ParseChunks(ctx, chunks, targetFields)
	res := Result{
		Data:            out.Data,
		Chunks:          chunks,
		Warnings:        out.Warnings,
		TokensUsed:      out.Usage.Total(),
		ChunksProcessed: len(chunks),
		Confidence:      out.Confidence(),
		Success:         true,
	}
	switch {
	case err != nil:
		res.Success = false
		res.Error = err.Error()
	case out.ModelCalls > 0 && out.FailedCalls == out.ModelCalls && len(out.Data) == 0:
		res.Success = false
		res.Error = "every model call failed"
	}
	return res
}

func (o *Orchestrator) parseConcurrent(ctx context.Context, chunks []chunking.SemanticChunk, targetFields []string, opts Options) Result {
	var obs concurrent.Observer
	if opts.Observer != nil {
		obs = opts.Observer
	}
	out := concurrent.NewExtractor(o.chunker, o.extractor, opts.MinChunkSize, o.logger).
		ParseChunks(ctx, chunks, targetFields, opts.MaxConcurrent, obs)

	res := Result{
		Data:            out.Data,
		Chunks:          chunks,
		TokensUsed:      out.TotalTokensUsed,
		ChunksProcessed: len(out.Results),
		Confidence:      out.Confidence(),
		Success:         true,
	}
	for _, tr := range out.Results {
		if !tr.Success {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", tr.ChunkID, tr.Error))
		}
	}
	if len(out.Results) == 0 {
		res.Warnings = append(res.Warnings, "no chunk is relevant to the requested fields")
	} else if out.Succeeded() == 0 {
		res.Success = false
		res.Error = out.Results[0].Error
	}
	return res
}

func (o *Orchestrator) runTask(ctx context.Context, t concurrent.Task, obs Observer) concurrent.TaskResult {
	if obs != nil {
		obs.TaskStarted(t)
	}
	start := time.Now()
	tr := concurrent.TaskResult{Index: t.Index, ChunkID: t.ChunkID, Fields: t.Fields}
	var err error
	if o.extractor == nil {
		err = errors.New("no model extractor configured")
	} else if err = ctx.Err(); err == nil {
		var out llm.ExtractResult
		out, err = o.extractor.Extract(ctx, llm.ExtractRequest{Fields: t.Fields, Context: t.Text, Hint: concurrent.TaskHint(t)})
		tr.TokensUsed = out.Usage.Total()
		tr.Data = out.Data
	}
	tr.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		tr.Data = nil
		tr.Error = err.Error()
		o.logger.Warn("parser.task.failed", "chunk_id", t.ChunkID, "error", err, "elapsed_ms", tr.DurationMs)
	} else {
		tr.Success = true
	}
	if obs != nil {
		obs.TaskFinished(tr)
	}
	return tr
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
