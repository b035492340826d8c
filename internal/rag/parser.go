package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
)

// Options tune a Parser. Zero values take the package defaults.
type Options struct {
	MaxChunksPerField int
	MinChunkSize      int
	Observer          ChunkObserver
}

// ChunkObserver follows chunks through a parse. Every chunk is started once and finished
// once; a chunk finishes when the last model call reading it returns, or right after
// planning when no call reads it.
type ChunkObserver interface {
	ChunkStarted(chunkID string)
	ChunkFinished(chunkID string, err error)
}

var errNoModel = errors.New("no model configured")

// Parser resolves fields by ranking chunks per field: confident fields are read straight
// from the text and the rest go to the model in grouped calls.
type Parser struct {
	chunker   *chunking.Chunker
	extractor llm.Extractor
	opts      Options
	logger    *slog.Logger
}

func NewParser(chunker *chunking.Chunker, extractor llm.Extractor, opts Options, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker = chunking.NewChunker(logger)
	}
	if opts.MaxChunksPerField <= 0 {
		opts.MaxChunksPerField = DefaultMaxChunksPerField
	}
	return &Parser{chunker: chunker, extractor: extractor, opts: opts, logger: logger}
}

// Result is the outcome of one RAG parse. Each requested field is in exactly one of the
// three groups; Data only holds fields that resolved to a value.
type Result struct {
	Data        fields.Map
	Plans       []ExtractionPlan
	Direct      []string
	Hybrid      []string
	LLM         []string
	Escalated   []string
	Chunks      []chunking.SemanticChunk
	Usage       llm.Usage
	ModelCalls  int
	FailedCalls int
	Warnings    []string
}

// Confidence is the mean plan confidence of the fields that resolved, or 0.
func (r Result) Confidence() float64 {
	sum, n := 0.0, 0
	for _, p := range r.Plans {
		if r.Data.Has(p.Field) {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Parse chunks text and resolves fieldNames. Model failures become warnings; the only
// error is a cancelled context.
func (p *Parser) Parse(ctx context.Context, text string, fieldNames []string) (Result, error) {
	chunks := p.chunker.Chunk(text, p.opts.MinChunkSize)
	return p.ParseChunks(ctx, chunks, fieldNames)
}

// ParseChunks is Parse over already chunked text.
func (p *Parser) ParseChunks(ctx context.Context, chunks []chunking.SemanticChunk, fieldNames []string) (Result, error) {
	start := time.Now()
	res := Result{Data: fields.Map{}, Chunks: chunks}
	res.Plans = CreateExtractionPlans(chunks, fieldNames, p.opts.MaxChunksPerField)

	var escalated []ExtractionPlan
	var modelPlans []ExtractionPlan
	for _, plan := range res.Plans {
		switch plan.Strategy {
		case StrategyDirect:
			res.Direct = append(res.Direct, plan.Field)
			if v, ok := ResolveDirect(plan.Field, plan.Chunks); ok {
				res.Data[plan.Field] = v
			}
		case StrategyHybrid:
			res.Hybrid = append(res.Hybrid, plan.Field)
			if v, ok := ResolveDirect(plan.Field, plan.Chunks); ok {
				res.Data[plan.Field] = v
				continue
			}
			escalated = append(escalated, plan)
		default:
			res.LLM = append(res.LLM, plan.Field)
			modelPlans = append(modelPlans, plan)
		}
	}
	for _, plan := range escalated {
		res.Escalated = append(res.Escalated, plan.Field)
	}

	p.logger.Info("rag.plan.built",
		"chunks", len(chunks),
		"fields", len(fieldNames),
		"direct", len(res.Direct),
		"hybrid", len(res.Hybrid),
		"llm", len(res.LLM),
		"escalated", len(escalated),
	)

	var hybridChunks, llmChunks []chunking.SemanticChunk
	if len(escalated) > 0 {
		hybridChunks = hybridContext(escalated)
	}
	if len(modelPlans) > 0 {
		llmChunks = p.llmContext(modelPlans, chunks)
	}
	track := newChunkTracker(p.opts.Observer, chunks, hybridChunks, llmChunks)

	if len(escalated) > 0 {
		track.done(hybridChunks, p.callGroup(ctx, &res, "hybrid", res.Escalated, hybridChunks))
	}
	if len(modelPlans) > 0 {
		track.done(llmChunks, p.callGroup(ctx, &res, "llm", res.LLM, llmChunks))
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("rag parse: %w", err)
	}
	p.logger.Info("rag.parse.ok",
		"resolved", len(res.Data),
		"model_calls", res.ModelCalls,
		"failed_calls", res.FailedCalls,
		"tokens", res.Usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// callGroup issues one grouped model call and merges the group's fields. A failed call
// leaves the group empty, records a warning and is returned.
func (p *Parser) callGroup(ctx context.Context, res *Result, group string, fieldNames []string, chunks []chunking.SemanticChunk) error {
	if p.extractor == nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s group skipped: %v", group, errNoModel))
		return errNoModel
	}
	res.ModelCalls++
	out, err := p.extractor.Extract(ctx, llm.ExtractRequest{
		Fields:  fieldNames,
		Context: joinChunks(chunks),
		Hint:    "Excerpts of one contract, selected for the listed fields.",
	})
	res.Usage = res.Usage.Add(out.Usage)
	if err != nil {
		res.FailedCalls++
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s group failed: %v", group, err))
		p.logger.Warn("rag.group.failed", "group", group, "fields", len(fieldNames), "error", err)
		return err
	}
	for _, f := range fieldNames {
		if v, ok := out.Data[f]; ok && fields.HasValue(v) {
			res.Data[f] = v
		}
	}
	return nil
}

// chunkTracker reports chunk progress to an optional observer. Chunks no model call reads
// finish as soon as the tracker is built.
type chunkTracker struct {
	obs     ChunkObserver
	pending map[string]int
}

func newChunkTracker(obs ChunkObserver, all []chunking.SemanticChunk, groups ...[]chunking.SemanticChunk) *chunkTracker {
	t := &chunkTracker{obs: obs, pending: map[string]int{}}
	if obs == nil {
		return t
	}
	for _, g := range groups {
		for _, c := range g {
			t.pending[c.ID]++
		}
	}
	for _, c := range all {
		obs.ChunkStarted(c.ID)
		if t.pending[c.ID] == 0 {
			obs.ChunkFinished(c.ID, nil)
		}
	}
	return t
}

// done settles one model call over chunks.
func (t *chunkTracker) done(chunks []chunking.SemanticChunk, err error) {
	if t.obs == nil {
		return
	}
	for _, c := range chunks {
		t.pending[c.ID]--
		if t.pending[c.ID] == 0 {
			t.obs.ChunkFinished(c.ID, err)
		}
	}
}

// hybridContext takes each escalated field's best two chunks, in document order.
func hybridContext(plans []ExtractionPlan) []chunking.SemanticChunk {
	seen := map[string]bool{}
	var out []chunking.SemanticChunk
	for _, plan := range plans {
		for i, rc := range plan.Chunks {
			if i >= hybridChunkCap {
				break
			}
			if !seen[rc.Chunk.ID] {
				seen[rc.Chunk.ID] = true
				out = append(out, rc.Chunk)
			}
		}
	}
	sortByPosition(out)
	return out
}

// llmContext takes the union of the planned chunks ranked by their best score, capped at
// MaxChunksPerField. With no scored chunk it falls back to the highest priority chunks.
func (p *Parser) llmContext(plans []ExtractionPlan, all []chunking.SemanticChunk) []chunking.SemanticChunk {
	best := map[string]float64{}
	byID := map[string]chunking.SemanticChunk{}
	var order []string
	for _, plan := range plans {
		for _, rc := range plan.Chunks {
			if _, ok := byID[rc.Chunk.ID]; !ok {
				byID[rc.Chunk.ID] = rc.Chunk
				order = append(order, rc.Chunk.ID)
			}
			if rc.Score > best[rc.Chunk.ID] {
				best[rc.Chunk.ID] = rc.Score
			}
		}
	}

	var out []chunking.SemanticChunk
	if len(order) == 0 {
		out = append(out, all...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Metadata.Priority > out[j].Metadata.Priority })
	} else {
		sort.SliceStable(order, func(i, j int) bool { return best[order[i]] > best[order[j]] })
		for _, id := range order {
			out = append(out, byID[id])
		}
	}
	if len(out) > p.opts.MaxChunksPerField {
		out = out[:p.opts.MaxChunksPerField]
	}
	sortByPosition(out)
	return out
}

func sortByPosition(chunks []chunking.SemanticChunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Position.Start < chunks[j].Position.Start })
}

func joinChunks(chunks []chunking.SemanticChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
