package parser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/concurrent"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/llm/llmtest"
)

const contract = `技术服务合同
合同编号：HT-2024-001
甲方：北京星辰科技有限公司
乙方：上海云帆信息技术有限公司
第二条 合同金额及支付方式
本合同总金额为人民币500,000元（含税），增值税税率6%。
第三条 合同期限
本合同自2024年1月1日起生效，至2024年12月31日终止。
签订日期：2024年1月1日
`

// echo answers every requested field with value, plus the extra fields given.
func echo(value string, extra fields.Map) *llmtest.Extractor {
	return &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		out := extra.Clone()
		for _, f := range req.Fields {
			out[f] = fields.String(value)
		}
		return llm.ExtractResult{Data: out, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
	}}
}

type recorder struct {
	mu            sync.Mutex
	stages        []constants.SessionStatus
	chunks        int
	chunkStarted  []string
	chunkFinished map[string]error
	planned       int
	skipped       int
	started       int
	finished      int
}

func (r *recorder) StageChanged(s constants.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func (r *recorder) ChunksReady(c []chunking.SemanticChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = len(c)
}

func (r *recorder) ChunkStarted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkStarted = append(r.chunkStarted, id)
}

func (r *recorder) ChunkFinished(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chunkFinished == nil {
		r.chunkFinished = map[string]error{}
	}
	r.chunkFinished[id] = err
}

func (r *recorder) TasksPlanned(tasks []concurrent.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planned += len(tasks)
}

func (r *recorder) TaskStarted(concurrent.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) TaskFinished(tr concurrent.TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	if tr.Skipped {
		r.skipped++
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name  string
		chars int
		mode  constants.ParseMode
		want  constants.ParseMode
	}{
		{"small", 10, constants.ModeAuto, constants.ModeLegacy},
		{"legacy upper bound", LegacyMaxChars, constants.ModeAuto, constants.ModeLegacy},
		{"semantic lower bound", LegacyMaxChars + 1, constants.ModeAuto, constants.ModeSemantic},
		{"semantic upper bound", SemanticMaxChars, "", constants.ModeSemantic},
		{"concurrent", SemanticMaxChars + 1, constants.ModeAuto, constants.ModeConcurrent},
		{"explicit rag", SemanticMaxChars + 1, constants.ModeRAG, constants.ModeRAG},
		{"explicit legacy", SemanticMaxChars + 1, constants.ModeLegacy, constants.ModeLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// multi-byte characters make sure the bands count characters, not bytes
			assert.Equal(t, tt.want, SelectMode(strings.Repeat("合", tt.chars), tt.mode))
		})
	}
}

func TestParseOptimizedInvalidMode(t *testing.T) {
	o := NewOrchestrator(echo("v", nil), Options{}, nil)
	_, err := o.ParseOptimized(context.Background(), contract, "TURBO", nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidMode)
	var appErr *common.AppError
	assert.ErrorAs(t, err, &appErr)
}

func TestParseOptimizedLegacy(t *testing.T) {
	fake := echo("v", nil)
	rec := &recorder{}
	o := NewOrchestrator(fake, Options{}, nil)

	res, err := o.ParseOptimized(context.Background(), contract, constants.ModeAuto,
		[]string{"contractNumber", "totalAmount"}, Options{Observer: rec})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, constants.ModeLegacy, res.Mode)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 15, res.TokensUsed)
	assert.JSONEq(t, `{"contractNumber":"v","totalAmount":"v"}`, res.ExtractedDataJSON)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, contract, reqs[0].Context)
	assert.Equal(t, []string{"contractNumber", "totalAmount"}, reqs[0].Fields)

	assert.Equal(t, []constants.SessionStatus{constants.StatusLLMProcessing, constants.StatusMerging}, rec.stages)
	assert.Equal(t, 1, rec.planned)
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.finished)
}

func TestParseOptimizedDefaultsToCatalog(t *testing.T) {
	fake := echo("v", nil)
	res, err := NewOrchestrator(fake, Options{}, nil).ParseOptimized(context.Background(), contract, constants.ModeLegacy, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, completeness.FieldNames(), fake.Requests()[0].Fields)
}

func TestParseOptimizedModelFailure(t *testing.T) {
	fake := &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		return llm.ExtractResult{}, errors.New("upstream 503")
	}}
	o := NewOrchestrator(fake, Options{}, nil)

	for _, mode := range []constants.ParseMode{constants.ModeLegacy, constants.ModeSemantic, constants.ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := o.ParseOptimized(context.Background(), contract, mode, []string{"contractNumber", "totalAmount"}, Options{MinChunkSize: 1})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, mode, res.Mode)
			assert.Contains(t, res.Error, "upstream 503")
			assert.Equal(t, 0.0, res.Confidence)
			assert.Empty(t, res.ExtractedDataJSON)
			assert.GreaterOrEqual(t, res.ProcessingTimeMs, int64(0))
		})
	}
}

func semanticChunks() []chunking.SemanticChunk {
	mk := func(id string, typ chunking.ChunkType, rel ...string) chunking.SemanticChunk {
		return chunking.SemanticChunk{
			ID:       id,
			Text:     "text of " + id,
			Metadata: chunking.Metadata{Type: typ, Priority: chunking.Priority(typ), FieldRelevance: rel},
		}
	}
	return []chunking.SemanticChunk{
		mk("c0", chunking.TypeGeneric, "totalAmount"),
		mk("c1", chunking.TypeHeader, "contractNumber", "totalAmount"),
		mk("c2", chunking.TypeFinancial, "totalAmount", "currency"),
		mk("c3", chunking.TypeRisk),
	}
}

func chunkEcho() *llmtest.Extractor {
	return &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		id := strings.TrimPrefix(req.Context, "text of ")
		out := fields.Map{}
		for _, f := range req.Fields {
			out[f] = fields.String(id)
		}
		return llm.ExtractResult{Data: out}, nil
	}}
}

func TestParseSemanticPriorityOrderFirstWins(t *testing.T) {
	fake := chunkEcho()
	rec := &recorder{}
	o := NewOrchestrator(fake, Options{}, nil)
	res := o.parseSemantic(context.Background(), semanticChunks(), []string{"contractNumber", "totalAmount", "currency"}, Options{Observer: rec})

	assert.True(t, res.Success)
	assert.Equal(t, 3, rec.planned)
	assert.Equal(t, 2, rec.started)
	assert.Equal(t, 3, rec.finished)
	assert.Equal(t, 1, rec.skipped)
	assert.Equal(t, "c1", res.Data["contractNumber"].Str())
	assert.Equal(t, "c1", res.Data["totalAmount"].Str())
	assert.Equal(t, "c2", res.Data["currency"].Str())

	reqs := fake.Requests()
	require.Len(t, reqs, 2, "c0 has nothing left to resolve and c3 is irrelevant")
	assert.Equal(t, []string{"contractNumber", "totalAmount"}, reqs[0].Fields)
	assert.Equal(t, []string{"currency"}, reqs[1].Fields)
	assert.Equal(t, 2, res.ChunksProcessed)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestParseSemanticPartialFailure(t *testing.T) {
	inner := chunkEcho()
	fake := &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		if req.Context == "text of c1" {
			return llm.ExtractResult{}, errors.New("timeout")
		}
		return inner.Fn(ctx, req)
	}}
	o := NewOrchestrator(fake, Options{}, nil)
	res := o.parseSemantic(context.Background(), semanticChunks(), []string{"contractNumber", "totalAmount", "currency"}, o.defaults)

	assert.True(t, res.Success)
	assert.Equal(t, "c2", res.Data["totalAmount"].Str())
	assert.False(t, res.Data.Has("contractNumber"))
	assert.Equal(t, []string{"c1: timeout"}, res.Warnings)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestParseSemanticNoRelevantChunks(t *testing.T) {
	fake := chunkEcho()
	o := NewOrchestrator(fake, Options{}, nil)
	res := o.parseSemantic(context.Background(), semanticChunks(), []string{"milestones"}, o.defaults)
	assert.True(t, res.Success)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Empty(t, fake.Requests())
	assert.NotEmpty(t, res.Warnings)
}

func TestParseOptimizedConcurrent(t *testing.T) {
	fake := echo("v", nil)
	rec := &recorder{}
	o := NewOrchestrator(fake, Options{MinChunkSize: 1}, nil)

	res, err := o.ParseOptimized(context.Background(), contract, constants.ModeConcurrent,
		[]string{"contractNumber", "totalAmount", "effectiveAt"}, Options{MaxConcurrent: 2, Observer: rec})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, constants.ModeConcurrent, res.Mode)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, len(fake.Requests()), res.ChunksProcessed)
	assert.Equal(t, 15*res.ChunksProcessed, res.TokensUsed)
	assert.True(t, res.Data.Has("contractNumber"))
	assert.NotEmpty(t, res.Chunks)

	assert.Equal(t, []constants.SessionStatus{
		constants.StatusChunking, constants.StatusLLMProcessing, constants.StatusMerging,
	}, rec.stages)
	assert.Equal(t, len(res.Chunks), rec.chunks)
	assert.Equal(t, res.ChunksProcessed, rec.planned)
	assert.Equal(t, res.ChunksProcessed, rec.started)
	assert.Equal(t, res.ChunksProcessed, rec.finished)
}

func TestParseOptimizedRAGResolvesDirectFields(t *testing.T) {
	fake := echo("v", nil)
	o := NewOrchestrator(fake, Options{MinChunkSize: 1}, nil)

	res, err := o.ParseOptimized(context.Background(), contract, constants.ModeRAG, []string{"contractNumber"}, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, constants.ModeRAG, res.Mode)
	assert.Equal(t, "HT-2024-001", res.Data["contractNumber"].Str())
	assert.Empty(t, fake.Requests())
	assert.Greater(t, res.Confidence, 0.8)
}

func TestParseOptimizedWithoutExtractor(t *testing.T) {
	o := NewOrchestrator(nil, Options{MinChunkSize: 1}, nil)
	for _, mode := range []constants.ParseMode{constants.ModeLegacy, constants.ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := o.ParseOptimized(context.Background(), contract, mode, nil, Options{})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, "no model extractor configured", res.Error)
		})
	}
}

func TestParseOptimizedRAGReportsChunks(t *testing.T) {
	fake := &llmtest.Extractor{Fn: func(context.Context, llm.ExtractRequest) (llm.ExtractResult, error) {
		return llm.ExtractResult{}, common.ErrMalformedResponse
	}}
	rec := &recorder{}
	o := NewOrchestrator(fake, Options{MinChunkSize: 1}, nil)

	res, err := o.ParseOptimized(context.Background(), contract, constants.ModeRAG,
		[]string{"contractNumber", "projectManager"}, Options{Observer: rec})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	require.Len(t, fake.Requests(), 1)

	assert.Len(t, rec.chunkStarted, len(res.Chunks))
	assert.Len(t, rec.chunkFinished, len(res.Chunks), "every chunk finishes once")
	failed := 0
	for _, err := range rec.chunkFinished {
		if err != nil {
			assert.ErrorIs(t, err, common.ErrMalformedResponse)
			failed++
		}
	}
	assert.Greater(t, failed, 0, "chunks read by the failed call are reported failed")
	assert.Zero(t, rec.planned, "grouped calls are not tasks")
}

func TestParseOptimizedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewOrchestrator(echo("v", nil), Options{}, nil).
		ParseOptimized(ctx, contract, constants.ModeLegacy, []string{"title"}, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.Canceled.Error())
}

func fullBaseline() fields.Map {
	m := fields.Map{}
	for _, f := range completeness.FieldNames() {
		m[f] = fields.String("baseline")
	}
	return m
}

func TestEnhanceBaselineDirectUse(t *testing.T) {
	fake := echo("v", nil)
	enh, err := NewOrchestrator(fake, Options{}, nil).EnhanceBaseline(context.Background(), contract, fullBaseline(), constants.ModeAuto, Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.StrategyDirectUse, enh.Strategy)
	assert.Nil(t, enh.Parse)
	assert.Equal(t, 100, enh.After.TotalScore)
	assert.Empty(t, fake.Requests())
	assert.Contains(t, enh.Reason, "100")
}

func TestEnhanceBaselineValidationFillsMissingOnly(t *testing.T) {
	baseline := fields.Map{
		"contractNumber": fields.String("HT-1"),
		"title":          fields.String("技术服务合同"),
		"customerName":   fields.String("星辰"),
		"ourEntity":      fields.String("云帆"),
		"contractType":   fields.String("MIXED"),
		"totalAmount":    fields.Number(500000),
	}
	fake := echo("v", fields.Map{"contractNumber": fields.String("OVERRIDE")})
	o := NewOrchestrator(fake, Options{}, nil)

	enh, err := o.EnhanceBaseline(context.Background(), contract, baseline, constants.ModeAuto, Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.StrategyLLMValidation, enh.Strategy)
	assert.Equal(t, 52, enh.Before.TotalScore)
	assert.Len(t, enh.Targets, 11)
	assert.NotContains(t, enh.Targets, "contractNumber")
	require.NotNil(t, enh.Parse)
	assert.True(t, enh.Parse.Success)

	assert.Equal(t, "HT-1", enh.Data["contractNumber"].Str())
	assert.Equal(t, 500000.0, enh.Data["totalAmount"].Num())
	assert.Equal(t, 100, enh.After.TotalScore)
	assert.Equal(t, enh.Targets, fake.Requests()[0].Fields)
}

func TestEnhanceBaselineFullExtraction(t *testing.T) {
	fake := echo("v", nil)
	enh, err := NewOrchestrator(fake, Options{}, nil).EnhanceBaseline(context.Background(), contract, fields.Map{}, constants.ModeLegacy, Options{})
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyLLMFullExtraction, enh.Strategy)
	assert.Equal(t, completeness.FieldNames(), enh.Targets)
	assert.Equal(t, 0, enh.Before.TotalScore)
	assert.Equal(t, 100, enh.After.TotalScore)
}

func TestEnhanceBaselineInvalidMode(t *testing.T) {
	_, err := NewOrchestrator(echo("v", nil), Options{}, nil).EnhanceBaseline(context.Background(), contract, fields.Map{}, "NOPE", Options{})
	assert.ErrorIs(t, err, common.ErrInvalidMode)
}
