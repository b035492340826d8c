package rag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/llm/llmtest"
)

const contract = `技术服务合同
合同编号：HT-2024-001
甲方：北京星辰科技有限公司
地址：北京市海淀区中关村大街1号
乙方：上海云帆信息技术有限公司
地址：上海市浦东新区张江路88号
第一条 服务内容
乙方为甲方提供企业管理系统的定制开发与运维服务，具体需求以附件一为准。
第二条 合同金额及支付方式
本合同总金额为人民币500,000元（含税），增值税税率6%。甲方应在合同签订后10日内通过银行转账支付30%预付款，验收合格后支付尾款。
第三条 合同期限
本合同自2024年1月1日起生效，至2024年12月31日终止。
第四条 违约责任
任何一方违约的，应向守约方支付合同总金额10%的违约金。因本合同产生的争议提交北京仲裁委员会仲裁。
甲方（盖章）：
乙方（盖章）：
签订日期：2024年1月1日
`

func contractChunks(t *testing.T) []chunking.SemanticChunk {
	t.Helper()
	chunks := chunking.NewChunker(nil).Chunk(contract, 1)
	require.Len(t, chunks, 9)
	return chunks
}

func TestCalculateFieldRelevance(t *testing.T) {
	chunks := contractChunks(t)

	assert.Equal(t, 0.9, CalculateFieldRelevance(chunks[0], "contractNumber"))
	assert.Equal(t, 0.85, CalculateFieldRelevance(chunks[1], "customerName"))
	assert.Equal(t, 0.0, CalculateFieldRelevance(chunks[6], "contractNumber"))

	generic := chunking.SemanticChunk{
		Text:     strings.Repeat("违约金", 10),
		Metadata: chunking.Metadata{Type: chunking.TypeGeneric},
	}
	assert.Equal(t, 0.2, CalculateFieldRelevance(generic, "penaltyTerms"), "keyword signal is capped")

	risk := chunking.SemanticChunk{
		Text:     strings.Repeat("违约金", 10),
		Metadata: chunking.Metadata{Type: chunking.TypeRisk, FieldRelevance: []string{"penaltyTerms"}},
	}
	assert.Equal(t, 1.0, CalculateFieldRelevance(risk, "penaltyTerms"))
}

func TestStrategyThresholdsAreExclusive(t *testing.T) {
	assert.Equal(t, StrategyDirect, StrategyFor(0.81))
	assert.Equal(t, StrategyHybrid, StrategyFor(0.8))
	assert.Equal(t, StrategyHybrid, StrategyFor(0.41))
	assert.Equal(t, StrategyLLM, StrategyFor(0.4))
	assert.Equal(t, StrategyLLM, StrategyFor(0))
}

func TestCreateExtractionPlans(t *testing.T) {
	chunks := contractChunks(t)
	plans := CreateExtractionPlans(chunks, []string{"customerName", "milestones", "projectManager"}, 2)
	require.Len(t, plans, 3)

	cust := plans[0]
	assert.Equal(t, StrategyDirect, cust.Strategy)
	assert.Equal(t, 0.85, cust.Confidence)
	assert.Equal(t, []string{"chunk-1", "chunk-7"}, cust.ChunkIDs(), "ties keep document order")

	assert.Equal(t, StrategyHybrid, plans[1].Strategy, "structured fields are never direct")

	unknown := plans[2]
	assert.Equal(t, StrategyLLM, unknown.Strategy)
	assert.Empty(t, unknown.Chunks, "zero-score chunks are excluded")
	assert.Equal(t, 0.0, unknown.Confidence)
}

func TestResolveDirect(t *testing.T) {
	chunks := contractChunks(t)
	tests := []struct {
		field string
		want  fields.Value
	}{
		{"contractNumber", fields.String("HT-2024-001")},
		{"customerName", fields.String("北京星辰科技有限公司")},
		{"ourEntity", fields.String("上海云帆信息技术有限公司")},
		{"totalAmount", fields.Number(500000)},
		{"currency", fields.String("CNY")},
		{"taxRate", fields.Number(0.06)},
		{"signedAt", fields.String("2024-01-01")},
		{"effectiveAt", fields.String("2024-01-01")},
		{"title", fields.String("技术服务合同")},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			plan := CreateExtractionPlans(chunks, []string{tt.field}, 3)[0]
			got, ok := ResolveDirect(tt.field, plan.Chunks)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ResolveDirect("milestones", []RankedChunk{{Chunk: chunks[4], Score: 1}})
	assert.False(t, ok)
}

func TestParseResolvesEachGroup(t *testing.T) {
	ext := &llmtest.Extractor{Fn: func(_ context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		if slices.Contains(req.Fields, "projectManager") {
			return llm.ExtractResult{Data: fields.Map{"projectManager": fields.String("张三")}, Usage: llm.Usage{PromptTokens: 10}}, nil
		}
		return llm.ExtractResult{
			Data: fields.Map{
				"industry":       fields.String("软件和信息技术服务业"),
				"expiresAt":      fields.String("2024-12-31"),
				"milestones":     fields.List(fields.String("验收")),
				"contractNumber": fields.String("WRONG"),
			},
			Usage: llm.Usage{PromptTokens: 20, CompletionTokens: 5},
		}, nil
	}}

	p := NewParser(nil, ext, Options{MinChunkSize: 1}, nil)
	want := []string{
		"contractNumber", "customerName", "ourEntity", "totalAmount", "currency", "taxRate",
		"signedAt", "effectiveAt", "expiresAt", "industry", "milestones", "projectManager",
	}
	res, err := p.Parse(context.Background(), contract, want)
	require.NoError(t, err)

	assert.Equal(t, []string{"contractNumber", "customerName", "ourEntity", "totalAmount", "currency", "taxRate", "signedAt", "effectiveAt"}, res.Direct)
	assert.Equal(t, []string{"expiresAt", "industry", "milestones"}, res.Hybrid)
	assert.Equal(t, []string{"expiresAt", "industry", "milestones"}, res.Escalated)
	assert.Equal(t, []string{"projectManager"}, res.LLM)

	assert.Equal(t, 2, res.ModelCalls)
	assert.Equal(t, 0, res.FailedCalls)
	assert.Equal(t, 35, res.Usage.Total())

	assert.Equal(t, fields.String("HT-2024-001"), res.Data["contractNumber"], "model output outside its group is ignored")
	assert.Equal(t, fields.String("2024-12-31"), res.Data["expiresAt"])
	assert.Equal(t, fields.String("张三"), res.Data["projectManager"])
	assert.Len(t, res.Data, len(want))
	assert.Greater(t, res.Confidence(), 0.0)

	reqs := ext.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"expiresAt", "industry", "milestones"}, reqs[0].Fields)
	assert.Contains(t, reqs[0].Context, "第三条 合同期限")
	assert.Contains(t, reqs[1].Context, "合同编号：HT-2024-001", "no scored chunk falls back to priority chunks")
}

func TestParseModelFailureKeepsOtherGroups(t *testing.T) {
	ext := &llmtest.Extractor{Fn: func(context.Context, llm.ExtractRequest) (llm.ExtractResult, error) {
		return llm.ExtractResult{}, common.ErrMalformedResponse
	}}
	p := NewParser(nil, ext, Options{MinChunkSize: 1}, nil)

	res, err := p.Parse(context.Background(), contract, []string{"contractNumber", "industry", "projectManager"})
	require.NoError(t, err)
	assert.Equal(t, fields.Map{"contractNumber": fields.String("HT-2024-001")}, res.Data)
	assert.Equal(t, 2, res.FailedCalls)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "hybrid group failed")
	assert.Contains(t, res.Warnings[1], "llm group failed")
}

func TestParseCancelledContext(t *testing.T) {
	ext := &llmtest.Extractor{Fn: func(ctx context.Context, _ llm.ExtractRequest) (llm.ExtractResult, error) {
		return llm.ExtractResult{}, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser(nil, ext, Options{MinChunkSize: 1}, nil).Parse(ctx, contract, []string{"projectManager"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
