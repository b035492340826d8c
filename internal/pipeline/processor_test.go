package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/concurrent"
	"github.com/joseph-ayodele/contracts-parser/internal/doctext"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/llm/llmtest"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
	"github.com/joseph-ayodele/contracts-parser/internal/repository"
)

const contract = `技术服务合同
合同编号：HT-2024-001
甲方：北京星辰科技有限公司
乙方：上海云帆信息技术有限公司
本合同总金额为人民币500,000元（含税）。
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDocs struct {
	res  doctext.Result
	err  error
	seen []string
}

func (f *fakeDocs) Extract(_ context.Context, path string) (doctext.Result, error) {
	f.seen = append(f.seen, path)
	return f.res, f.err
}

func echo(value string) *llmtest.Extractor {
	return &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		out := fields.Map{}
		for _, f := range req.Fields {
			out[f] = fields.String(value)
		}
		return llm.ExtractResult{Data: out, Usage: llm.Usage{PromptTokens: 20, CompletionTokens: 10}}, nil
	}}
}

type harness struct {
	proc    *Processor
	tracker *progress.Tracker
	records repository.ParseRecordRepository
}

func newHarness(t *testing.T, docs TextSource, ex llm.Extractor) harness {
	t.Helper()
	log := discardLogger()
	db, err := repository.Open(context.Background(), repository.Config{DSN: ":memory:"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, log) })

	tracker := progress.NewTracker(log)
	records := repository.NewParseRecordRepository(db, log)
	orch := parser.NewOrchestrator(ex, parser.Options{}, log)
	return harness{
		proc:    NewProcessor(log, docs, orch, tracker, records, parser.Options{}),
		tracker: tracker,
		records: records,
	}
}

func TestProcessInlineText(t *testing.T) {
	h := newHarness(t, nil, echo("v"))
	job := Job{Text: contract, Mode: constants.ModeLegacy, TargetFields: []string{"contractNumber", "title"}}

	out, err := h.proc.Process(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, out.Record)

	assert.True(t, out.Parse.Result.Success)
	assert.Equal(t, "LEGACY", out.Record.Mode)
	assert.Equal(t, constants.TXT, out.Record.SourceType)
	assert.Equal(t, 30, out.Record.TokensUsed)
	assert.JSONEq(t, `{"contractNumber":"v","title":"v"}`, string(out.Record.ExtractedJSON))

	sess, ok := h.tracker.Get(out.SessionID)
	require.True(t, ok)
	assert.Equal(t, constants.StatusCompleted, sess.Status)
	assert.Equal(t, "inline-text", sess.FileName)
	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, parser.LegacyTaskID, sess.Tasks[0].ID)
	assert.Equal(t, constants.ItemCompleted, sess.Tasks[0].Status)
	assert.Equal(t, 30, sess.TotalTokensUsed)
	assert.Equal(t, 100, h.tracker.Percentage(out.SessionID))

	stored, err := h.records.GetByID(context.Background(), out.Record.ID)
	require.NoError(t, err)
	assert.True(t, stored.Success)
	assert.Equal(t, out.SessionID, stored.SessionID)
}

func TestProcessPathUsesDocumentText(t *testing.T) {
	docs := &fakeDocs{res: doctext.Result{
		Text: contract, PageCount: 2, Method: doctext.MethodPDFText, SourceType: constants.PDF,
		Warnings: []string{"page count estimated"},
	}}
	h := newHarness(t, docs, echo("v"))
	sessionID := h.tracker.CreateSession("a.pdf", 0)

	out, err := h.proc.Process(context.Background(), Job{
		SessionID: sessionID, Path: "/in/a.pdf", Mode: constants.ModeLegacy, TargetFields: []string{"title"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/in/a.pdf"}, docs.seen)
	assert.Equal(t, sessionID, out.SessionID)
	assert.Equal(t, constants.PDF, out.Record.SourceType)
	assert.Equal(t, "/in/a.pdf", out.Record.SourcePath)
	assert.Equal(t, []string{"page count estimated"}, out.Record.Warnings)

	sess, _ := h.tracker.Get(sessionID)
	assert.Equal(t, constants.StatusCompleted, sess.Status)
	assert.Equal(t, len([]rune(contract)), sess.TextLength)
}

func TestProcessDocumentFailure(t *testing.T) {
	docs := &fakeDocs{err: errors.New("pdf has no text layer")}
	h := newHarness(t, docs, echo("v"))

	out, err := h.proc.Process(context.Background(), Job{Path: "/in/scan.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf has no text layer")

	sess, _ := h.tracker.Get(out.SessionID)
	assert.Equal(t, constants.StatusFailed, sess.Status)
	assert.Contains(t, sess.Error, "no text layer")

	require.NotNil(t, out.Record)
	assert.False(t, out.Record.Success)
	assert.Equal(t, constants.PDF, out.Record.SourceType)
	assert.Equal(t, "AUTO", out.Record.Mode)

	recent, err := h.records.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Contains(t, recent[0].Error, "no text layer")
}

func TestProcessModelFailure(t *testing.T) {
	fail := &llmtest.Extractor{Fn: func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
		return llm.ExtractResult{}, errors.New("upstream 503")
	}}
	h := newHarness(t, nil, fail)

	out, err := h.proc.Process(context.Background(), Job{Text: contract, Mode: constants.ModeLegacy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")
	assert.False(t, out.Record.Success)

	sess, _ := h.tracker.Get(out.SessionID)
	assert.Equal(t, constants.StatusFailed, sess.Status)
	require.Len(t, sess.Tasks, 1)
	assert.Equal(t, constants.ItemFailed, sess.Tasks[0].Status)
}

func TestProcessInvalidJob(t *testing.T) {
	h := newHarness(t, &fakeDocs{}, echo("v"))
	_, err := h.proc.Process(context.Background(), Job{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestProcessInvalidMode(t *testing.T) {
	h := newHarness(t, nil, echo("v"))
	_, err := h.proc.Process(context.Background(), Job{Text: contract, Mode: "FAST"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidMode)
}

func TestProcessBaselineDirectUse(t *testing.T) {
	fake := echo("v")
	h := newHarness(t, nil, fake)
	baseline := fields.Map{}
	for _, f := range completeness.FieldNames() {
		baseline[f] = fields.String("baseline")
	}

	out, err := h.proc.Process(context.Background(), Job{Text: contract, Mode: constants.ModeAuto, Baseline: baseline})
	require.NoError(t, err)

	assert.Empty(t, fake.Requests())
	assert.Empty(t, out.Record.Mode, "no parse mode ran")
	stored, err := h.records.GetByID(context.Background(), out.Record.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Mode)
	assert.Equal(t, string(constants.StrategyDirectUse), stored.Strategy)
	require.NotNil(t, out.Parse.Enhancement)
	assert.Equal(t, constants.StrategyDirectUse, out.Parse.Strategy)
	assert.Equal(t, string(constants.StrategyDirectUse), out.Record.Strategy)
	assert.Equal(t, 100, out.Record.CompletenessScore)
	assert.True(t, out.Record.Success)
}

func TestProcessBaselineFillsMissing(t *testing.T) {
	fake := echo("v")
	h := newHarness(t, nil, fake)

	out, err := h.proc.Process(context.Background(), Job{
		Text:     contract,
		Mode:     constants.ModeLegacy,
		Baseline: fields.Map{"contractNumber": fields.String("HT-2024-001")},
	})
	require.NoError(t, err)

	require.Len(t, fake.Requests(), 1)
	assert.Equal(t, "HT-2024-001", out.Parse.Data["contractNumber"].Str())
	assert.Greater(t, out.Record.CompletenessScore, 0)
}

func TestObserverSkippedTaskIsNotTimed(t *testing.T) {
	h := newHarness(t, nil, echo("v"))
	id := h.tracker.CreateSession("x.txt", 0)
	obs := newTrackerObserver(h.tracker, id)

	obs.ChunksReady([]chunking.SemanticChunk{{ID: "c1"}, {ID: "c2"}})
	obs.TasksPlanned([]concurrent.Task{{ChunkID: "c1"}, {ChunkID: "c2"}})
	obs.TaskFinished(concurrent.TaskResult{ChunkID: "c1", Success: true, Skipped: true})

	s, ok := h.tracker.Get(id)
	require.True(t, ok)
	assert.True(t, s.Tasks[0].Skipped)
	assert.Equal(t, constants.ItemCompleted, s.Tasks[0].Status)
	assert.Equal(t, constants.ItemCompleted, s.Chunks[0].Status)
	assert.Equal(t, 50, h.tracker.Percentage(id))

	obs.ChunkStarted("c2")
	obs.ChunkFinished("c2", errors.New("model down"))
	s, _ = h.tracker.Get(id)
	assert.Equal(t, constants.ItemFailed, s.Chunks[1].Status)
	assert.Equal(t, "model down", s.Chunks[1].Error)
}

func TestProcessObserverTracksTokens(t *testing.T) {
	h := newHarness(t, nil, echo("v"))
	id := h.tracker.CreateSession("x.txt", 0)
	obs := newTrackerObserver(h.tracker, id)

	h.tracker.UpdateStage(id, constants.StatusLLMProcessing, "")
	_, err := h.proc.Parse.Orchestrator.ParseOptimized(context.Background(), contract, constants.ModeLegacy,
		[]string{"title"}, parser.Options{Observer: obs})
	require.NoError(t, err)

	snap, ok := h.tracker.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, constants.StatusMerging, snap.Session.Status)
	assert.Equal(t, 30, snap.Session.TotalTokensUsed)
	assert.Equal(t, 100, snap.Percentage)
}
