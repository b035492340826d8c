// Package server exposes the contract parser over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/async"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/export"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/ingest"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
	"github.com/joseph-ayodele/contracts-parser/internal/repository"
)

// MaxTextChars bounds inline text accepted over the API.
const MaxTextChars = 2_000_000

// Deps are the collaborators of ParserService. Queue, Records, Exporter and Ingestor may
// be nil; the methods that need them then answer FailedPrecondition.
type Deps struct {
	Processor   async.Processor
	Queue       async.Queue
	Tracker     *progress.Tracker
	Records     repository.ParseRecordRepository
	Exporter    *export.Service
	Ingestor    ingest.Ingestor
	DefaultMode constants.ParseMode
	Parser      parser.Options
}

type ParserService struct {
	deps    Deps
	scorer  *completeness.Scorer
	chunker *chunking.Chunker
	logger  *slog.Logger
}

var _ ContractParserServer = (*ParserService)(nil)

func NewParserService(deps Deps, logger *slog.Logger) *ParserService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.NewTracker(logger)
	}
	if deps.DefaultMode == "" {
		deps.DefaultMode = constants.ModeAuto
	}
	return &ParserService{
		deps:    deps,
		scorer:  completeness.NewScorer(logger),
		chunker: chunking.NewChunker(logger),
		logger:  logger,
	}
}

func unavailable(what string) error {
	return status.Errorf(codes.FailedPrecondition, "%s is not configured", what)
}

// parseMode validates a requested mode and falls back to the service default.
func (s *ParserService) parseMode(raw string) (constants.ParseMode, error) {
	if strings.TrimSpace(raw) == "" {
		return s.deps.DefaultMode, nil
	}
	m, ok := constants.ParseModeFromString(raw)
	if !ok {
		return "", common.InvalidArgumentErrorf("mode must be one of %s", strings.Join(constants.ModesAsStringSlice(), ", "))
	}
	return m, nil
}

func baselineOf(raw map[string]any) fields.Map {
	if raw == nil {
		return nil
	}
	return fields.FromMap(raw)
}

func plain(m fields.Map) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}

func (s *ParserService) SubmitParse(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitParseRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" && strings.TrimSpace(req.Text) == "" {
		return nil, common.InvalidArgumentError("path or text is required")
	}
	v := common.NewValidator().
		Field("text", req.Text, common.MaxLen(MaxTextChars)).
		Field("mode", req.Mode, common.OneOf(constants.ModesAsStringSlice()...))
	if err := v.Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	if req.Path != "" && constants.MapExtToFormat(filepath.Ext(req.Path)) == "" {
		return nil, common.InvalidArgumentErrorf("unsupported document type %q", filepath.Ext(req.Path))
	}
	mode, err := s.parseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if s.deps.Queue == nil {
		return nil, unavailable("queue")
	}

	job := pipeline.Job{
		Path:         req.Path,
		Text:         req.Text,
		FileName:     req.FileName,
		Mode:         mode,
		TargetFields: req.TargetFields,
		Baseline:     baselineOf(req.Baseline),
		SubmittedAt:  time.Now().UTC(),
	}
	job.SessionID = s.deps.Tracker.CreateSession(job.Name(), utf8.RuneCountInString(req.Text))
	if err := s.deps.Queue.Enqueue(ctx, async.Job{Job: job, Force: true}); err != nil {
		s.deps.Tracker.FailSession(job.SessionID, err.Error())
		if errors.Is(err, async.ErrQueueClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.FromContextError(err).Err()
	}
	s.logger.Info("server.submit.ok", "session_id", job.SessionID, "file", job.Name(), "mode", mode)
	return encode(SubmitParseResponse{SessionID: job.SessionID, Status: string(constants.StatusInitializing), SubmittedAt: job.SubmittedAt})
}

func (s *ParserService) ParseText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ParseTextRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	v := common.NewValidator().
		Field("text", req.Text, common.Required, common.MaxLen(MaxTextChars)).
		Field("mode", req.Mode, common.OneOf(constants.ModesAsStringSlice()...)).
		Field("maxConcurrent", req.MaxConcurrent, common.IntRange(1, 32))
	if err := v.Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	mode, err := s.parseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if s.deps.Processor == nil {
		return nil, unavailable("processor")
	}

	start := time.Now()
	out, err := s.deps.Processor.Process(ctx, pipeline.Job{
		Text:         req.Text,
		FileName:     req.FileName,
		Mode:         mode,
		TargetFields: req.TargetFields,
		Baseline:     baselineOf(req.Baseline),
		Overrides:    parser.Options{MinChunkSize: req.MinChunkSize, MaxConcurrent: req.MaxConcurrent},
	})
	if err != nil && out.Record == nil {
		s.logger.Error("server.parse_text.failed", "error", err)
		return nil, common.ToStatusError(err)
	}
	if err != nil && (errors.Is(err, common.ErrInvalidMode) || errors.Is(err, common.ErrInvalidInput)) {
		return nil, common.ToStatusError(err)
	}

	resp := ParseTextResponse{
		SessionID:     out.SessionID,
		Result:        out.Parse.Result,
		ExtractedData: plain(out.Parse.Data),
		Strategy:      string(out.Parse.Strategy),
		Completeness:  out.Parse.Score,
	}
	if out.Record != nil {
		resp.RecordID = out.Record.ID.String()
		if !resp.Result.Success && resp.Result.Error == "" {
			resp.Result.Error = out.Record.Error
		}
	}
	s.logger.Info("server.parse_text.done",
		"session_id", out.SessionID,
		"success", resp.Result.Success,
		"mode", resp.Result.Mode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return encode(resp)
}

func (s *ParserService) GetProgress(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetProgressRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("sessionId", req.SessionID, common.Required).Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	snap, ok := s.deps.Tracker.Snapshot(req.SessionID)
	if !ok {
		return nil, common.ToStatusError(fmt.Errorf("%w: %s", common.ErrSessionNotFound, req.SessionID))
	}
	return encode(GetProgressResponse{Snapshot: snap})
}

func (s *ParserService) ScoreCompleteness(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ScoreCompletenessRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	score := s.scorer.CalculateScore(completeness.Normalize(fields.FromMap(req.Fields)))
	missing := score.MissingFields()
	return encode(ScoreCompletenessResponse{
		Score:          score,
		Reason:         completeness.StrategyReason(score.TotalScore, score.Strategy),
		MissingFields:  missing,
		PriorityFields: completeness.IdentifyPriorityFields(missing, 0),
	})
}

func (s *ParserService) InspectChunks(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req InspectChunksRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	v := common.NewValidator().
		Field("text", req.Text, common.Required, common.MaxLen(MaxTextChars)).
		Field("minChunkSize", req.MinChunkSize, common.IntRange(1, 100_000))
	if err := v.Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	minSize := req.MinChunkSize
	if minSize == 0 {
		minSize = s.deps.Parser.MinChunkSize
	}
	chunks := s.chunker.Chunk(req.Text, minSize)
	resp := InspectChunksResponse{Chunks: chunking.Infos(chunks)}
	if len(req.Fields) > 0 {
		for _, c := range chunking.GetRelevantChunksForFields(chunks, req.Fields) {
			resp.RelevantIDs = append(resp.RelevantIDs, c.ID)
		}
	}
	return encode(resp)
}

func (s *ParserService) recordID(raw string) (uuid.UUID, error) {
	if err := common.NewValidator().Field("id", raw, common.Required, common.UUID).Error(); err != nil {
		return uuid.Nil, common.ToStatusError(err)
	}
	return uuid.MustParse(strings.TrimSpace(raw)), nil
}

func (s *ParserService) GetRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetRecordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if s.deps.Records == nil {
		return nil, unavailable("record store")
	}
	id, err := s.recordID(req.ID)
	if err != nil {
		return nil, err
	}
	rec, err := s.deps.Records.GetByID(ctx, id)
	if err != nil {
		return nil, common.ToStatusError(err)
	}
	return encode(RecordResponse{Record: rec})
}

func (s *ParserService) ListRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListRecordsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("limit", req.Limit, common.IntRange(1, 500)).Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	if s.deps.Records == nil {
		return nil, unavailable("record store")
	}
	recs, err := s.deps.Records.ListRecent(ctx, req.Limit)
	if err != nil {
		return nil, common.ToStatusError(err)
	}
	return encode(ListRecordsResponse{Records: recs})
}

func (s *ParserService) ExportRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExportRecordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if s.deps.Records == nil {
		return nil, unavailable("record store")
	}
	if s.deps.Exporter == nil {
		return nil, unavailable("exporter")
	}
	id, err := s.recordID(req.ID)
	if err != nil {
		return nil, err
	}
	rec, err := s.deps.Records.GetByID(ctx, id)
	if err != nil {
		return nil, common.ToStatusError(err)
	}

	data := fields.Map{}
	if len(rec.ExtractedJSON) > 0 {
		if data, err = fields.ParseJSON(rec.ExtractedJSON); err != nil {
			return nil, common.InternalErrorf("stored record %s: %v", id, err)
		}
	}
	xlsx, err := s.deps.Exporter.ParseResultXLSX(export.ParseReport{
		SourcePath: rec.SourcePath,
		Mode:       rec.Mode,
		Data:       data,
		Score:      s.scorer.CalculateScore(data),
	})
	if err != nil {
		s.logger.Error("server.export.failed", "record_id", id, "error", err)
		return nil, common.InternalError(err.Error())
	}
	return encode(ExportRecordResponse{FileName: "contract-" + id.String() + ".xlsx", Xlsx: xlsx})
}

func (s *ParserService) IngestDirectory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IngestDirectoryRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("root", req.Root, common.Required).Error(); err != nil {
		return nil, common.ToStatusError(err)
	}
	if s.deps.Ingestor == nil {
		return nil, unavailable("ingestor")
	}
	results, stats, err := s.deps.Ingestor.IngestDirectory(ctx, req.Root, req.SkipHidden)
	if err != nil {
		s.logger.Error("server.ingest.failed", "root", req.Root, "error", err)
		return nil, common.InvalidArgumentErrorf("ingest %s: %v", req.Root, err)
	}
	resp := IngestDirectoryResponse{
		Results:      make([]IngestResult, 0, len(results)),
		Scanned:      stats.Scanned,
		Matched:      stats.Matched,
		Succeeded:    stats.Succeeded,
		Deduplicated: stats.Deduplicated,
		Failed:       stats.Failed,
	}
	for _, r := range results {
		resp.Results = append(resp.Results, IngestResult{
			SourcePath: r.SourcePath, Deduplicated: r.Deduplicated, HashHex: r.HashHex, Error: r.Err,
		})
	}
	return encode(resp)
}
