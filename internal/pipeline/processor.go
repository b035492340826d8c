// Package pipeline runs one contract document end to end: text, fields, persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/doctext"
	"github.com/joseph-ayodele/contracts-parser/internal/entity"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
	"github.com/joseph-ayodele/contracts-parser/internal/repository"
)

// Job is one parse request. Exactly one of Path and Text is expected; Text wins when both
// are set. SessionID attaches the run to an existing progress session. Non-zero Overrides
// replace the processor's parser options for this job.
type Job struct {
	SessionID    string
	Path         string
	Text         string
	FileName     string
	Mode         constants.ParseMode
	TargetFields []string
	Baseline     fields.Map
	Overrides    parser.Options
	SubmittedAt  time.Time
}

// Name is the display name of the job's document.
func (j Job) Name() string {
	switch {
	case j.FileName != "":
		return j.FileName
	case j.Path != "":
		return filepath.Base(j.Path)
	default:
		return "inline-text"
	}
}

// Outcome is the result of Process. Record is nil only when nothing could be persisted.
type Outcome struct {
	SessionID string
	Document  doctext.Result
	Parse     ParseOutcome
	Record    *entity.ParseRecord
}

// Processor coordinates document text, field extraction and the parse record.
type Processor struct {
	Logger  *slog.Logger
	Text    *TextStage
	Parse   *ParseStage
	Tracker *progress.Tracker
	Records repository.ParseRecordRepository
}

// NewProcessor wires the stages. records may be nil, in which case nothing is persisted.
func NewProcessor(
	logger *slog.Logger,
	docs TextSource,
	orch *parser.Orchestrator,
	tracker *progress.Tracker,
	records repository.ParseRecordRepository,
	opts parser.Options,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = progress.NewTracker(logger)
	}
	return &Processor{
		Logger:  logger,
		Text:    NewTextStage(docs, tracker, logger),
		Parse:   NewParseStage(orch, tracker, opts, logger),
		Tracker: tracker,
		Records: records,
	}
}

// Process runs the job and leaves its session completed or failed. The returned error is
// set whenever the session ends failed.
func (p *Processor) Process(ctx context.Context, job Job) (Outcome, error) {
	start := time.Now()
	sessionID := job.SessionID
	if sessionID == "" {
		sessionID = p.Tracker.CreateSession(job.Name(), len([]rune(job.Text)))
	}
	ctx = common.WithSessionID(ctx, sessionID)
	out := Outcome{SessionID: sessionID}
	p.Logger.Info("pipeline.process.start", "session_id", sessionID, "file", job.Name(), "mode", job.Mode)

	doc, err := p.Text.Run(ctx, sessionID, job)
	out.Document = doc
	if err != nil {
		return out, p.fail(ctx, &out, job, start, err)
	}

	parsed, err := p.Parse.Run(ctx, sessionID, doc.Text, job)
	out.Parse = parsed
	if err != nil {
		return out, p.fail(ctx, &out, job, start, err)
	}

	rec := p.newRecord(sessionID, job, doc, start)
	rec.Mode = string(parsed.Result.Mode)
	rec.Strategy = string(parsed.Strategy)
	rec.Success = parsed.Result.Success
	rec.Confidence = parsed.Result.Confidence
	rec.CompletenessScore = parsed.Score.TotalScore
	rec.Warnings = append(append([]string(nil), doc.Warnings...), parsed.Result.Warnings...)
	rec.Error = parsed.Result.Error
	if !rec.Success && rec.Error == "" {
		rec.Error = "no fields could be extracted"
	}
	rec.TokensUsed = parsed.Result.TokensUsed
	if parsed.Result.ExtractedDataJSON != "" {
		rec.ExtractedJSON = json.RawMessage(parsed.Result.ExtractedDataJSON)
	}
	out.Record = rec

	if err := p.save(ctx, rec); err != nil {
		p.Tracker.FailSession(sessionID, err.Error())
		return out, err
	}
	if !rec.Success {
		p.Tracker.FailSession(sessionID, rec.Error)
		p.Logger.Warn("pipeline.process.failed", "session_id", sessionID, "error", rec.Error, "elapsed_ms", rec.ProcessingTimeMs)
		return out, errors.New(rec.Error)
	}
	p.Tracker.CompleteSession(sessionID)
	p.Logger.Info("pipeline.process.ok",
		"session_id", sessionID,
		"record_id", rec.ID,
		"mode", rec.Mode,
		"score", rec.CompletenessScore,
		"confidence", rec.Confidence,
		"tokens", rec.TokensUsed,
		"elapsed_ms", rec.ProcessingTimeMs,
	)
	return out, nil
}

// fail records a run that stopped before producing fields.
func (p *Processor) fail(ctx context.Context, out *Outcome, job Job, start time.Time, cause error) error {
	rec := p.newRecord(out.SessionID, job, out.Document, start)
	rec.Mode = string(job.Mode)
	if rec.Mode == "" {
		rec.Mode = string(constants.ModeAuto)
	}
	rec.Error = cause.Error()
	out.Record = rec
	p.Tracker.FailSession(out.SessionID, cause.Error())
	p.Logger.Error("pipeline.process.failed", "session_id", out.SessionID, "file", job.Name(), "error", cause, "elapsed_ms", rec.ProcessingTimeMs)
	if err := p.save(ctx, rec); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Processor) newRecord(sessionID string, job Job, doc doctext.Result, start time.Time) *entity.ParseRecord {
	sourceType := doc.SourceType
	if sourceType == "" && job.Path != "" {
		sourceType = constants.MapExtToFormat(filepath.Ext(job.Path))
	}
	if sourceType == "" {
		sourceType = constants.TXT
	}
	return &entity.ParseRecord{
		ID:               uuid.New(),
		SessionID:        sessionID,
		SourcePath:       job.Path,
		SourceType:       sourceType,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Processor) save(ctx context.Context, rec *entity.ParseRecord) error {
	if p.Records == nil {
		return nil
	}
	if err := p.Records.Save(ctx, rec); err != nil {
		p.Logger.Error("pipeline.record.save_failed", "session_id", rec.SessionID, "record_id", rec.ID, "error", err)
		return err
	}
	return nil
}
