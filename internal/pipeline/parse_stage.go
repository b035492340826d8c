package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
)

// ParseOutcome is what the parse stage produced for one document.
type ParseOutcome struct {
	Result      parser.Result
	Enhancement *parser.Enhancement
	Data        fields.Map
	Score       completeness.Score
	Strategy    constants.ParseStrategy
}

type ParseStage struct {
	Orchestrator *parser.Orchestrator
	Scorer       *completeness.Scorer
	Tracker      *progress.Tracker
	Options      parser.Options
	Logger       *slog.Logger
}

func NewParseStage(orch *parser.Orchestrator, tracker *progress.Tracker, opts parser.Options, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{
		Orchestrator: orch,
		Scorer:       completeness.NewScorer(logger),
		Tracker:      tracker,
		Options:      opts,
		Logger:       logger,
	}
}

// Run extracts fields from text. With a baseline the orchestrator only fills what the
// baseline lacks; without one it extracts the job's target fields.
func (s *ParseStage) Run(ctx context.Context, sessionID, text string, job Job) (ParseOutcome, error) {
	if job.Mode == "" {
		job.Mode = constants.ModeAuto
	}
	opts := s.Options
	if job.Overrides.MinChunkSize > 0 {
		opts.MinChunkSize = job.Overrides.MinChunkSize
	}
	if job.Overrides.MaxConcurrent > 0 {
		opts.MaxConcurrent = job.Overrides.MaxConcurrent
	}
	if job.Overrides.MaxChunksPerField > 0 {
		opts.MaxChunksPerField = job.Overrides.MaxChunksPerField
	}
	opts.Observer = newTrackerObserver(s.Tracker, sessionID)

	if job.Baseline != nil {
		enh, err := s.Orchestrator.EnhanceBaseline(ctx, text, job.Baseline, job.Mode, opts)
		if err != nil {
			return ParseOutcome{}, err
		}
		out := ParseOutcome{Enhancement: &enh, Data: enh.Data, Score: enh.After, Strategy: enh.Strategy}
		if enh.Parse != nil {
			out.Result = *enh.Parse
		} else {
			// no mode ran; the record carries only the DIRECT_USE strategy
			out.Result = parser.Result{Success: true, Confidence: 1, Data: enh.Data}
		}
		if js, err := enh.Data.JSON(); err == nil {
			out.Result.ExtractedDataJSON = js
		}
		return out, nil
	}

	res, err := s.Orchestrator.ParseOptimized(ctx, text, job.Mode, job.TargetFields, opts)
	if err != nil {
		return ParseOutcome{}, err
	}
	data := completeness.Normalize(res.Data)
	score := s.Scorer.CalculateScore(data)
	s.Logger.Debug("pipeline.parse.scored", "session_id", sessionID, "score", score.TotalScore, "strategy", score.Strategy)
	return ParseOutcome{Result: res, Data: data, Score: score, Strategy: score.Strategy}, nil
}
