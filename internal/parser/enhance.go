package parser

import (
	"context"
	"time"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
)

// Enhancement is the outcome of EnhanceBaseline. Parse is nil when the baseline was used as-is.
type Enhancement struct {
	Strategy constants.ParseStrategy `json:"strategy"`
	Reason   string                  `json:"reason"`
	Before   completeness.Score      `json:"before"`
	After    completeness.Score      `json:"after"`
	Data     fields.Map              `json:"data"`
	Targets  []string                `json:"targets,omitempty"`
	Parse    *Result                 `json:"parse,omitempty"`
}

// EnhanceBaseline scores a rule-based extraction and asks the model only for what it lacks.
// A baseline scoring DIRECT_USE is returned unchanged; LLM_VALIDATION targets the missing
// fields and LLM_FULL_EXTRACTION the whole catalog. Baseline values are never overwritten.
func (o *Orchestrator) EnhanceBaseline(ctx context.Context, text string, baseline fields.Map, mode constants.ParseMode, opts Options) (Enhancement, error) {
	start := time.Now()
	base := completeness.Normalize(baseline)
	before := o.scorer.CalculateScore(base)

	enh := Enhancement{
		Strategy: before.Strategy,
		Reason:   completeness.StrategyReason(before.TotalScore, before.Strategy),
		Before:   before,
		After:    before,
		Data:     base,
	}
	switch before.Strategy {
	case constants.StrategyDirectUse:
		o.logger.Info("parser.enhance.direct_use", "score", before.TotalScore)
		return enh, nil
	case constants.StrategyLLMValidation:
		enh.Targets = before.MissingFields()
	default:
		enh.Targets = completeness.FieldNames()
	}

	res, err := o.ParseOptimized(ctx, text, mode, enh.Targets, opts)
	if err != nil {
		return enh, err
	}
	enh.Parse = &res

	merged := base.Clone()
	added := merged.FillMissing(res.Data)
	enh.Data = merged
	enh.After = o.scorer.CalculateScore(merged)

	o.logger.Info("parser.enhance.ok",
		"strategy", enh.Strategy,
		"score_before", before.TotalScore,
		"score_after", enh.After.TotalScore,
		"added", len(added),
		"success", res.Success,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return enh, nil
}
