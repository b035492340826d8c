package completeness

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
)

// Strategy thresholds, inclusive at the lower bound.
const (
	DirectUseThreshold  = 70
	ValidationThreshold = 50
	DefaultPriorityTop  = 10
)

// Phrases used by StrategyReason.
const (
	PhraseDirectUse      = "direct use of the rule-based result"
	PhraseValidation     = "LLM validation mode"
	PhraseFullExtraction = "LLM full extraction mode"
)

// CategoryScores holds the per-category sums.
type CategoryScores struct {
	Basic     int `json:"basic"`
	Financial int `json:"financial"`
	Temporal  int `json:"temporal"`
	Other     int `json:"other"`
}

// FieldScoreDetail is the outcome for one catalog entry.
type FieldScoreDetail struct {
	Field       string   `json:"field"`
	Category    Category `json:"category"`
	MaxScore    int      `json:"maxScore"`
	ActualScore int      `json:"actualScore"`
	HasValue    bool     `json:"hasValue"`
}

// Score is the weighted completeness of a field map.
type Score struct {
	TotalScore     int                     `json:"totalScore"`
	MaxScore       int                     `json:"maxScore"`
	Percentage     float64                 `json:"percentage"`
	Strategy       constants.ParseStrategy `json:"strategy"`
	CategoryScores CategoryScores          `json:"categoryScores"`
	Details        []FieldScoreDetail      `json:"details"`
}

// Scorer computes completeness scores. It is stateless apart from its logger.
type Scorer struct {
	logger *slog.Logger
}

func NewScorer(logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{logger: logger}
}

// Normalize returns a copy of m where legacy keys fill unset canonical fields.
func Normalize(m fields.Map) fields.Map {
	out := m.Clone()
	for _, a := range FieldMapping {
		if out.Has(a.Canonical) {
			continue
		}
		if v, ok := m[a.Legacy]; ok && fields.HasValue(v) {
			out[a.Canonical] = v
		}
	}
	return out
}

// CalculateScore scores m against the catalog. It never fails; malformed values count as absent.
func (s *Scorer) CalculateScore(m fields.Map) Score {
	normalized := Normalize(m)

	score := Score{MaxScore: MaxScore, Details: make([]FieldScoreDetail, 0, len(Catalog))}
	for _, fw := range Catalog {
		has := normalized.Has(fw.Field)
		actual := 0
		if has {
			actual = fw.Weight
		}
		score.Details = append(score.Details, FieldScoreDetail{
			Field:       fw.Field,
			Category:    fw.Category,
			MaxScore:    fw.Weight,
			ActualScore: actual,
			HasValue:    has,
		})
		score.TotalScore += actual
		switch fw.Category {
		case CategoryBasic:
			score.CategoryScores.Basic += actual
		case CategoryFinancial:
			score.CategoryScores.Financial += actual
		case CategoryTemporal:
			score.CategoryScores.Temporal += actual
		case CategoryOther:
			score.CategoryScores.Other += actual
		}
	}
	score.Percentage = float64(score.TotalScore) / float64(MaxScore) * 100
	score.Strategy = DetermineStrategy(score.TotalScore)

	s.logger.Debug("completeness.score",
		"total", score.TotalScore,
		"basic", score.CategoryScores.Basic,
		"financial", score.CategoryScores.Financial,
		"temporal", score.CategoryScores.Temporal,
		"other", score.CategoryScores.Other,
		"strategy", score.Strategy,
	)
	return score
}

// DetermineStrategy maps a total score onto a parse strategy.
func DetermineStrategy(score int) constants.ParseStrategy {
	switch {
	case score >= DirectUseThreshold:
		return constants.StrategyDirectUse
	case score >= ValidationThreshold:
		return constants.StrategyLLMValidation
	default:
		return constants.StrategyLLMFullExtraction
	}
}

// NeedsLLM reports whether a score requires any model assistance.
func NeedsLLM(score int) bool {
	return score < DirectUseThreshold
}

// MissingFields lists catalog fields without a value, in catalog order.
func (sc Score) MissingFields() []string {
	var out []string
	for _, d := range sc.Details {
		if !d.HasValue {
			out = append(out, d.Field)
		}
	}
	return out
}

// PresentFields lists catalog fields with a value, in catalog order.
func (sc Score) PresentFields() []string {
	var out []string
	for _, d := range sc.Details {
		if d.HasValue {
			out = append(out, d.Field)
		}
	}
	return out
}

// GetMissingFields scores m and returns the fields still missing.
func (s *Scorer) GetMissingFields(m fields.Map) []string {
	return s.CalculateScore(m).MissingFields()
}

// IdentifyPriorityFields orders missing by descending weight, keeping catalog order on ties,
// and returns at most top entries (DefaultPriorityTop when top <= 0). Unknown names are ignored.
func IdentifyPriorityFields(missing []string, top int) []string {
	if top <= 0 {
		top = DefaultPriorityTop
	}
	wanted := make(map[string]struct{}, len(missing))
	for _, f := range missing {
		wanted[f] = struct{}{}
	}
	var ordered []FieldWeight
	for _, fw := range Catalog {
		if _, ok := wanted[fw.Field]; ok {
			ordered = append(ordered, fw)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weight > ordered[j].Weight
	})
	if len(ordered) > top {
		ordered = ordered[:top]
	}
	out := make([]string, len(ordered))
	for i, fw := range ordered {
		out[i] = fw.Field
	}
	return out
}

// StrategyReason explains a strategy decision for humans.
func StrategyReason(score int, strategy constants.ParseStrategy) string {
	switch strategy {
	case constants.StrategyDirectUse:
		return fmt.Sprintf("completeness score %d >= %d: %s", score, DirectUseThreshold, PhraseDirectUse)
	case constants.StrategyLLMValidation:
		return fmt.Sprintf("completeness score %d is between %d and %d: %s fills and checks the missing fields",
			score, ValidationThreshold, DirectUseThreshold-1, PhraseValidation)
	case constants.StrategyLLMFullExtraction:
		return fmt.Sprintf("completeness score %d < %d: %s re-extracts every field", score, ValidationThreshold, PhraseFullExtraction)
	case constants.StrategyRAG:
		return fmt.Sprintf("completeness score %d: retrieval-augmented extraction over relevant chunks", score)
	case constants.StrategyDocling:
		return fmt.Sprintf("completeness score %d: structured document conversion before extraction", score)
	default:
		return fmt.Sprintf("completeness score %d: unknown strategy %q", score, strategy)
	}
}
