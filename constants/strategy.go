package constants

import "strings"

// ParseStrategy is the amount of model assistance applied to a document.
type ParseStrategy string

const (
	StrategyDirectUse         ParseStrategy = "DIRECT_USE"
	StrategyLLMValidation     ParseStrategy = "LLM_VALIDATION"
	StrategyLLMFullExtraction ParseStrategy = "LLM_FULL_EXTRACTION"
	StrategyRAG               ParseStrategy = "RAG"
	StrategyDocling           ParseStrategy = "DOCLING"
)

// ParseMode selects the execution path of the optimized parser.
type ParseMode string

const (
	ModeAuto       ParseMode = "AUTO"
	ModeLegacy     ParseMode = "LEGACY"
	ModeSemantic   ParseMode = "SEMANTIC"
	ModeRAG        ParseMode = "RAG"
	ModeConcurrent ParseMode = "CONCURRENT"
)

var allModes = []ParseMode{ModeAuto, ModeLegacy, ModeSemantic, ModeRAG, ModeConcurrent}

func ModesAsStringSlice() []string {
	out := make([]string, len(allModes))
	for i, m := range allModes {
		out[i] = string(m)
	}
	return out
}

// ParseModeFromString accepts mode names case-insensitively. An empty string means AUTO.
func ParseModeFromString(s string) (ParseMode, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ModeAuto, true
	}
	for _, m := range allModes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// ParseStrategyFromString is the strategy counterpart of ParseModeFromString.
func ParseStrategyFromString(s string) (ParseStrategy, bool) {
	switch ParseStrategy(strings.ToUpper(strings.TrimSpace(s))) {
	case StrategyDirectUse:
		return StrategyDirectUse, true
	case StrategyLLMValidation:
		return StrategyLLMValidation, true
	case StrategyLLMFullExtraction:
		return StrategyLLMFullExtraction, true
	case StrategyRAG:
		return StrategyRAG, true
	case StrategyDocling:
		return StrategyDocling, true
	}
	return "", false
}
