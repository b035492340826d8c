package rag

import (
	"math"
	"sort"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
)

// Strategy is how a single field gets resolved.
type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyHybrid Strategy = "hybrid"
	StrategyLLM    Strategy = "llm"
)

const (
	fieldRelevanceWeight = 0.5
	typeCompatWeight     = 0.3
	keywordWeight        = 0.05
	keywordCap           = 0.2

	// DirectThreshold and HybridThreshold are exclusive lower bounds on the top chunk score.
	DirectThreshold = 0.8
	HybridThreshold = 0.4

	DefaultMaxChunksPerField = 3
	hybridChunkCap           = 2
)

// typeCompat lists the chunk types a field is usually found in.
var typeCompat = map[string][]chunking.ChunkType{
	"contractNumber":    {chunking.TypeHeader},
	"title":             {chunking.TypeHeader},
	"contractType":      {chunking.TypeHeader, chunking.TypeGeneric},
	"customerName":      {chunking.TypeParty, chunking.TypeHeader, chunking.TypeSignature},
	"ourEntity":         {chunking.TypeParty, chunking.TypeHeader, chunking.TypeSignature},
	"customerContact":   {chunking.TypeParty, chunking.TypeSignature},
	"salesPerson":       {chunking.TypeParty, chunking.TypeSignature},
	"totalAmount":       {chunking.TypeFinancial},
	"currency":          {chunking.TypeFinancial},
	"taxRate":           {chunking.TypeFinancial},
	"paymentMethod":     {chunking.TypeFinancial},
	"paymentTerms":      {chunking.TypeFinancial},
	"signedAt":          {chunking.TypeSignature, chunking.TypeHeader},
	"effectiveAt":       {chunking.TypeSchedule},
	"expiresAt":         {chunking.TypeSchedule},
	"duration":          {chunking.TypeSchedule},
	"signLocation":      {chunking.TypeSignature, chunking.TypeHeader},
	"industry":          {chunking.TypeHeader, chunking.TypeGeneric},
	"rateItems":         {chunking.TypeFinancial},
	"overtimeRate":      {chunking.TypeFinancial},
	"milestones":        {chunking.TypeSchedule, chunking.TypeFinancial},
	"deliverables":      {chunking.TypeSchedule, chunking.TypeGeneric},
	"lineItems":         {chunking.TypeFinancial, chunking.TypeGeneric},
	"deliveryTerms":     {chunking.TypeSchedule},
	"riskClauses":       {chunking.TypeRisk},
	"penaltyTerms":      {chunking.TypeRisk},
	"disputeResolution": {chunking.TypeRisk},
}

// TypeCompatible reports whether chunks of type t usually carry field.
func TypeCompatible(field string, t chunking.ChunkType) bool {
	for _, ct := range typeCompat[field] {
		if ct == t {
			return true
		}
	}
	return false
}

// CalculateFieldRelevance scores how likely chunk holds field, in [0, 1].
func CalculateFieldRelevance(chunk chunking.SemanticChunk, field string) float64 {
	score := 0.0
	if chunk.RelevantTo(field) {
		score += fieldRelevanceWeight
	}
	if TypeCompatible(field, chunk.Metadata.Type) {
		score += typeCompatWeight
	}
	score += math.Min(float64(chunking.KeywordHits(field, chunk.Text))*keywordWeight, keywordCap)
	return math.Round(math.Min(score, 1.0)*10000) / 10000
}

// RankedChunk is a chunk with its relevance to one field.
type RankedChunk struct {
	Chunk chunking.SemanticChunk
	Score float64
}

// ExtractionPlan says how one field will be resolved and from which chunks.
type ExtractionPlan struct {
	Field      string
	Chunks     []RankedChunk
	Strategy   Strategy
	Confidence float64
}

// ChunkIDs returns the ids of the planned chunks in rank order.
func (p ExtractionPlan) ChunkIDs() []string {
	ids := make([]string, len(p.Chunks))
	for i, rc := range p.Chunks {
		ids[i] = rc.Chunk.ID
	}
	return ids
}

// StrategyFor classifies a top relevance score.
func StrategyFor(top float64) Strategy {
	switch {
	case top > DirectThreshold:
		return StrategyDirect
	case top > HybridThreshold:
		return StrategyHybrid
	default:
		return StrategyLLM
	}
}

// CreateExtractionPlans ranks chunks per field (stable, so ties keep document order) and
// keeps the best maxChunksPerField with a non-zero score. Structured fields have no text
// pattern, so they are planned as hybrid at most.
func CreateExtractionPlans(chunks []chunking.SemanticChunk, fieldNames []string, maxChunksPerField int) []ExtractionPlan {
	if maxChunksPerField <= 0 {
		maxChunksPerField = DefaultMaxChunksPerField
	}
	plans := make([]ExtractionPlan, 0, len(fieldNames))
	for _, f := range fieldNames {
		ranked := make([]RankedChunk, 0, len(chunks))
		for _, c := range chunks {
			if s := CalculateFieldRelevance(c, f); s > 0 {
				ranked = append(ranked, RankedChunk{Chunk: c, Score: s})
			}
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
		if len(ranked) > maxChunksPerField {
			ranked = ranked[:maxChunksPerField]
		}
		top := 0.0
		if len(ranked) > 0 {
			top = ranked[0].Score
		}
		strategy := StrategyFor(top)
		if strategy == StrategyDirect && !HasDirectRule(f) {
			strategy = StrategyHybrid
		}
		plans = append(plans, ExtractionPlan{
			Field:      f,
			Chunks:     ranked,
			Strategy:   strategy,
			Confidence: top,
		})
	}
	return plans
}
