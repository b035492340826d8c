package chunking

// ChunkType is the coarse role of a chunk inside a contract.
type ChunkType string

const (
	TypeHeader    ChunkType = "header"
	TypeParty     ChunkType = "party"
	TypeFinancial ChunkType = "financial"
	TypeSchedule  ChunkType = "schedule"
	TypeRisk      ChunkType = "risk"
	TypeSignature ChunkType = "signature"
	TypeGeneric   ChunkType = "generic"
)

// priorities rank chunk types when only a few chunks can be sent to a model. Higher first.
var priorities = map[ChunkType]int{
	TypeHeader:    10,
	TypeParty:     9,
	TypeFinancial: 9,
	TypeSchedule:  7,
	TypeSignature: 6,
	TypeRisk:      5,
	TypeGeneric:   3,
}

// Priority returns the rank of a chunk type.
func Priority(t ChunkType) int {
	return priorities[t]
}

// Metadata describes what a chunk is likely to contain.
type Metadata struct {
	Type           ChunkType `json:"type"`
	Title          string    `json:"title,omitempty"`
	ArticleNumber  string    `json:"articleNumber,omitempty"`
	Priority       int       `json:"priority"`
	FieldRelevance []string  `json:"fieldRelevance"`
}

// Position holds byte offsets into the source text. PageHint is 1-based and 0 when unknown.
type Position struct {
	Start    int `json:"start"`
	End      int `json:"end"`
	PageHint int `json:"pageHint,omitempty"`
}

// SemanticChunk is a contiguous, typed slice of the source text.
type SemanticChunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Position Position `json:"position"`
}

// RelevantTo reports whether the chunk lists field as relevant.
func (c SemanticChunk) RelevantTo(field string) bool {
	for _, f := range c.Metadata.FieldRelevance {
		if f == field {
			return true
		}
	}
	return false
}

// RelevantFields returns the subset of fields (in the given order) the chunk is relevant to.
func (c SemanticChunk) RelevantFields(fields []string) []string {
	var out []string
	for _, f := range fields {
		if c.RelevantTo(f) {
			out = append(out, f)
		}
	}
	return out
}

// SemanticChunkInfo is the flattened view used by inspection tooling.
type SemanticChunkInfo struct {
	ID             string    `json:"id"`
	Type           ChunkType `json:"type"`
	Title          string    `json:"title,omitempty"`
	ArticleNumber  string    `json:"articleNumber,omitempty"`
	Priority       int       `json:"priority"`
	FieldRelevance []string  `json:"fieldRelevance"`
	Length         int       `json:"length"`
	StartIndex     int       `json:"startIndex"`
	EndIndex       int       `json:"endIndex"`
	PageHint       int       `json:"pageHint,omitempty"`
}

// Info flattens a chunk. Length is End-Start in bytes.
func Info(c SemanticChunk) SemanticChunkInfo {
	return SemanticChunkInfo{
		ID:             c.ID,
		Type:           c.Metadata.Type,
		Title:          c.Metadata.Title,
		ArticleNumber:  c.Metadata.ArticleNumber,
		Priority:       c.Metadata.Priority,
		FieldRelevance: c.Metadata.FieldRelevance,
		Length:         c.Position.End - c.Position.Start,
		StartIndex:     c.Position.Start,
		EndIndex:       c.Position.End,
		PageHint:       c.Position.PageHint,
	}
}

// Infos flattens a chunk list.
func Infos(chunks []SemanticChunk) []SemanticChunkInfo {
	out := make([]SemanticChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = Info(c)
	}
	return out
}
