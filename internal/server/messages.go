package server

import (
	"time"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/entity"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
)

type SubmitParseRequest struct {
	Path         string         `json:"path,omitempty"`
	Text         string         `json:"text,omitempty"`
	FileName     string         `json:"fileName,omitempty"`
	Mode         string         `json:"mode,omitempty"`
	TargetFields []string       `json:"targetFields,omitempty"`
	Baseline     map[string]any `json:"baseline,omitempty"`
}

type SubmitParseResponse struct {
	SessionID   string    `json:"sessionId"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type ParseTextRequest struct {
	Text          string         `json:"text"`
	FileName      string         `json:"fileName,omitempty"`
	Mode          string         `json:"mode,omitempty"`
	TargetFields  []string       `json:"targetFields,omitempty"`
	Baseline      map[string]any `json:"baseline,omitempty"`
	MinChunkSize  int            `json:"minChunkSize,omitempty"`
	MaxConcurrent int            `json:"maxConcurrent,omitempty"`
}

type ParseTextResponse struct {
	SessionID     string             `json:"sessionId"`
	RecordID      string             `json:"recordId,omitempty"`
	Result        parser.Result      `json:"result"`
	ExtractedData map[string]any     `json:"extractedData"`
	Strategy      string             `json:"strategy,omitempty"`
	Completeness  completeness.Score `json:"completeness"`
}

type GetProgressRequest struct {
	SessionID string `json:"sessionId"`
}

type GetProgressResponse struct {
	progress.Snapshot
}

type ScoreCompletenessRequest struct {
	Fields map[string]any `json:"fields"`
}

type ScoreCompletenessResponse struct {
	Score          completeness.Score `json:"score"`
	Reason         string             `json:"reason"`
	MissingFields  []string           `json:"missingFields"`
	PriorityFields []string           `json:"priorityFields"`
}

type InspectChunksRequest struct {
	Text         string   `json:"text"`
	MinChunkSize int      `json:"minChunkSize,omitempty"`
	Fields       []string `json:"fields,omitempty"`
}

type InspectChunksResponse struct {
	Chunks      []chunking.SemanticChunkInfo `json:"chunks"`
	RelevantIDs []string                     `json:"relevantIds,omitempty"`
}

type GetRecordRequest struct {
	ID string `json:"id"`
}

type RecordResponse struct {
	Record *entity.ParseRecord `json:"record"`
}

type ListRecordsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListRecordsResponse struct {
	Records []*entity.ParseRecord `json:"records"`
}

type ExportRecordRequest struct {
	ID string `json:"id"`
}

type ExportRecordResponse struct {
	FileName string `json:"fileName"`
	Xlsx     []byte `json:"xlsx"` // base64 in JSON
}

type IngestDirectoryRequest struct {
	Root       string `json:"root"`
	SkipHidden bool   `json:"skipHidden,omitempty"`
}

type IngestResult struct {
	SourcePath   string `json:"sourcePath"`
	Deduplicated bool   `json:"deduplicated"`
	HashHex      string `json:"hashHex,omitempty"`
	Error        string `json:"error,omitempty"`
}

type IngestDirectoryResponse struct {
	Results      []IngestResult `json:"results"`
	Scanned      uint32         `json:"scanned"`
	Matched      uint32         `json:"matched"`
	Succeeded    uint32         `json:"succeeded"`
	Deduplicated uint32         `json:"deduplicated"`
	Failed       uint32         `json:"failed"`
}
