package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParseRecord is the persisted outcome of one parse, for data transfer between layers.
type ParseRecord struct {
	ID                uuid.UUID       `json:"id"`
	SessionID         string          `json:"session_id"`
	SourcePath        string          `json:"source_path"`
	SourceType        string          `json:"source_type,omitempty"`
	Mode              string          `json:"mode"`
	Strategy          string          `json:"strategy,omitempty"`
	Success           bool            `json:"success"`
	Confidence        float64         `json:"confidence"`
	CompletenessScore int             `json:"completeness_score"`
	ExtractedJSON     json.RawMessage `json:"extracted_json,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Error             string          `json:"error,omitempty"`
	TokensUsed        int             `json:"tokens_used"`
	ProcessingTimeMs  int64           `json:"processing_time_ms"`
	CreatedAt         time.Time       `json:"created_at"`
}
