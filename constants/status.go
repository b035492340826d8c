package constants

// SessionStatus is the stage of a parse session as reported to progress pollers.
type SessionStatus string

// Stable values (exposed verbatim over the API).
const (
	StatusInitializing  SessionStatus = "initializing"
	StatusUploading     SessionStatus = "uploading"
	StatusParsing       SessionStatus = "parsing"  // document text extraction
	StatusChunking      SessionStatus = "chunking" // semantic segmentation
	StatusLLMProcessing SessionStatus = "llm_processing"
	StatusMerging       SessionStatus = "merging"
	StatusCompleted     SessionStatus = "completed" // terminal
	StatusFailed        SessionStatus = "failed"    // terminal
)

// IsTerminal reports whether no further transitions are accepted.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemStatus tracks a single chunk or task inside a session.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)
