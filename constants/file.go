package constants

import "strings"

// Document formats understood by the text extraction stage.
const (
	PDF  = "PDF"
	DOCX = "DOCX"
	TXT  = "TXT"
)

// FileTypes holds the allowed values for the source_type column of parse records.
var FileTypes = []string{PDF, DOCX, TXT}

// AllowedExtensions holds the default allowed file extensions for contract ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
	"md":   {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the document format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "docx":
		return DOCX
	case "txt", "md":
		return TXT
	default:
		return ""
	}
}
