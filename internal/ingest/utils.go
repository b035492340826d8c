package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/contracts-parser/constants"
)

// AllowedExt checks if a file extension is in the allowed set (pdf/docx/txt/md).
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// isTempFile matches editor lock and partial-download files such as ~$draft.docx.
func isTempFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "~$") || strings.HasSuffix(base, ".part") || strings.HasSuffix(base, ".crdownload")
}
