package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"unicode/utf8"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/doctext"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
)

// TextSource turns a document on disk into plain text.
type TextSource interface {
	Extract(ctx context.Context, path string) (doctext.Result, error)
}

type TextStage struct {
	Docs    TextSource
	Tracker *progress.Tracker
	Logger  *slog.Logger
}

func NewTextStage(docs TextSource, tracker *progress.Tracker, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStage{Docs: docs, Tracker: tracker, Logger: logger}
}

// Run resolves the job's text. Inline text is used as-is; a path goes through the
// document text service. The session moves through uploading and parsing.
func (s *TextStage) Run(ctx context.Context, sessionID string, job Job) (doctext.Result, error) {
	s.Tracker.UpdateStage(sessionID, constants.StatusUploading, "reading document")
	if job.Text != "" {
		s.Tracker.SetTextLength(sessionID, utf8.RuneCountInString(job.Text))
		return doctext.Result{Text: job.Text, Method: doctext.MethodText, SourceType: constants.TXT, PageCount: 1}, nil
	}
	if job.Path == "" {
		return doctext.Result{}, common.NewAppError("INVALID_JOB", "job has neither a path nor text", common.ErrInvalidInput)
	}
	if s.Docs == nil {
		return doctext.Result{}, common.NewAppError("NO_TEXT_SOURCE", "document text service not configured", common.ErrInternal)
	}

	s.Tracker.UpdateStage(sessionID, constants.StatusParsing, "extracting text from "+filepath.Base(job.Path))
	res, err := s.Docs.Extract(ctx, job.Path)
	if err != nil {
		return res, fmt.Errorf("extract text: %w", err)
	}
	for _, w := range res.Warnings {
		s.Logger.Warn("pipeline.text.warning", "session_id", sessionID, "path", job.Path, "warning", w)
	}
	s.Tracker.SetTextLength(sessionID, utf8.RuneCountInString(res.Text))
	s.Logger.Info("pipeline.text.ok",
		"session_id", sessionID,
		"path", job.Path,
		"method", res.Method,
		"pages", res.PageCount,
		"chars", utf8.RuneCountInString(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
