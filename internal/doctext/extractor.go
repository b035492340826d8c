// Package doctext turns contract documents into plain text.
package doctext

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
)

// Extraction methods.
const (
	MethodText    = "text"
	MethodPDFText = "pdf-text"
	MethodDocling = "docling"
)

type Config struct {
	Pdftotext      string // binary name or absolute path; if empty -> "pdftotext"
	DoclingPython  string // if empty -> "python3"
	DoclingScript  string
	DoclingEnabled bool
	PreferDocling  bool // try docling before pdftotext for PDFs
	DoclingOCR     bool
}

// ConfigFromApp maps the document text settings of the app config.
func ConfigFromApp(c common.DocTextConfig) Config {
	return Config{
		Pdftotext:      c.Pdftotext,
		DoclingPython:  c.DoclingPython,
		DoclingScript:  c.DoclingScript,
		DoclingEnabled: c.DoclingEnabled,
		DoclingOCR:     true,
	}
}

type Result struct {
	Text       string
	PageCount  int
	Method     string
	SourceType string // constants.PDF | constants.DOCX | constants.TXT
	Tables     int
	Duration   time.Duration
	Warnings   []string
}

type Option func(*Extractor)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithPageCounter replaces the pdfcpu page counter.
func WithPageCounter(fn func(path string) (int, error)) Option {
	return func(e *Extractor) { e.pageCount = fn }
}

type Extractor struct {
	cfg       Config
	runner    Runner
	pageCount func(path string) (int, error)
	logger    *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.DoclingPython == "" {
		cfg.DoclingPython = "python3"
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, pageCount: pdfPageCount, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("doctext.extract.start", "path", path, "ext", ext)

	var (
		res Result
		err error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.TXT:
		res, err = e.extractPlain(path)
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.DOCX:
		res, err = e.extractDocling(ctx, path, constants.DOCX)
	default:
		e.logger.Error("doctext.extract.unsupported", "extension", ext)
		return Result{}, common.NewAppError("UNSUPPORTED_FORMAT", fmt.Sprintf("unsupported extension: %q", ext), common.ErrInvalidInput)
	}
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("doctext.extract.failed", "path", path, "error", err, "elapsed_ms", res.Duration.Milliseconds())
		return res, err
	}
	e.logger.Info("doctext.extract.ok",
		"path", path,
		"method", res.Method,
		"pages", res.PageCount,
		"chars", len([]rune(res.Text)),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractPlain(path string) (Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{SourceType: constants.TXT}, fmt.Errorf("read %s: %w", path, err)
	}
	text := Normalize(string(b))
	return Result{
		Text:       text,
		PageCount:  1 + strings.Count(text, "\f"),
		Method:     MethodText,
		SourceType: constants.TXT,
	}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	var warns []string
	if e.cfg.PreferDocling {
		res, err := e.extractDocling(ctx, path, constants.PDF)
		if err == nil {
			return res, nil
		}
		warns = append(warns, "docling failed, falling back to pdftotext: "+err.Error())
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Result{SourceType: constants.PDF, Warnings: warns}, fmt.Errorf("pdftotext: %w", withStderr(err, errb))
	}
	raw := string(out)
	text := Normalize(raw)

	if strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) == "" {
		// no text layer, most likely a scan
		res, derr := e.extractDocling(ctx, path, constants.PDF)
		res.Warnings = append(warns, res.Warnings...)
		if derr != nil {
			res.Warnings = append(res.Warnings, derr.Error())
			return res, fmt.Errorf("pdf has no text layer: %w", derr)
		}
		res.Warnings = append(res.Warnings, "pdf has no text layer, used docling")
		return res, nil
	}

	pages, perr := e.pageCount(path)
	if perr == nil && pages <= 0 {
		perr = fmt.Errorf("pdfcpu reported %d pages", pages)
	}
	if perr != nil {
		// A form-feed \f is used as page separator by default
		pages = 1 + strings.Count(strings.TrimRight(raw, "\f\n"), "\f")
		warns = append(warns, fmt.Sprintf("page count from form feeds: %v", perr))
	}
	return Result{
		Text:       text,
		PageCount:  pages,
		Method:     MethodPDFText,
		SourceType: constants.PDF,
		Warnings:   warns,
	}, nil
}

func (e *Extractor) extractDocling(ctx context.Context, path, sourceType string) (Result, error) {
	dr, err := e.convertDocling(ctx, path, DoclingOptions{OCR: e.cfg.DoclingOCR})
	if err != nil {
		return Result{SourceType: sourceType}, err
	}
	pages := dr.Pages
	if pages <= 0 {
		pages = 1
	}
	return Result{
		Text:       Normalize(dr.Markdown),
		PageCount:  pages,
		Method:     MethodDocling,
		SourceType: sourceType,
		Tables:     len(dr.Tables),
	}, nil
}

func pdfPageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, nil)
}
