package doctext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DoclingOptions is passed to the wrapper script as JSON.
type DoclingOptions struct {
	OCR bool `json:"ocr"`
}

type DoclingTable struct {
	Markdown string `json:"markdown"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
}

type DoclingImage struct {
	Page   int `json:"page"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DoclingResult is the wrapper's convert output.
type DoclingResult struct {
	Markdown string         `json:"markdown"`
	Tables   []DoclingTable `json:"tables"`
	Pages    int            `json:"pages"`
	Images   []DoclingImage `json:"images"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
}

type doclingVersion struct {
	Available bool   `json:"docling_available"`
	Version   string `json:"version"`
}

var errDoclingDisabled = errors.New("docling is not configured")

// convertDocling runs `python <script> convert <path> <opts_json>`.
func (e *Extractor) convertDocling(ctx context.Context, path string, opts DoclingOptions) (DoclingResult, error) {
	if !e.cfg.DoclingEnabled || e.cfg.DoclingScript == "" {
		return DoclingResult{}, errDoclingDisabled
	}
	optJSON, err := json.Marshal(opts)
	if err != nil {
		return DoclingResult{}, err
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.DoclingPython, e.cfg.DoclingScript, "convert", path, string(optJSON))
	if err != nil {
		return DoclingResult{}, fmt.Errorf("docling convert: %w", withStderr(err, errb))
	}
	var res DoclingResult
	if err := json.Unmarshal(lastJSONLine(out), &res); err != nil {
		return DoclingResult{}, fmt.Errorf("docling convert: decode output: %w", err)
	}
	if !res.Success {
		return res, fmt.Errorf("docling convert: %s", res.Error)
	}
	return res, nil
}

// DoclingAvailable asks the wrapper whether docling is installed.
func (e *Extractor) DoclingAvailable(ctx context.Context) bool {
	if !e.cfg.DoclingEnabled || e.cfg.DoclingScript == "" {
		return false
	}
	out, _, err := e.runner.Run(ctx, e.cfg.DoclingPython, e.cfg.DoclingScript, "--version")
	if err != nil {
		return false
	}
	var v doclingVersion
	if err := json.Unmarshal(lastJSONLine(out), &v); err != nil {
		e.logger.Warn("doctext.docling.version_unreadable", "error", err)
		return false
	}
	e.logger.Debug("doctext.docling.version", "available", v.Available, "version", v.Version)
	return v.Available
}

// lastJSONLine skips anything the python side logged to stdout before its result.
func lastJSONLine(out []byte) []byte {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "{") {
			return []byte(l)
		}
	}
	return out
}
