package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/completeness"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/topics"
)

// Sheet names of the parse workbook.
const (
	SheetFields       = "Fields"
	SheetCompleteness = "Completeness"
	SheetChunks       = "Chunks"
)

// maxCellRunes keeps long clause values readable in a cell.
const maxCellRunes = 2000

// ParseReport is everything the workbook shows about one parse.
type ParseReport struct {
	SourcePath string
	Mode       string
	Data       fields.Map
	Score      completeness.Score
	Chunks     []chunking.SemanticChunkInfo
}

// Service produces XLSX bytes for parse results.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ParseResultXLSX returns a workbook with the extracted fields, the completeness details and
// the chunk layout.
func (s *Service) ParseResultXLSX(rep ParseReport) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes Fields
	if err := f.SetSheetName(f.GetSheetName(0), SheetFields); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetCompleteness, SheetChunks} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	s.writeFields(f, rep)
	s.writeCompleteness(f, rep.Score)
	s.writeChunks(f, rep.Chunks)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"source", rep.SourcePath,
		"fields", len(rep.Data),
		"chunks", len(rep.Chunks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func (s *Service) writeFields(f *excelize.File, rep ParseReport) {
	writeRow(f, SheetFields, 1, "Field", "Description", "Type", "Value")
	row := 2
	for _, name := range rep.Data.Keys() {
		v := rep.Data[name]
		def, _ := topics.LookupField(name)
		var cell any = truncate(v.Display(), maxCellRunes)
		if v.Kind() == fields.KindNumber {
			cell = v.Num()
		}
		writeRow(f, SheetFields, row, name, def.Description, v.Kind().String(), cell)
		row++
	}
	row++
	writeRow(f, SheetFields, row, "Source", rep.SourcePath)
	writeRow(f, SheetFields, row+1, "Mode", rep.Mode)

	_ = f.SetColWidth(SheetFields, "A", "A", 22)
	_ = f.SetColWidth(SheetFields, "B", "B", 28)
	_ = f.SetColWidth(SheetFields, "C", "C", 10)
	_ = f.SetColWidth(SheetFields, "D", "D", 60)
}

func (s *Service) writeCompleteness(f *excelize.File, sc completeness.Score) {
	writeRow(f, SheetCompleteness, 1, "Field", "Category", "Max Score", "Actual Score", "Has Value")
	row := 2
	for _, d := range sc.Details {
		writeRow(f, SheetCompleteness, row, d.Field, string(d.Category), d.MaxScore, d.ActualScore, d.HasValue)
		row++
	}
	row++
	writeRow(f, SheetCompleteness, row, "Total", "", sc.MaxScore, sc.TotalScore)
	writeRow(f, SheetCompleteness, row+1, "Strategy", string(sc.Strategy))

	_ = f.SetColWidth(SheetCompleteness, "A", "A", 22)
	_ = f.SetColWidth(SheetCompleteness, "B", "B", 12)
}

func (s *Service) writeChunks(f *excelize.File, chunks []chunking.SemanticChunkInfo) {
	writeRow(f, SheetChunks, 1, "ID", "Type", "Title", "Article", "Priority", "Start", "End", "Length", "Page", "Relevant Fields")
	for i, c := range chunks {
		writeRow(f, SheetChunks, i+2,
			c.ID, string(c.Type), c.Title, c.ArticleNumber, c.Priority,
			c.StartIndex, c.EndIndex, c.Length, c.PageHint, strings.Join(c.FieldRelevance, ", "),
		)
	}
	_ = f.SetColWidth(SheetChunks, "C", "C", 28)
	_ = f.SetColWidth(SheetChunks, "J", "J", 60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
