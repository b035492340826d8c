package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/doctext"
	"github.com/joseph-ayodele/contracts-parser/internal/export"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/llm/openai"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
)

type output struct {
	Result parser.Result `json:"result"`
	Data   any           `json:"data"`
	Score  any           `json:"completeness"`
	Method string        `json:"textMethod"`
	Pages  int           `json:"pages"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 || len(os.Args) > 4 {
		logger.Error("usage", "cmd", "contract-parse <file> [mode] [out.xlsx]")
		os.Exit(2)
	}
	path := os.Args[1]
	modeArg := ""
	if len(os.Args) > 2 {
		modeArg = os.Args[2]
	}
	mode, ok := constants.ParseModeFromString(modeArg)
	if !ok {
		logger.Error("invalid mode", "mode", modeArg, "allowed", constants.ModesAsStringSlice())
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	docs := doctext.NewExtractor(doctext.ConfigFromApp(cfg.DocText), logger)
	client := openai.NewClient(openai.ConfigFromApp(cfg.LLM), logger)
	fieldExtractor := llm.NewFieldExtractor(client, llm.ExtractorConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	parserOpts := parser.OptionsFromConfig(cfg.Parser)
	orchestrator := parser.NewOrchestrator(fieldExtractor, parserOpts, logger)
	processor := pipeline.NewProcessor(logger, docs, orchestrator, nil, nil, parserOpts)

	out, err := processor.Process(ctx, pipeline.Job{Path: path, Mode: mode})
	if err != nil {
		logger.Error("parse failed", "path", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{
		Result: out.Parse.Result,
		Data:   out.Parse.Data,
		Score:  out.Parse.Score,
		Method: out.Document.Method,
		Pages:  out.Document.PageCount,
	}); err != nil {
		logger.Error("write result", "error", err)
		os.Exit(1)
	}

	if len(os.Args) == 4 {
		xlsx, err := export.NewService(logger).ParseResultXLSX(export.ParseReport{
			SourcePath: path,
			Mode:       string(out.Parse.Result.Mode),
			Data:       out.Parse.Data,
			Score:      out.Parse.Score,
			Chunks:     chunking.Infos(out.Parse.Result.Chunks),
		})
		if err != nil {
			logger.Error("export xlsx", "error", err)
			os.Exit(1)
		}
		dest := os.Args[3]
		if err := os.WriteFile(dest, xlsx, 0o644); err != nil {
			logger.Error("write xlsx", "path", dest, "error", err)
			os.Exit(1)
		}
		logger.Info("xlsx written", "path", filepath.Clean(dest), "bytes", len(xlsx))
	}
}
