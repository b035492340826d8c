package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/async"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/doctext"
	"github.com/joseph-ayodele/contracts-parser/internal/export"
	"github.com/joseph-ayodele/contracts-parser/internal/ingest"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
	"github.com/joseph-ayodele/contracts-parser/internal/llm/openai"
	"github.com/joseph-ayodele/contracts-parser/internal/parser"
	"github.com/joseph-ayodele/contracts-parser/internal/pipeline"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
	repo "github.com/joseph-ayodele/contracts-parser/internal/repository"
	svc "github.com/joseph-ayodele/contracts-parser/internal/server"
)

func main() {
	// Structured logger without time, keeping level and the event attributes
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFromApp(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Document text
	docs := doctext.NewExtractor(doctext.ConfigFromApp(cfg.DocText), logger)
	if cfg.DocText.DoclingEnabled && !docs.DoclingAvailable(ctx) {
		logger.Warn("docling enabled but not available; PDFs without a text layer will fail", "script", cfg.DocText.DoclingScript)
	}

	// Model client and field extractor
	client := openai.NewClient(openai.ConfigFromApp(cfg.LLM), logger)
	var extractorOpts []llm.ExtractorOption
	if counter, err := llm.NewTiktokenCounter(cfg.LLM.Model); err != nil {
		logger.Warn("tiktoken unavailable, using heuristic token estimates", "model", cfg.LLM.Model, "error", err)
	} else {
		extractorOpts = append(extractorOpts, llm.WithTokenCounter(counter))
	}
	fieldExtractor := llm.NewFieldExtractor(client, llm.ExtractorConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger, extractorOpts...)

	parserOpts := parser.OptionsFromConfig(cfg.Parser)
	orchestrator := parser.NewOrchestrator(fieldExtractor, parserOpts, logger)

	tracker := progress.NewTracker(logger, progress.WithTTL(cfg.Parser.SessionTTL))
	go tracker.RunSweeper(ctx, time.Minute)

	records := repo.NewParseRecordRepository(db, logger)
	processor := pipeline.NewProcessor(logger, docs, orchestrator, tracker, records, parserOpts)
	queue := async.NewProcessorQueue(processor, logger, async.OptionsFromConfig(cfg.Queue)...)

	// PARSER_DEFAULT_MODE was checked by Validate
	defaultMode, _ := constants.ParseModeFromString(cfg.Parser.DefaultMode)
	ingestor := ingest.NewFSIngestor(queue, defaultMode, logger)
	if len(cfg.Server.WatchDirs) > 0 {
		go func() {
			err := ingest.Run(ctx, ingest.WatchConfig{
				Roots:       cfg.Server.WatchDirs,
				InitialScan: true,
				Debounce:    2 * time.Second,
				Logger:      logger,
			}, ingestor)
			if err != nil && ctx.Err() == nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	service := svc.NewParserService(svc.Deps{
		Processor:   processor,
		Queue:       queue,
		Tracker:     tracker,
		Records:     records,
		Exporter:    export.NewService(logger),
		Ingestor:    ingestor,
		DefaultMode: defaultMode,
		Parser:      parserOpts,
	}, logger)
	grpcServer, healthServer := svc.NewGRPCServer(service, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("contractd listening", "addr", cfg.Server.GRPCAddr, "model", cfg.LLM.Model, "watch_dirs", cfg.Server.WatchDirs)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
