package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athenadocs/athena/chunker"
	"github.com/athenadocs/athena/config"
	"github.com/athenadocs/athena/converter"
	"github.com/athenadocs/athena/files"
	"github.com/athenadocs/athena/handlers"
	"github.com/athenadocs/athena/logging"
	"github.com/athenadocs/athena/pipeline"
	"github.com/athenadocs/athena/server"
	"github.com/athenadocs/athena/services/embedding"
	"github.com/athenadocs/athena/services/llm_service"
	"github.com/athenadocs/athena/services/rag_service"
	"github.com/athenadocs/athena/storage"
	"github.com/athenadocs/athena/summarizer"
)

func main() {
	cfg := config.Load()

	logHandler, err := logging.NewDailyFileHandler("logs", &slog.HandlerOptions{Level: slog.LevelInfo})
	if err != nil {
		log.Fatal("Failed to initialize logging:", err)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool, cfg.DBLockTimeout, logger)
	if err := store.Bootstrap(ctx, cfg.EmbeddingDimensions); err != nil {
		logger.Error("Failed to bootstrap schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fileStore, err := files.NewStore(cfg.MediaRoot, logger)
	if err != nil {
		logger.Error("Failed to initialize media store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	embedder := embedding.NewClient(embedding.Config{
		Endpoint:   cfg.EmbeddingEndpoint,
		Model:      cfg.EmbeddingModel,
		APIKey:     cfg.EmbeddingAPIKey,
		Dimensions: cfg.EmbeddingDimensions,
		Timeout:    cfg.EmbeddingTimeout,
	}, logger)

	llm := llm_service.NewOpenAIService(llm_service.Config{
		Endpoint: cfg.LLMEndpoint,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		Timeout:  cfg.LLMTimeout,
	}, logger)

	converters := converter.NewRegistry(logger)
	splitter := chunker.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	sum := summarizer.New(llm, logger)

	orchestrator := pipeline.NewOrchestrator(store,
		[]pipeline.Stage{
			pipeline.NewExtractStage(store, converters, splitter, fileStore, logger),
			pipeline.NewSummarizeStage(store, sum, logger),
			pipeline.NewEmbedStage(store, embedder, logger),
		},
		pipeline.Options{
			Workers:   cfg.WorkerCount,
			QueueSize: cfg.QueueSize,
			StagePolicy: pipeline.RetryPolicy{
				MaxAttempts: cfg.StageMaxAttempts,
				Backoff:     cfg.StageBackoff,
			},
			Retention: cfg.RunRetention,
		},
		logger)
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	engine := rag_service.NewEngine(store, embedder, llm, logger)

	r := server.SetupRoutes(server.Dependencies{
		Documents: handlers.NewDocumentHandler(store, fileStore, orchestrator, logger),
		Search:    handlers.NewSearchHandler(engine, logger),
		Chat:      handlers.NewChatHandler(engine, store, logger),
		Health:    handlers.NewHealthHandler(pool),
		Logger:    logger,
	})
	n := server.SetupNegroni(r)

	if cfg.Environment == "production" {
		server.ServeProduction(n, server.Config{
			Domains:      cfg.Domains,
			CertCacheDir: cfg.CertCacheDir,
			HTTPPort:     cfg.HTTPPort,
			HTTPSPort:    cfg.HTTPSPort,
			IdleTimeout:  time.Minute,
			ReadTimeout:  30 * time.Second,
			// Chat responses stream token by token; the write deadline has
			// to cover a full generation.
			WriteTimeout: 5 * time.Minute,
		})
	} else {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      n,
			IdleTimeout:  time.Minute,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		}
		server.ServeDevelopment(srv)
	}
}
