package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/analysis"
	"github.com/surveylab/coding-service/internal/core/services/coding"
	"github.com/surveylab/coding-service/internal/core/services/discovery"
	"github.com/surveylab/coding-service/internal/infrastructure/database"
	"github.com/surveylab/coding-service/internal/infrastructure/database/repositories"
	"github.com/surveylab/coding-service/internal/infrastructure/filestore"
	"github.com/surveylab/coding-service/internal/infrastructure/llm"
	"github.com/surveylab/coding-service/internal/infrastructure/parsers"
	"github.com/surveylab/coding-service/internal/infrastructure/queue"
	"github.com/surveylab/coding-service/internal/infrastructure/storage"
	"github.com/surveylab/coding-service/internal/pkg/config"
	"github.com/surveylab/coding-service/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.Initialize(cfg.Environment)
	appLogger.Info("starting analysis worker",
		slog.Int("concurrency", cfg.Queue.Concurrency))

	db, err := database.NewPostgresDB(&cfg.Database, appLogger)
	if err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.AutoMigrate(
		&domain.AnalysisTask{},
		&domain.ColumnResult{},
		&domain.ClusterTestRun{},
		&domain.CodeLibrary{},
	); err != nil {
		appLogger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	asynqClient, err := queue.NewAsynqClient(&cfg.Queue, appLogger)
	if err != nil {
		appLogger.Error("failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer asynqClient.Close()

	localStorage, err := storage.NewLocalStorage(&storage.LocalStorageConfig{
		BasePath: cfg.Storage.BasePath,
	}, appLogger)
	if err != nil {
		appLogger.Error("failed to init file storage", "error", err)
		os.Exit(1)
	}

	parserConfig := parsers.DefaultParserConfig()
	parserConfig.MaxFileSize = cfg.Storage.MaxFileSize
	fileStore := filestore.NewStore(localStorage, parsers.NewParserFactory(parserConfig), appLogger)

	llmClient := llm.NewClient(cfg.LLM)

	engines := discovery.NewRegistry()
	engines.Register(discovery.NewLLMEngine(llmClient, logger.NewServiceLogger("discovery.llm")))
	engines.Register(discovery.NewClusteringEngine(llmClient, llmClient, logger.NewServiceLogger("discovery.clustering")))

	classifier := coding.NewClassifier(llmClient, coding.ClassifierConfig{
		BatchSize:     cfg.Analysis.BatchSize,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
	}, logger.NewServiceLogger("coding.classifier"))

	taskRepo := repositories.NewTaskRepository(db.DB, appLogger)
	libraryRepo := repositories.NewCodeLibraryRepository(db.DB, appLogger)

	resolver := coding.NewResolver(libraryRepo, cfg.Analysis.DefaultMaxCodes)
	pipeline := coding.NewPipeline(engines, classifier, logger.NewServiceLogger("coding.pipeline"))

	orchestrator := analysis.NewOrchestrator(taskRepo, asynqClient, fileStore, libraryRepo,
		resolver, pipeline, logger.NewServiceLogger("analysis"))

	server, err := queue.NewAsynqServer(&cfg.Queue, appLogger)
	if err != nil {
		appLogger.Error("failed to create queue server", "error", err)
		os.Exit(1)
	}
	server.HandleAnalysis(orchestrator)

	go func() {
		if err := server.Start(); err != nil {
			appLogger.Error("worker server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker")
	server.Shutdown()
}
