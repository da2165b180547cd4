package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/surveylab/coding-service/internal/api"
	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/analysis"
	"github.com/surveylab/coding-service/internal/core/services/coding"
	"github.com/surveylab/coding-service/internal/core/services/discovery"
	"github.com/surveylab/coding-service/internal/core/services/workshop"
	"github.com/surveylab/coding-service/internal/infrastructure/cache"
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
	cfg.LogConfig()

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

	redisCache, err := cache.NewRedisCache(&cfg.Cache, appLogger)
	if err != nil {
		appLogger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

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
	parserFactory := parsers.NewParserFactory(parserConfig)
	fileStore := filestore.NewStore(localStorage, parserFactory, appLogger)

	llmClient := llm.NewClient(cfg.LLM)

	taskRepo := repositories.NewTaskRepository(db.DB, appLogger)
	runRepo := repositories.NewClusterTestRepository(db.DB, appLogger)
	libraryRepo := repositories.NewCodeLibraryRepository(db.DB, appLogger)

	engines := discovery.NewRegistry()
	engines.Register(discovery.NewLLMEngine(llmClient, logger.NewServiceLogger("discovery.llm")))
	engines.Register(discovery.NewClusteringEngine(llmClient, llmClient, logger.NewServiceLogger("discovery.clustering")))

	classifier := coding.NewClassifier(llmClient, coding.ClassifierConfig{
		BatchSize:     cfg.Analysis.BatchSize,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
	}, logger.NewServiceLogger("coding.classifier"))

	resolver := coding.NewResolver(libraryRepo, cfg.Analysis.DefaultMaxCodes)
	pipeline := coding.NewPipeline(engines, classifier, logger.NewServiceLogger("coding.pipeline"))

	orchestrator := analysis.NewOrchestrator(taskRepo, asynqClient, fileStore, libraryRepo,
		resolver, pipeline, logger.NewServiceLogger("analysis"))

	resultCache := cache.NewClassifiedDataStore(redisCache, cfg.Cache.ClassifiedDataTTLDays, appLogger)
	workshopService := workshop.NewService(engines, runRepo, fileStore, resultCache, classifier,
		workshop.Config{
			MinRows:         cfg.Analysis.MinClusterTestRows,
			DefaultMaxCodes: cfg.Analysis.DefaultMaxCodes,
		}, logger.NewServiceLogger("workshop"))

	router := api.NewRouter(api.RouterConfig{
		Analysis:  api.NewAnalysisHandler(orchestrator),
		Workshop:  api.NewWorkshopHandler(workshopService),
		Libraries: api.NewLibraryHandler(libraryRepo),
		Files:     api.NewFilesHandler(localStorage, fileStore, parserFactory),
		Database:  db,
		Cache:     redisCache,
		Debug:     !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("graceful shutdown failed", "error", err)
	}
}
