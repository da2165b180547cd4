package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/surveylab/coding-service/internal/pkg/config"
)

// Task types
const (
	TaskTypeAnalysisProcess = "analysis:process"
)

// AnalysisPayload is the body of an analysis:process queue entry
type AnalysisPayload struct {
	TaskID string `json:"task_id"`
}

// AsynqClient wraps the Asynq client for enqueuing tasks
type AsynqClient struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsynqClient creates a new Asynq client
func NewAsynqClient(cfg *config.QueueConfig, logger *slog.Logger) (*AsynqClient, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:         fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	client := asynq.NewClient(redisOpt)

	logger.Info("asynq client created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
	)

	return &AsynqClient{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Asynq client
func (a *AsynqClient) Close() error {
	a.logger.Info("closing asynq client")
	return a.client.Close()
}

// EnqueueAnalysis schedules one analysis task for the background worker
func (a *AsynqClient) EnqueueAnalysis(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(AnalysisPayload{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	// Duplicate deliveries are harmless: the worker's pending->processing
	// claim makes a second delivery a no-op
	task := asynq.NewTask(TaskTypeAnalysisProcess, payload)
	info, err := a.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
	)
	if err != nil {
		a.logger.Error("failed to enqueue task",
			slog.String("task_type", TaskTypeAnalysisProcess),
			slog.String("task_id", taskID),
			"error", err,
		)
		return err
	}

	a.logger.Debug("task enqueued",
		slog.String("task_id", info.ID),
		slog.String("task_type", task.Type()),
		slog.String("queue", info.Queue),
	)
	return nil
}

// AsynqServer wraps the Asynq server for processing tasks
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewAsynqServer creates a new Asynq server
func NewAsynqServer(cfg *config.QueueConfig, logger *slog.Logger) (*AsynqServer, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:         fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"high":     3,
				"default":  1,
			},
			StrictPriority: cfg.StrictPriority,

			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: 2s, 4s, 8s, 16s, ...
				return time.Duration(1<<uint(n)) * time.Second
			},

			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					slog.String("task_type", task.Type()),
					slog.String("payload", string(task.Payload())),
					"error", err,
				)
			}),

			HealthCheckFunc: func(e error) {
				if e != nil {
					logger.Error("health check failed", "error", e)
				}
			},
			HealthCheckInterval: 20 * time.Second,

			ShutdownTimeout: 25 * time.Second,
		},
	)

	mux := asynq.NewServeMux()

	logger.Info("asynq server created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
		slog.Int("concurrency", cfg.Concurrency),
	)

	return &AsynqServer{
		server: server,
		mux:    mux,
		logger: logger,
	}, nil
}

// AnalysisProcessor is the side of the orchestrator the worker invokes
type AnalysisProcessor interface {
	ProcessTask(ctx context.Context, taskID string) error
}

// HandleAnalysis wires the analysis processor into the mux
func (a *AsynqServer) HandleAnalysis(processor AnalysisProcessor) {
	a.mux.HandleFunc(TaskTypeAnalysisProcess, func(ctx context.Context, task *asynq.Task) error {
		var payload AnalysisPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("malformed analysis payload: %w: %w", err, asynq.SkipRetry)
		}
		return processor.ProcessTask(ctx, payload.TaskID)
	})
	a.logger.Debug("handler registered", slog.String("pattern", TaskTypeAnalysisProcess))
}

// Use adds a middleware to the mux
func (a *AsynqServer) Use(middleware func(asynq.Handler) asynq.Handler) {
	a.mux.Use(middleware)
}

// Start starts the Asynq server
func (a *AsynqServer) Start() error {
	a.logger.Info("starting asynq server")
	if err := a.server.Run(a.mux); err != nil {
		return fmt.Errorf("failed to run asynq server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (a *AsynqServer) Shutdown() {
	a.logger.Info("shutting down asynq server")
	a.server.Shutdown()
}

// Stop immediately stops the server
func (a *AsynqServer) Stop() {
	a.logger.Info("stopping asynq server")
	a.server.Stop()
}
