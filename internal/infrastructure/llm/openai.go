package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/surveylab/coding-service/internal/pkg/config"
	"github.com/surveylab/coding-service/internal/pkg/logger"
)

// Client wraps the OpenAI API for chat completion and embeddings. A
// shared rate limiter keeps concurrent batch classification inside the
// provider's request budget; every call carries the configured timeout.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// NewClient creates an OpenAI-backed language model client
func NewClient(cfg config.LLMConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	log := logger.NewServiceLogger("llm-client")
	log.Info("LLM client initialized",
		slog.String("model", cfg.Model),
		slog.String("embedding_model", cfg.EmbeddingModel),
		slog.Int("rate_limit_per_minute", perMinute))

	return &Client{
		api:            openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        timeout,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:         log,
	}
}

// CompleteJSON sends one chat completion expected to return a JSON body
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("completion generated",
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per text, batching requests under the hood
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 100
	embeddings := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.CreateEmbeddings(batchCtx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}

		for _, data := range resp.Data {
			embeddings = append(embeddings, data.Embedding)
		}
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts", len(embeddings), len(texts))
	}

	c.logger.Debug("embeddings generated", slog.Int("count", len(embeddings)))
	return embeddings, nil
}
