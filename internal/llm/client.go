// Package llm implements document analysis and script writing on the OpenAI
// chat completions API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultAnalysisModel = "gpt-4o-mini"
	DefaultScriptModel   = "gpt-4o-mini"
	DefaultTimeout       = 2 * time.Minute
	providerName         = "openai"
)

// Config holds OpenAI client settings
type Config struct {
	APIKey        string
	BaseURL       string
	AnalysisModel string
	ScriptModel   string
	Temperature   float64
	MaxRetries    int
	Timeout       time.Duration
	// ExactTokenCount enables tiktoken when a response carries no usage block
	ExactTokenCount bool
	HTTPClient      *http.Client
}

// Client wraps the OpenAI SDK client shared by Analyzer and ScriptWriter
type Client struct {
	client openai.Client
	cfg    Config
	tokens *TokenCounter
	logger *slog.Logger
}

// NewClient creates a Client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.ScriptModel == "" {
		cfg.ScriptModel = DefaultScriptModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		tokens: NewTokenCounter(cfg.ExactTokenCount),
		logger: logger,
	}, nil
}

type completionRequest struct {
	model    string
	messages []openai.ChatCompletionMessageParamUnion
	json     bool
	// maxTokens caps the completion; 0 leaves it to the model
	maxTokens int
	// promptText is used for token estimation when usage is missing
	promptText string
}

type completionResult struct {
	content string
	usage   []domain.UsageRecord
}

func (c *Client) complete(ctx context.Context, req completionRequest) (*completionResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.model),
		Messages:    req.messages,
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if req.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.maxTokens))
	}
	if req.json {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", describeError(err))
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion choices returned", domain.ErrMalformedResponse)
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty completion", domain.ErrMalformedResponse)
	}

	inputTokens := completion.Usage.PromptTokens
	outputTokens := completion.Usage.CompletionTokens
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = int64(c.tokens.Count(req.promptText))
		outputTokens = int64(c.tokens.Count(content))
		c.logger.Debug("Completion carried no usage, using token estimate",
			slog.Int64("input_tokens", inputTokens),
			slog.Int64("output_tokens", outputTokens),
		)
	}

	c.logger.Debug("OpenAI completion finished",
		slog.String("model", req.model),
		slog.Duration("latency", time.Since(start)),
		slog.Int64("input_tokens", inputTokens),
		slog.Int64("output_tokens", outputTokens),
	)

	return &completionResult{
		content: content,
		usage: []domain.UsageRecord{
			{Provider: providerName, Category: usage.CategoryLLMInputTokens, Quantity: float64(inputTokens)},
			{Provider: providerName, Category: usage.CategoryLLMOutputTokens, Quantity: float64(outputTokens)},
		},
	}, nil
}

func describeError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.StatusCode, err)
	}
	return err
}
