package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIClient struct {
	model  string
	client *openai.Client
	logger *zap.Logger
	abort  abortHandle
}

func newOpenAIClient(cfg Config, logger *zap.Logger) (*openAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("openai provider requires an API key (OPENAI_API_KEY)")
	}
	config := openai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		config.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	config.HTTPClient = pickHTTPClient(cfg.HTTPClient)
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIClient{
		model:  model,
		client: openai.NewClientWithConfig(config),
		logger: logger.Named("openai"),
	}, nil
}

func (c *openAIClient) Name() string {
	return fmt.Sprintf("OpenAI (%s)", c.model)
}

func (c *openAIClient) DefaultModel() string {
	return c.model
}

func (c *openAIClient) Abort() {
	c.abort.abort()
}

func (c *openAIClient) Generate(ctx context.Context, req GenerateRequest, handler StreamHandler) error {
	ctx, cancel := c.abort.wrap(ctx)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.model
	}
	messages := []openai.ChatCompletionMessage{}
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "openai stream")
	}
	defer stream.Close()

	var result strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "openai stream")
		}
		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}
		result.WriteString(response.Choices[0].Delta.Content)
		if err := handler(result.String()); err != nil {
			return err
		}
	}
}

func (c *openAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list openai models")
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// EnsureModel only checks existence; hosted models cannot be pulled.
func (c *openAIClient) EnsureModel(ctx context.Context, model string) error {
	if model == "" {
		model = c.model
	}
	names, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == model {
			return nil
		}
	}
	c.logger.Warn("model not offered", zap.String("model", model))
	return errors.Wrap(ErrModelNotFound, model)
}
