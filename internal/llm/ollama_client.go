package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
	logger *zap.Logger
	abort  abortHandle
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type ollamaPullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *ollamaClient) Name() string {
	return fmt.Sprintf("Ollama (%s)", c.model)
}

func (c *ollamaClient) DefaultModel() string {
	return c.model
}

func (c *ollamaClient) Abort() {
	c.abort.abort()
}

func (c *ollamaClient) Generate(ctx context.Context, req GenerateRequest, handler StreamHandler) error {
	ctx, cancel := c.abort.wrap(ctx)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaGenerateChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "decode ollama stream")
		}
		if chunk.Error != "" {
			return errors.Errorf("ollama stream error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			result.WriteString(chunk.Response)
			if err := handler(result.String()); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
}

func (c *ollamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "list ollama models")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}
	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode ollama tags")
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

func (c *ollamaClient) EnsureModel(ctx context.Context, model string) error {
	if model == "" {
		model = c.model
	}
	names, err := c.ListModels(ctx)
	if err != nil {
		return err
	}
	if hasModel(names, model) {
		return nil
	}
	c.logger.Info("pulling model", zap.String("model", model))
	resp, err := c.post(ctx, "/api/pull", ollamaPullRequest{Name: model, Stream: false})
	if err != nil {
		return errors.Wrapf(err, "pull %s", model)
	}
	defer resp.Body.Close()
	var parsed ollamaPullResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return errors.Wrap(err, "decode ollama pull")
	}
	if parsed.Error != "" {
		return errors.Wrapf(ErrModelNotFound, "%s: %s", model, parsed.Error)
	}
	c.logger.Info("model pulled", zap.String("model", model), zap.String("status", parsed.Status))
	return nil
}

func (c *ollamaClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, "ollama request failed")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.Errorf("ollama API error: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
}

// hasModel matches "llama3" against "llama3:latest" the way Ollama resolves tags.
func hasModel(names []string, model string) bool {
	for _, name := range names {
		if name == model || name == model+":latest" || strings.TrimSuffix(name, ":latest") == model {
			return true
		}
	}
	return false
}
