package llm

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultOllamaModel = "llama3"
	defaultOllamaHost  = "http://localhost:11434"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const defaultLLMHTTPTimeout = 10 * time.Minute

// ErrModelNotFound is returned when a backend does not offer the requested model.
var ErrModelNotFound = errors.New("model not found")

// Config describes how to build an LLM client.
type Config struct {
	Provider   string
	Model      string
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GenerateRequest is one completion call: the user prompt plus system text.
type GenerateRequest struct {
	Model  string
	Prompt string
	System string
}

// StreamHandler receives the cumulative response text after every chunk.
// Returning an error stops the stream and is returned from Generate.
type StreamHandler func(snapshot string) error

// Client is the streaming generation backend.
type Client interface {
	// Generate streams cumulative snapshots to handler until the backend
	// finishes, ctx is cancelled or Abort is called.
	Generate(ctx context.Context, req GenerateRequest, handler StreamHandler) error
	// Abort cancels the most recent Generate call.
	Abort()
	ListModels(ctx context.Context) ([]string, error)
	// EnsureModel makes model available, pulling it when the backend supports that.
	EnsureModel(ctx context.Context, model string) error
	DefaultModel() string
	Name() string
}

// NewFromEnv builds the client for cfg.Provider, falling back to Ollama.
func NewFromEnv(cfg Config) (Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		return newOllamaClient(cfg, logger), nil
	case ProviderOpenAI:
		return newOpenAIClient(cfg, logger)
	default:
		return nil, errors.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func newOllamaClient(cfg Config, logger *zap.Logger) *ollamaClient {
	host := cfg.Endpoint
	if host == "" {
		if env := os.Getenv("OLLAMA_HOST"); env != "" {
			host = env
		} else {
			host = defaultOllamaHost
		}
	}
	host = strings.TrimRight(host, "/")
	model := cfg.Model
	if model == "" {
		if env := os.Getenv("OLLAMA_MODEL"); env != "" {
			model = env
		} else {
			model = defaultOllamaModel
		}
	}
	return &ollamaClient{
		host:   host,
		model:  model,
		client: pickHTTPClient(cfg.HTTPClient),
		logger: logger.Named("ollama"),
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Generations can stream for minutes; cancellation comes from the caller's context.
	return &http.Client{Timeout: defaultLLMHTTPTimeout}
}

// abortHandle remembers the cancel func of the latest Generate call.
type abortHandle struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (h *abortHandle) wrap(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	return ctx, cancel
}

func (h *abortHandle) abort() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
