package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/resume-context-engine/internal/infrastructure/resilience"
)

const DefaultEmbedPath = "/api/embed"

type Config struct {
	BaseURL string
	Model   string
	// Path is appended to BaseURL; OpenAI-compatible servers use /v1/embeddings.
	Path    string
	APIKey  string
	Timeout time.Duration

	// RateLimitRPS bounds provider calls per second; zero disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	Resilience resilience.Config
}

// Client calls an Ollama or OpenAI-compatible embedding endpoint.
type Client struct {
	baseURL    string
	model      string
	path       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultEmbedPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		path:       path,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		executor:   resilience.NewExecutor(cfg.Resilience),
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns one vector per text in input order. The count is not
// validated here; callers decide how to treat short or malformed responses.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.model,
		"input": texts,
	}

	vectors, err := resilience.Do(ctx, e.client.executor, "embed", func(ctx context.Context) ([][]float32, error) {
		if err := e.client.wait(ctx); err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := e.client.postJSON(ctx, e.client.path, request, &raw, "embed"); err != nil {
			return nil, err
		}
		return parseEmbeddings(raw)
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	return vectors, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embed rate limit: %w", err)
	}
	return nil
}
