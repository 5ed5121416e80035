package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/mindvault/internal/types"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Type    string // http, ollama or openai
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// NewEmbedder builds the embedding client selected by config.Type.
func NewEmbedder(config EmbedderConfig) (types.Embedder, error) {
	switch config.Type {
	case "http", "":
		return NewHTTPEmbedder(config), nil
	case "ollama":
		return NewOllamaEmbedder(config)
	case "openai":
		return NewOpenAIEmbedder(config)
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", config.Type)
	}
}

// HTTPEmbedder talks to the sentence-transformers embedding service:
// POST {base}/embed {"text": [...]} -> {"vectors": [[...]]}.
type HTTPEmbedder struct {
	baseURL string
	client  *http.Client
}

type embedRequest struct {
	Text []string `json:"text"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func NewHTTPEmbedder(config EmbedderConfig) *HTTPEmbedder {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8000"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Embed makes exactly one request. Failures are not retried.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Text: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, types.EmbeddingError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, types.EmbeddingError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, types.EmbeddingError(fmt.Errorf("embedding service returned %s: %s",
			resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.EmbeddingError(fmt.Errorf("malformed embedding response: %w", err))
	}

	return checkVectors(len(texts), out.Vectors)
}

// ollamaEmbedder is the part of *ollama.LLM we use.
type ollamaEmbedder interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

type OllamaEmbedder struct {
	Config EmbedderConfig
	embed  ollamaEmbedder
}

func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return &OllamaEmbedder{Config: config, embed: emb}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts); err != nil {
		return nil, err
	}
	vectors, err := e.embed.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, types.EmbeddingError(err)
	}
	return checkVectors(len(texts), vectors)
}

// OpenAIEmbedder uses any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder accepts the model names the client library knows;
// text-embedding-ada-002 is the default.
func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	model := openai.AdaEmbeddingV2
	if config.Model != "" {
		if err := model.UnmarshalText([]byte(config.Model)); err != nil || model == openai.Unknown {
			return nil, fmt.Errorf("unsupported openai embedding model: %s", config.Model)
		}
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(openAIClientConfig(config.APIKey, config.BaseURL, config.Timeout)),
		model:  model,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkBatch(texts); err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, types.EmbeddingError(err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, types.EmbeddingError(fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return checkVectors(len(texts), vectors)
}

func openAIClientConfig(apiKey, baseURL string, timeout time.Duration) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return cfg
}

func checkBatch(texts []string) error {
	if len(texts) == 0 {
		return types.ErrEmptyBatch
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return types.ErrEmptyBatch
		}
	}
	return nil
}

func checkVectors(want int, vectors [][]float32) ([][]float32, error) {
	if len(vectors) != want {
		return nil, types.EmbeddingError(fmt.Errorf("expected %d vectors, got %d", want, len(vectors)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, types.EmbeddingError(fmt.Errorf("empty vector at position %d", i))
		}
	}
	return vectors, nil
}
