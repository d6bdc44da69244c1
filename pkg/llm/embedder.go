package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	hfembed "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
	ProviderGemini      = "gemini"

	DefaultHuggingFaceModel = "BAAI/bge-m3"
	DefaultOllamaModel      = "nomic-embed-text:latest"
	DefaultGeminiModel      = "text-embedding-004"

	featureExtraction = "feature-extraction"
)

var ErrEmptyEmbedding = errors.New("embedding provider returned no vectors")

// EmbedderConfig selects the hosted embedding API and its model.
type EmbedderConfig struct {
	Provider string
	Model    string
	Token    string
	BaseURL  string // Ollama server URL
}

// Embedder turns text batches into vectors through a hosted model.
type Embedder struct {
	Config EmbedderConfig
	embed  embeddings.Embedder
	close  func() error
}

func NewEmbedderWithConfig(ctx context.Context, config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderHuggingFace
	}

	switch config.Provider {
	case ProviderHuggingFace:
		if config.Model == "" {
			config.Model = DefaultHuggingFaceModel
		}
		if config.Token == "" {
			return nil, fmt.Errorf("huggingface embedder requires an API token")
		}
		client, err := huggingface.New(
			huggingface.WithToken(config.Token),
			huggingface.WithModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize huggingface client: %w", err)
		}
		emb, err := hfembed.NewHuggingface(
			hfembed.WithClient(*client),
			hfembed.WithModel(config.Model),
			hfembed.WithTask(featureExtraction),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize huggingface embedder: %w", err)
		}
		return &Embedder{Config: config, embed: emb}, nil

	case ProviderOllama:
		if config.Model == "" {
			config.Model = DefaultOllamaModel
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		client, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		emb, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		return &Embedder{Config: config, embed: emb}, nil

	case ProviderGemini:
		if config.Model == "" {
			config.Model = DefaultGeminiModel
		}
		if config.Token == "" {
			return nil, fmt.Errorf("gemini embedder requires an API key")
		}
		emb, err := newGeminiEmbedder(ctx, config.Token, config.Model)
		if err != nil {
			return nil, err
		}
		return &Embedder{Config: config, embed: emb, close: emb.Close}, nil
	}

	return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
}

// Generate embeds the whole batch in one provider call. Provider errors are
// returned as they are, only wrapped.
func (e *Embedder) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return vectors, nil
}

// EmbedText is the single text form used as a store embedding function.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}

func (e *Embedder) Close() error {
	if e.close != nil {
		return e.close()
	}
	return nil
}
