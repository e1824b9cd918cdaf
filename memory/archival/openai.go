package archival

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

const (
	// DefaultEmbeddingModel is the default OpenAI embedding model.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimensions matches text-embedding-3-small.
	DefaultEmbeddingDimensions = 1536
)

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

// OpenAIEmbedderOption configures an OpenAIEmbedder.
type OpenAIEmbedderOption func(*openaiEmbedderOptions)

type openaiEmbedderOptions struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
}

// WithEmbedderAPIKey sets the API key.
func WithEmbedderAPIKey(apiKey string) OpenAIEmbedderOption {
	return func(o *openaiEmbedderOptions) {
		o.apiKey = apiKey
	}
}

// WithEmbedderBaseURL sets the base URL for OpenAI-compatible APIs.
func WithEmbedderBaseURL(baseURL string) OpenAIEmbedderOption {
	return func(o *openaiEmbedderOptions) {
		o.baseURL = baseURL
	}
}

// WithEmbedderModel sets the embedding model name.
func WithEmbedderModel(model string) OpenAIEmbedderOption {
	return func(o *openaiEmbedderOptions) {
		o.model = model
	}
}

// WithEmbedderDimensions sets the embedding dimension count.
func WithEmbedderDimensions(dims int) OpenAIEmbedderOption {
	return func(o *openaiEmbedderOptions) {
		o.dims = dims
	}
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(opts ...OpenAIEmbedderOption) *OpenAIEmbedder {
	options := &openaiEmbedderOptions{
		model: DefaultEmbeddingModel,
		dims:  DefaultEmbeddingDimensions,
	}
	for _, opt := range opts {
		opt(options)
	}
	var clientOpts []openaiopt.RequestOption
	if options.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(options.apiKey))
	}
	if options.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(options.baseURL))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(clientOpts...),
		model:  options.model,
		dims:   options.dims,
	}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	response, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dims)),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}
	return response.Data[0].Embedding, nil
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }
