package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is the chat model used when neither the request nor the
// client names one.
const DefaultModel = "gpt-4o-mini"

// DefaultEmbeddingModel is the embedding model used for context retrieval.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Client abstracts an OpenAI-compatible LLM API.
type Client interface {
	// ChatCompletion sends a chat completion request and returns the response.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Embedder turns texts into embedding vectors.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ChatRequest is a simplified chat request.
type ChatRequest struct {
	Model         string
	SystemMessage string
	UserMessage   string
	// Temperature is left to the API default when nil.
	Temperature *float64
}

// ChatResponse holds the result of a chat completion.
type ChatResponse struct {
	Content string
}

// OpenAIClient implements Client and Embedder using the OpenAI-compatible API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    *float64
	stream         bool
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL:        "https://api.openai.com/v1",
		apiKey:         "not-needed",
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = cfg.baseURL

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(config),
		model:          cfg.model,
		embeddingModel: cfg.embeddingModel,
		temperature:    cfg.temperature,
		stream:         cfg.stream,
	}
}

// Model returns the model sent when a request names none.
func (c *OpenAIClient) Model() string {
	if c.model == "" {
		return DefaultModel
	}
	return c.model
}

// ChatCompletion sends a chat completion request. With streaming enabled
// the response is read chunk by chunk and returned once complete.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.stream {
		return c.streamCompletion(ctx, req)
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func (c *OpenAIClient) streamCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	out := c.buildRequest(req)
	out.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	content, err := collectStream(stream)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	return &ChatResponse{Content: content}, nil
}

// Embed creates embeddings for the given inputs.
func (c *OpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (c *OpenAIClient) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	req = c.applyDefaults(req)

	out := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
		// The field is omitempty, so a literal zero would fall back to the API default of 1.
		if out.Temperature == 0 {
			out.Temperature = math.SmallestNonzeroFloat32
		}
	}
	return out
}

// applyDefaults applies client-level defaults to a request where
// the request does not specify its own values.
func (c *OpenAIClient) applyDefaults(req ChatRequest) ChatRequest {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.Temperature == nil && c.temperature != nil {
		req.Temperature = c.temperature
	}
	return req
}

// collectStream drains the stream and returns the concatenated deltas.
func collectStream(stream *openai.ChatCompletionStream) (string, error) {
	defer stream.Close()
	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		if len(resp.Choices) > 0 {
			b.WriteString(resp.Choices[0].Delta.Content)
		}
	}
}
