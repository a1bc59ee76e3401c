package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := NewOpenAIClient()
	assert.Empty(t, client.model)
	assert.Equal(t, DefaultEmbeddingModel, client.embeddingModel)
	assert.Nil(t, client.temperature)
}

func TestNewOpenAIClientWithAllOptions(t *testing.T) {
	client := NewOpenAIClient(
		WithBaseURL("https://api.example.com/v1"),
		WithAPIKey("sk-test"),
		WithModel("gpt-4o"),
		WithEmbeddingModel("text-embedding-3-large"),
		WithTemperature(0.5),
	)
	assert.Equal(t, "gpt-4o", client.model)
	assert.Equal(t, "text-embedding-3-large", client.embeddingModel)
	require.NotNil(t, client.temperature)
	assert.Equal(t, 0.5, *client.temperature)
}

func TestWithEmbeddingModelIgnoresEmpty(t *testing.T) {
	client := NewOpenAIClient(WithEmbeddingModel(""))
	assert.Equal(t, DefaultEmbeddingModel, client.embeddingModel)
}

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		req      ChatRequest
		wantMod  string
		wantTemp *float64
	}{
		{
			name:    "falls back to default model",
			req:     ChatRequest{UserMessage: "hello"},
			wantMod: DefaultModel,
		},
		{
			name:    "uses client model",
			opts:    []Option{WithModel("gpt-4o")},
			req:     ChatRequest{UserMessage: "hello"},
			wantMod: "gpt-4o",
		},
		{
			name:    "request model takes precedence",
			opts:    []Option{WithModel("gpt-4o")},
			req:     ChatRequest{Model: "gpt-3.5", UserMessage: "hello"},
			wantMod: "gpt-3.5",
		},
		{
			name:     "uses client temperature",
			opts:     []Option{WithTemperature(0.8)},
			req:      ChatRequest{Model: "m"},
			wantMod:  "m",
			wantTemp: Float64Ptr(0.8),
		},
		{
			name:     "request temperature takes precedence",
			opts:     []Option{WithTemperature(0.8)},
			req:      ChatRequest{Model: "m", Temperature: Float64Ptr(0)},
			wantMod:  "m",
			wantTemp: Float64Ptr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewOpenAIClient(tt.opts...).applyDefaults(tt.req)
			assert.Equal(t, tt.wantMod, req.Model)
			if tt.wantTemp == nil {
				assert.Nil(t, req.Temperature)
				return
			}
			require.NotNil(t, req.Temperature)
			assert.Equal(t, *tt.wantTemp, *req.Temperature)
		})
	}
}

func TestChatCompletion(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"### Conclusion\nParis"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1"), WithAPIKey("sk-test"))
	resp, err := client.ChatCompletion(context.Background(), ChatRequest{
		SystemMessage: "You are a helpful assistant.",
		UserMessage:   "What is the capital of France?",
	})
	require.NoError(t, err)
	assert.Equal(t, "### Conclusion\nParis", resp.Content)
	assert.Equal(t, DefaultModel, gotBody["model"])
}

func TestChatCompletionConfiguredModel(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1"), WithModel("gpt-4o"))
	assert.Equal(t, "gpt-4o", client.Model())

	_, err := client.ChatCompletion(context.Background(), ChatRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gotBody["model"])
}

func TestModel(t *testing.T) {
	assert.Equal(t, DefaultModel, NewOpenAIClient().Model())
	assert.Equal(t, "m", NewOpenAIClient(WithModel("m")).Model())
}

func TestBuildRequestTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp *float64
		want float32
	}{
		{name: "unset", temp: nil, want: 0},
		{name: "explicit zero survives omitempty", temp: Float64Ptr(0), want: math.SmallestNonzeroFloat32},
		{name: "non-zero", temp: Float64Ptr(0.7), want: 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewOpenAIClient().buildRequest(ChatRequest{Model: "m", Temperature: tt.temp})
			assert.Equal(t, tt.want, out.Temperature)
		})
	}
}

func TestChatCompletionZeroTemperatureOnWire(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1"), WithTemperature(0))
	_, err := client.ChatCompletion(context.Background(), ChatRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Contains(t, gotBody, "temperature")
}

func TestChatCompletionStreaming(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"### Conclusion", "\n", "Paris"} {
			delta, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", delta)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1"), WithStreaming(true))
	resp, err := client.ChatCompletion(context.Background(), ChatRequest{UserMessage: "What is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, "### Conclusion\nParis", resp.Content)
	assert.Equal(t, true, gotBody["stream"])
}

func TestChatCompletionStreamingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1"), WithStreaming(true))
	_, err := client.ChatCompletion(context.Background(), ChatRequest{UserMessage: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion stream failed")
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL + "/v1"))
	_, err := client.ChatCompletion(context.Background(), ChatRequest{UserMessage: "hi"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no choices returned")
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose; Embed must place vectors by index.
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL + "/v1"))
	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestEmbedEmptyInput(t *testing.T) {
	vectors, err := NewOpenAIClient().Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
