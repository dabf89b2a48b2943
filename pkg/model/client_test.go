package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
)

func chatResponse(text string, usage Usage) ChatResponse {
	return ChatResponse{
		ID:    "cmpl-1",
		Model: "test-model",
		Choices: []Choice{
			{Index: 0, Message: Message{Role: "assistant", Content: text}, FinishReason: "stop"},
		},
		Usage: usage,
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL+"/v1", "", 5*time.Second, ClientOptions{ProfileLabel: "test"})
}

func TestCompleteStructured(t *testing.T) {
	var sawSchema atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
			sawSchema.Store(true)
		}
		json.NewEncoder(w).Encode(chatResponse(`{"answer":"4"}`, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Complete(context.Background(), CompletionRequest{
		Model:      "test-model",
		Messages:   []Message{{Role: "user", Content: "What is 2+2?"}},
		Structured: true,
		Schema:     SchemaAnswer,
	})
	require.NoError(t, err)

	assert.True(t, sawSchema.Load(), "structured request should carry a response_format")
	assert.Equal(t, `{"answer":"4"}`, result.Text)
	assert.False(t, result.FallbackUsed)
	assert.False(t, result.UsageEstimated)
	assert.Equal(t, 15, result.Usage.TotalTokens)
	assert.Greater(t, result.Latency, time.Duration(0))
}

func TestCompleteFallbackOnSchemaRejection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ResponseFormat != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{Message: "response_format is not supported"}})
			return
		}
		json.NewEncoder(w).Encode(chatResponse(`{"answer":"yes"}`, Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Complete(context.Background(), CompletionRequest{
		Model:      "test-model",
		Messages:   []Message{{Role: "user", Content: "hello"}},
		Structured: true,
		Schema:     SchemaEcho,
	})
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, int32(2), calls.Load(), "exactly one fallback retry")
	assert.Equal(t, `{"answer":"yes"}`, result.Text)
}

func TestCompleteServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:      "test-model",
		Messages:   []Message{{Role: "user", Content: "hello"}},
		Structured: true,
		Schema:     SchemaAnswer,
	})
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load(), "server errors must not trigger the fallback retry")
	assert.True(t, enginerrors.IsCode(err, enginerrors.ErrCodeEndpointServer))
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(chatResponse("late", Usage{}))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "", 50*time.Millisecond, ClientOptions{ProfileLabel: "test"})
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, enginerrors.IsCode(err, enginerrors.ErrCodeEndpointTimeout), "got: %v", err)
}

func TestCompleteEstimatesMissingUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("the answer is four", Usage{}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: "user", Content: "What is 2+2?"}},
	})
	require.NoError(t, err)

	assert.True(t, result.UsageEstimated)
	assert.Greater(t, result.Usage.PromptTokens, 0)
	assert.Greater(t, result.Usage.CompletionTokens, 0)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		json.NewEncoder(w).Encode(ModelCatalog{Data: []ModelInfo{
			{ID: "llama3.1:8b-instruct", OwnedBy: "library"},
			{ID: "qwen2.5:7b", OwnedBy: "library"},
		}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.1:8b-instruct", models[0].ID)
}

func TestListModelsUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/v1", "", time.Second, ClientOptions{ProfileLabel: "test"})
	_, err := client.ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, enginerrors.IsCode(err, enginerrors.ErrCodeEndpointUnreachable), "got: %v", err)
}
