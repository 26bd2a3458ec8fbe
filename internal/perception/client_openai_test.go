package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcoder/internal/types"
)

func newOpenAITestClient(url string) *OpenAIClient {
	return NewOpenAIClientWithConfig(ProviderOpenAI, OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: url,
		Model:   "gpt-test",
		Timeout: 5 * time.Second,
	})
}

func TestOpenAIClient_InvokeWithTools(t *testing.T) {
	var got OpenAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"delete_file","arguments":"{\"path\":\"foo.txt\"}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	client := newOpenAITestClient(srv.URL)
	tools := []ToolDefinition{{Name: "delete_file", Description: "Delete", InputSchema: map[string]interface{}{"type": "object"}}}
	resp, err := client.Invoke(context.Background(), []types.Message{
		types.SystemMessage("sys"),
		types.HumanMessage("delete the file foo.txt"),
	}, tools)
	require.NoError(t, err)

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "delete_file", got.Tools[0].Function.Name)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[1].Role)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "foo.txt", resp.ToolCalls[0].Input["path"])
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestOpenAIClient_CompleteStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		assert.Equal(t, "query_type", req.ResponseFormat.JSONSchema.Name)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"type\":\"scaffolding\"}"}}]}`)
	}))
	defer srv.Close()

	out, err := newOpenAITestClient(srv.URL).CompleteStructured(context.Background(),
		[]types.Message{types.HumanMessage("make a react app")},
		types.ResponseSchema{Name: "query_type", Schema: map[string]interface{}{"type": "object"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"scaffolding"}`, out)
}

func TestOpenAIClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	content, errs := newOpenAITestClient(srv.URL).Stream(context.Background(), []types.Message{types.HumanMessage("hi")})
	var deltas []string
	text, err := CollectStream(content, errs, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newOpenAITestClient(srv.URL).Invoke(context.Background(), []types.Message{types.HumanMessage("x")}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.False(t, IsRecoverable(err))
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	client := NewOpenAIClientWithConfig(ProviderOpenAI, OpenAIConfig{Model: "m"})
	_, err := client.Invoke(context.Background(), []types.Message{types.HumanMessage("x")}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"))

	// Ollama runs locally without a key.
	ollama := NewOpenAIClientWithConfig(ProviderOllama, OpenAIConfig{Model: "llama3"})
	assert.NoError(t, ollama.checkKey())
}
