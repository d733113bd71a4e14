package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yhlin07/when2meet-mcp-2025/config"
)

func TestOpenAIProviderChatToolCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4.1","choices":[{"message":{"content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"research","arguments":"{\"query\":\"x\"}"}},
			{"id":"","type":"function","function":{"name":"generate_dossier","arguments":"not json"}}
		]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`))
	}))
	defer srv.Close()

	p, err := NewLLMProvider("openai", config.LLMProvider{Type: "openai", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewLLMProvider: %v", err)
	}
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4.1",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "research", Arguments: json.RawMessage(`{}`)}}}, {Role: RoleTool, ToolCallID: "c0", Name: "research", Content: "{}"}},
		Tools:    []ToolSpec{{Name: "research", Parameters: map[string]interface{}{"type": "object"}}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 2 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[1].ID == "" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if !json.Valid(resp.ToolCalls[1].Arguments) {
		t.Fatalf("malformed arguments must still be valid JSON")
	}
	if resp.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if body["tool_choice"] != "auto" || body["response_format"] == nil {
		t.Fatalf("request body missing tool_choice/response_format: %v", body)
	}
	msgs := body["messages"].([]any)
	assistant := msgs[1].(map[string]any)
	if _, ok := assistant["tool_calls"]; !ok {
		t.Fatalf("assistant tool calls not forwarded: %v", assistant)
	}
	if msgs[2].(map[string]any)["tool_call_id"] != "c0" {
		t.Fatalf("tool result not linked to its call: %v", msgs[2])
	}
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(time.Second, 2, time.Millisecond)
	var out struct{ OK bool }
	if err := c.DoJSON(context.Background(), "POST", srv.URL, nil, map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if !out.OK || atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected success on third attempt, hits=%d", hits)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(time.Second, 3, time.Millisecond)
	err := c.DoJSON(context.Background(), "GET", srv.URL, nil, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("client errors must not be retried, hits=%d", hits)
	}
}

func TestNewLLMProviderRejectsUnknownType(t *testing.T) {
	if _, err := NewLLMProvider("x", config.LLMProvider{Type: "anthropic", APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := NewLLMProvider("x", config.LLMProvider{Type: "openai"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
