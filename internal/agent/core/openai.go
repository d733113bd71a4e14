package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yhlin07/when2meet-mcp-2025/config"
)

// OpenAIProvider speaks the chat.completions wire format. Perplexity exposes
// the same API, so both provider types share this implementation.
type OpenAIProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *HTTPClient
}

// NewLLMProvider builds the provider for a config entry.
func NewLLMProvider(name string, cfg config.LLMProvider) (*OpenAIProvider, error) {
	switch strings.ToLower(cfg.Type) {
	case "openai", "perplexity":
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not configured", name)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		if strings.EqualFold(cfg.Type, "perplexity") {
			baseURL = "https://api.perplexity.ai"
		} else {
			baseURL = "https://api.openai.com/v1"
		}
	}
	return &OpenAIProvider{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 500*time.Millisecond),
	}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func toChatCompletionsBody(req ChatRequest) map[string]any {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if m.Role == RoleTool {
			wm.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			w := wireToolCall{ID: tc.ID, Type: "function"}
			w.Function.Name = tc.Name
			w.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, w)
		}
		msgs = append(msgs, wm)
	}
	body := map[string]any{
		"model":       req.Model,
		"messages":    msgs,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}
	if req.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	return body
}

// Chat sends one chat.completions request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		return ChatResponse{}, errors.New("model is required")
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	var out chatCompletionResponse
	if err := p.http.DoJSON(ctx, "POST", p.baseURL+"/chat/completions", headers, toChatCompletionsBody(req), &out); err != nil {
		return ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, errors.New("chat.completions response missing choices")
	}
	choice := out.Choices[0]
	resp := ChatResponse{
		Model:        out.Model,
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if choice.Message.Content != nil {
		resp.Text = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := strings.TrimSpace(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			// kept as a JSON string so the dispatcher reports it as malformed
			q, _ := json.Marshal(args)
			args = string(q)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: tc.Function.Name, Arguments: json.RawMessage(args)})
	}
	return resp, nil
}
