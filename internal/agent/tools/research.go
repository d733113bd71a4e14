package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
)

// Model is a routed chat endpoint a tool talks to.
type Model struct {
	LLM         core.LLMProvider
	Name        string
	MaxTokens   int
	Temperature float64
	Metrics     *core.Metrics
}

func (m Model) chat(ctx context.Context, system, prompt string, temperature float64, maxTokens int, jsonMode bool) (core.ChatResponse, error) {
	if m.LLM == nil {
		return core.ChatResponse{}, errors.New("no model configured")
	}
	msgs := make([]core.ChatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, core.ChatMessage{Role: core.RoleSystem, Content: system})
	}
	msgs = append(msgs, core.ChatMessage{Role: core.RoleUser, Content: prompt})
	resp, err := m.LLM.Chat(ctx, core.ChatRequest{
		Model:       m.Name,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    jsonMode,
	})
	m.Metrics.ObserveModelCall(m.Name, err)
	if err == nil {
		m.Metrics.ObserveTokens(m.Name, resp.Usage)
	}
	return resp, err
}

const researchGuidance = `Please provide comprehensive information including:
- Professional background and current role details
- Recent career updates or achievements
- Company information and recent company news
- Notable projects, publications, or speaking engagements
- Educational background and certifications
- Any shared connections, interests, or experiences that could serve as conversation starters
- Industry context and trends relevant to their role

If the LinkedIn profile has limited information, please:
- Research their current company and team
- Look for alternative sources (company website, news articles, etc.)
- Provide industry-specific context that could be relevant
- Find interesting facts about their company or field

Focus on recent and relevant information that would be useful for a professional meeting.`

// Research asks an online model about the person behind a profile.
type Research struct {
	Model Model
}

type ResearchResult struct {
	Content string      `json:"content"`
	Usage   *core.Usage `json:"usage"`
}

func (Research) Name() string { return capability.ToolResearch }

func (t Research) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, errors.New("query must not be empty")
	}
	temperature, maxTokens := t.Model.Temperature, t.Model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	resp, err := t.Model.chat(ctx, "", in.Query+"\n\n"+researchGuidance, temperature, maxTokens, false)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", t.Model.Name, err)
	}
	out := ResearchResult{Content: resp.Text}
	if resp.Usage.TotalTokens > 0 {
		u := resp.Usage
		out.Usage = &u
	}
	return out, nil
}
