package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/tools"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

const sampleDossier = `{"opener":"Congrats on the Series C. How is the team handling the growth?","questions":[{"q":"What surprised you most about scaling?","why":"Rapport"},{"q":"How do you pick what to build next?","why":"Expertise"},{"q":"Where is the market heading?","why":"Future"}]}`

// orchestratorLLM answers tool-bearing requests with a fixed script and
// plain requests with research text.
type orchestratorLLM struct {
	mu    sync.Mutex
	turns int
	runs  int
}

func (s *orchestratorLLM) Name() string { return "stub" }

func (s *orchestratorLLM) Chat(_ context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(req.Tools) == 0 {
		return core.ChatResponse{Text: "Jane runs platform at Acme."}, nil
	}
	s.turns++
	if s.turns%2 == 1 {
		s.runs++
		return core.ChatResponse{ToolCalls: []core.ToolCall{{ID: "r", Name: "research", Arguments: json.RawMessage(`{"query":"jane"}`)}}}, nil
	}
	return core.ChatResponse{ToolCalls: []core.ToolCall{{ID: "d", Name: "return_meeting_dossier", Arguments: json.RawMessage(sampleDossier)}}}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]dossier.Dossier
}

func (m *memCache) Get(_ context.Context, key string) (dossier.Dossier, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memCache) Put(_ context.Context, key string, d dossier.Dossier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = d
	return nil
}

func (m *memCache) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.LLMProvider{
				"openai": {Type: "openai", APIKey: "k", Models: map[string]config.LLMModel{
					"gpt41": {Name: "gpt-4.1"},
					"sonar": {Name: "sonar", MaxTokens: 4000, Temperature: 0.3},
				}},
			},
			Routing: config.LLMRoutingConfig{Orchestrator: "gpt41", Analysis: "gpt41", Synthesis: "gpt41", Research: "sonar"},
		},
		Agent:  config.AgentConfig{MaxSteps: 5, MaxRunTime: 10 * time.Second, ToolTimeout: 5 * time.Second},
		Server: config.ServerConfig{MaxNotesLength: 20},
	}
}

func newTestAgent(t *testing.T, llm core.LLMProvider, cache *memCache) *Agent {
	t.Helper()
	factory := func(string, config.LLMProvider) (core.LLMProvider, error) { return llm, nil }
	a, err := NewAgent(testConfig(), AgentDeps{
		Tools:  tools.Deps{Providers: factory},
		Cache:  cache,
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	return a
}

func TestAgentPrepareCachesDossier(t *testing.T) {
	llm := &orchestratorLLM{}
	cache := &memCache{data: map[string]dossier.Dossier{}}
	a := newTestAgent(t, llm, cache)

	req, err := a.Normalize(core.SeedRequest{LinkedInURL: "https://linkedin.com/in/jane", Notes: "coffee"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	res := a.Prepare(context.Background(), req, nil)
	if res.Outcome != core.OutcomeSuccess || res.Dossier == nil {
		t.Fatalf("expected success, got %s: %s", res.Outcome, res.Reason)
	}
	if len(cache.data) != 1 {
		t.Fatalf("dossier not cached")
	}

	var partials []core.Event
	res = a.Prepare(context.Background(), req, core.ObserverFunc(func(e core.Event) { partials = append(partials, e) }))
	if res.Outcome != core.OutcomeSuccess || !strings.HasPrefix(res.RunID, "cache-") {
		t.Fatalf("expected cache hit, got %+v", res)
	}
	if llm.runs != 1 {
		t.Fatalf("cache hit must not start a run, runs=%d", llm.runs)
	}
	if len(partials) != 4 || partials[0].Kind != core.EventPartialOpener {
		t.Fatalf("cache hit should replay partial fields, got %+v", partials)
	}
}

func TestNormalizeRequest(t *testing.T) {
	cases := map[string]struct {
		req   core.SeedRequest
		field string
	}{
		"missing url":    {core.SeedRequest{}, "linkedinUrl"},
		"relative url":   {core.SeedRequest{LinkedInURL: "linkedin.com/in/jane"}, "linkedinUrl"},
		"notes too long": {core.SeedRequest{LinkedInURL: "https://linkedin.com/in/jane", Notes: strings.Repeat("x", 21)}, "additionalNotes"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeRequest(tc.req, 20)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}

	req, err := NormalizeRequest(core.SeedRequest{LinkedInURL: " https://linkedin.com/in/jane ", Notes: "<b>coffee</b> chat"}, 0)
	if err != nil {
		t.Fatalf("NormalizeRequest: %v", err)
	}
	if req.LinkedInURL != "https://linkedin.com/in/jane" || req.Notes != "coffee chat" {
		t.Fatalf("unexpected normalized request %+v", req)
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage(core.RunResult{Reason: " timed out "}); got != "timed out" {
		t.Fatalf("got %q", got)
	}
	if got := ErrorMessage(core.RunResult{Err: errors.New("x")}); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := ErrorMessage(core.RunResult{}); got != core.ErrNoDossier.Error() {
		t.Fatalf("got %q", got)
	}
}

func TestServeStopsOnStartError(t *testing.T) {
	boom := errors.New("bind failed")
	err := Serve(context.Background(), zerolog.Nop(), func() error { return boom }, func(context.Context) error { return nil }, time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Serve(ctx, zerolog.Nop(), func() error {
		<-stopped
		return nil
	}, func(context.Context) error {
		close(stopped)
		return nil
	}, time.Second)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestSetupTelemetryWithoutEndpoint(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
