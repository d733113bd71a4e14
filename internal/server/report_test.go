package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/budget"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
)

type stubAgent struct {
	events []core.Event
	result core.RunResult
	got    core.SeedRequest
}

func (s *stubAgent) Normalize(req core.SeedRequest) (core.SeedRequest, error) {
	return runtime.NormalizeRequest(req, 100)
}

func (s *stubAgent) Prepare(_ context.Context, req core.SeedRequest, obs core.Observer) core.RunResult {
	s.got = req
	if obs != nil {
		for _, e := range s.events {
			obs.Observe(e)
		}
	}
	return s.result
}

func (s *stubAgent) Tools() []capability.ToolCard { return capability.DefaultToolCards()[:2] }

func successResult() core.RunResult {
	d := dossier.Dossier{
		Opener: "Hi Jane.",
		Questions: []dossier.Question{
			{Q: "One?", Why: "a"}, {Q: "Two?", Why: "b"}, {Q: "Three?", Why: "c"},
		},
	}.Complete()
	return core.RunResult{RunID: "r1", Outcome: core.OutcomeSuccess, Dossier: &d}
}

func newTestServer(agent Agent) *echo.Echo {
	return New(config.ServerConfig{}, agent, zerolog.Nop(), nil)
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStreamReport(t *testing.T) {
	agent := &stubAgent{
		events: []core.Event{
			{Kind: core.EventToolStarted, Tool: capability.ToolResearch},
			{Kind: core.EventPartialOpener, Text: "Hi Jane."},
		},
		result: successResult(),
	}
	rec := post(newTestServer(agent), "/api/report", `{"linkedinUrl":"https://linkedin.com/in/jane","additionalNotes":"<i>coffee</i>"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	research := strings.Index(body, "Researching LinkedIn profile")
	partial := strings.Index(body, `"partial_opener":"Hi Jane."`)
	done := strings.Index(body, `"done":true`)
	if research < 0 || partial < research || done < partial {
		t.Fatalf("frames out of order:\n%s", body)
	}
	if strings.Count(body, `"done":true`) != 1 || strings.Contains(body, "event: error") {
		t.Fatalf("expected exactly one success terminal:\n%s", body)
	}
	if agent.got.Notes != "coffee" {
		t.Fatalf("notes not sanitized: %q", agent.got.Notes)
	}
}

func TestStreamReportFailureTerminal(t *testing.T) {
	agent := &stubAgent{result: core.RunResult{Outcome: core.OutcomeTimedOut, Reason: core.ErrNoDossier.Error()}}
	rec := post(newTestServer(agent), "/api/report", `{"linkedinUrl":"https://linkedin.com/in/jane"}`)
	want := "event: error\ndata: {\"error\":\"" + core.ErrNoDossier.Error() + "\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestReportRejectsInvalidInput(t *testing.T) {
	e := newTestServer(&stubAgent{result: successResult()})
	cases := map[string]string{
		"bad json":     `{"linkedinUrl":`,
		"missing url":  `{}`,
		"relative url": `{"linkedinUrl":"linkedin.com/in/jane"}`,
		"long notes":   `{"linkedinUrl":"https://linkedin.com/in/jane","additionalNotes":"` + strings.Repeat("x", 101) + `"}`,
	}
	for name, body := range cases {
		for _, path := range []string{"/api/report", "/api/report/sync"} {
			t.Run(name+" "+path, func(t *testing.T) {
				rec := post(e, path, body)
				if rec.Code != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d", rec.Code)
				}
				var payload map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
					t.Fatalf("expected {error} body, got %q", rec.Body.String())
				}
			})
		}
	}
}

func TestSyncReportStatuses(t *testing.T) {
	cases := map[string]struct {
		result core.RunResult
		code   int
	}{
		"success":   {successResult(), http.StatusOK},
		"timed out": {core.RunResult{Outcome: core.OutcomeTimedOut, Reason: "out of steps"}, http.StatusGatewayTimeout},
		"transport": {core.RunResult{Outcome: core.OutcomeFailed, Reason: "model down", Err: &core.TransportError{Provider: "openai", Err: errors.New("502")}}, http.StatusBadGateway},
		"cancelled": {core.RunResult{Outcome: core.OutcomeFailed, Reason: "run cancelled", Err: budget.ErrCancelled}, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(newTestServer(&stubAgent{result: tc.result}), "/api/report/sync", `{"linkedinUrl":"https://linkedin.com/in/jane"}`)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tc.code == http.StatusOK {
				if payload["status"] != "complete" || payload["opener"] != "Hi Jane." {
					t.Fatalf("unexpected dossier body %v", payload)
				}
			} else if payload["error"] != tc.result.Reason {
				t.Fatalf("unexpected error body %v", payload)
			}
		})
	}
}

func TestToolsEndpoint(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	h := &ReportHandler{Agent: &stubAgent{}, Logger: zerolog.Nop()}
	if err := h.tools(ctx); err != nil {
		t.Fatalf("tools: %v", err)
	}
	var cards []capability.ToolCard
	if err := json.Unmarshal(rec.Body.Bytes(), &cards); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(cards) != 2 || cards[0].Name != capability.ToolResearch {
		t.Fatalf("unexpected cards %+v", cards)
	}
}

func TestRateLimit(t *testing.T) {
	e := New(config.ServerConfig{RateLimit: 0.001, RateBurst: 1}, &stubAgent{result: successResult()}, zerolog.Nop(), nil)
	body := `{"linkedinUrl":"https://linkedin.com/in/jane"}`
	if rec := post(e, "/api/report/sync", body); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	if rec := post(e, "/api/report/sync", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(&stubAgent{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

// orchestratedAgent runs a real orchestrator behind the handler.
type orchestratedAgent struct {
	stubAgent
	orch *core.Orchestrator
}

func (a *orchestratedAgent) Prepare(ctx context.Context, req core.SeedRequest, obs core.Observer) core.RunResult {
	return a.orch.Run(ctx, req, obs)
}

type researchLLM struct{}

func (researchLLM) Name() string { return "scripted" }

func (researchLLM) Chat(context.Context, core.ChatRequest) (core.ChatResponse, error) {
	return core.ChatResponse{ToolCalls: []core.ToolCall{{
		ID:        "c1",
		Name:      capability.ToolResearch,
		Arguments: json.RawMessage(`{"linkedinUrl":"https://linkedin.com/in/jane"}`),
	}}}, nil
}

// hangupTools drops the client connection while research is in flight.
type hangupTools struct {
	hangup context.CancelFunc
}

func (hangupTools) Specs() []core.ToolSpec { return nil }

func (h hangupTools) Dispatch(ctx context.Context, call core.ToolCall) core.ToolResult {
	h.hangup()
	<-ctx.Done()
	return core.Failed(call, ctx.Err())
}

func TestStreamReportClientDisconnect(t *testing.T) {
	reqCtx, hangup := context.WithCancel(context.Background())
	defer hangup()

	orch, err := core.NewOrchestrator(researchLLM{}, hangupTools{hangup: hangup}, core.Options{
		Budget: budget.Config{MaxSteps: 3, MaxRunTime: 5 * time.Second, ToolTimeout: 5 * time.Second},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	agent := &orchestratedAgent{orch: orch}
	e := New(config.ServerConfig{HeartbeatInterval: time.Hour}, agent, zerolog.Nop(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(`{"linkedinUrl":"https://linkedin.com/in/jane"}`)).WithContext(reqCtx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "Researching LinkedIn profile") {
		t.Fatalf("expected research progress before the disconnect:\n%s", body)
	}
	if n := strings.Count(body, "data: "); n != 1 {
		t.Fatalf("expected only the research frame, got %d frames:\n%s", n, body)
	}
	for _, bad := range []string{"event: error", `"done":true`, "failed"} {
		if strings.Contains(body, bad) {
			t.Fatalf("unexpected %q written after disconnect:\n%s", bad, body)
		}
	}
}
