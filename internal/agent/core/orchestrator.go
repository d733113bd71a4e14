package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yhlin07/when2meet-mcp-2025/internal/budget"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

const DefaultModel = "gpt-4.1"

// Options tune a single Orchestrator.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Budget      budget.Config
	// TextFallback accepts a dossier embedded in a plain-text model turn.
	TextFallback bool
	// CompletionTool ends the run once it returns a valid dossier.
	CompletionTool string
	Logger         zerolog.Logger
	Metrics        *Metrics
}

// Orchestrator drives the model through bounded rounds of tool calls until
// a validated dossier is produced or the budget runs out.
type Orchestrator struct {
	llm     LLMProvider
	tools   Dispatcher
	opts    Options
	logger  zerolog.Logger
	metrics *Metrics
}

var orchestratorTracer trace.Tracer = otel.Tracer("when2meet/internal/agent/orchestrator")

// NewOrchestrator wires a model and a tool dispatcher.
func NewOrchestrator(llm LLMProvider, tools Dispatcher, opts Options) (*Orchestrator, error) {
	if llm == nil {
		return nil, errors.New("orchestrator: llm provider is required")
	}
	if tools == nil {
		return nil, errors.New("orchestrator: tool dispatcher is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.CompletionTool == "" {
		opts.CompletionTool = capability.ToolReturnDossier
	}
	if err := opts.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return &Orchestrator{
		llm:     llm,
		tools:   tools,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "orchestrator").Logger(),
		metrics: opts.Metrics,
	}, nil
}

// runState is the mutable bookkeeping of one Run call.
type runState struct {
	id       string
	start    time.Time
	mon      *budget.Monitor
	conv     *Conversation
	obs      Observer
	log      zerolog.Logger
	lastErr  error
	usage    Usage
	streamed map[string]struct{}
}

// Run executes one dossier run. It always returns exactly one RunResult and
// never panics on model or tool failures. Cancelling ctx ends the run with
// a failed outcome.
func (o *Orchestrator) Run(ctx context.Context, req SeedRequest, obs Observer) RunResult {
	if obs == nil {
		obs = nopObserver{}
	}
	cfg := o.opts.Budget
	if req.Budget != nil {
		cfg = budget.Merge(cfg, *req.Budget)
	}
	st := &runState{
		id:       uuid.NewString(),
		start:    time.Now(),
		mon:      budget.NewMonitor(cfg),
		conv:     NewConversation(SeedPrompt(req)),
		obs:      obs,
		streamed: make(map[string]struct{}),
	}
	st.log = o.logger.With().Str("run_id", st.id).Logger()

	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("run.id", st.id),
		attribute.String("run.model", o.opts.Model),
	))
	defer span.End()

	// the watchdog: in-flight model and tool calls observe the absolute deadline
	runCtx, cancel := context.WithDeadline(ctx, st.mon.Deadline())
	defer cancel()
	runCtx = budget.WithToolTimeout(runCtx, st.mon.ToolTimeout())
	stop := context.AfterFunc(ctx, st.mon.Cancel)
	defer stop()

	st.log.Info().Str("linkedin_url", req.LinkedInURL).Int("max_steps", cfg.Normalize().MaxSteps).Msg("run started")

	res := o.loop(ctx, runCtx, st)
	res.RunID = st.id
	res.Steps = st.mon.Steps()
	res.Duration = time.Since(st.start)
	res.Usage = st.usage
	res.Conversation = st.conv.Turns()

	o.metrics.ObserveRun(res.Outcome, res.Duration)
	span.SetAttributes(attribute.String("run.outcome", string(res.Outcome)), attribute.Int("run.steps", res.Steps))
	if res.Outcome != OutcomeSuccess {
		span.SetStatus(codes.Error, res.Reason)
		st.log.Warn().Str("outcome", string(res.Outcome)).Int("steps", res.Steps).Str("reason", res.Reason).Msg("run ended without dossier")
	} else {
		span.SetStatus(codes.Ok, "")
		st.log.Info().Int("steps", res.Steps).Dur("duration", res.Duration).Int("tokens", res.Usage.TotalTokens).Msg("run completed")
	}
	return res
}

func (o *Orchestrator) loop(ctx, runCtx context.Context, st *runState) RunResult {
	// runCtx is checked too: the AfterFunc that flags cancellation on the
	// monitor runs asynchronously
	for runCtx.Err() == nil && st.mon.PermitsNextStep() {
		step := st.mon.Step()
		resp, err := o.callModel(runCtx, st, step)
		if err != nil {
			return o.modelFailure(ctx, runCtx, st, err)
		}

		calls := normalizeCalls(resp.ToolCalls)
		if err := st.conv.AppendModel(resp.Text, calls); err != nil {
			return RunResult{Outcome: OutcomeFailed, Reason: err.Error(), Err: err}
		}

		if len(calls) == 0 {
			if o.opts.TextFallback {
				if d, ok := dossier.ExtractFromText(resp.Text); ok {
					st.log.Debug().Int("step", step).Msg("dossier recovered from text turn")
					o.emitPartials(st, d)
					return success(d)
				}
			}
			continue
		}

		if d, done := o.dispatchTurn(ctx, runCtx, st, calls); done {
			return success(d)
		}
	}
	return o.exhausted(ctx, st)
}

// dispatchTurn runs the calls of one model turn sequentially, appending each
// result before the next dispatch. It reports a validated completion.
func (o *Orchestrator) dispatchTurn(ctx, runCtx context.Context, st *runState, calls []ToolCall) (dossier.Dossier, bool) {
	for i, call := range calls {
		if runCtx.Err() != nil {
			skipRemaining(st, calls[i:])
			return dossier.Dossier{}, false
		}
		st.obs.Observe(Event{Kind: EventToolStarted, Tool: call.Name, CallID: call.ID})
		res, err := await(runCtx, func() (ToolResult, error) {
			return o.tools.Dispatch(runCtx, call), nil
		})
		if err != nil {
			res = Failed(call, &ToolError{Tool: call.Name, Err: err})
		}
		res.CallID, res.Name = call.ID, call.Name
		if err := st.conv.AppendResult(res); err != nil {
			st.log.Error().Err(err).Str("call_id", call.ID).Msg("transcript rejected tool result")
		}
		if !res.OK() {
			st.lastErr = res.Err
			st.log.Debug().Str("tool", call.Name).Err(res.Err).Msg("tool call failed")
			if ctx.Err() != nil {
				// the caller is gone; nobody is listening
				continue
			}
			st.obs.Observe(Event{Kind: EventToolFailed, Tool: call.Name, CallID: call.ID, Err: res.Err.Error()})
			continue
		}
		st.obs.Observe(Event{Kind: EventToolFinished, Tool: call.Name, CallID: call.ID})

		d, ok := dossierFrom(res, call.Name == o.opts.CompletionTool)
		if ok {
			o.emitPartials(st, d)
		}
		if call.Name == o.opts.CompletionTool {
			if !ok {
				st.lastErr = fmt.Errorf("%s returned no valid dossier", call.Name)
				continue
			}
			skipRemaining(st, calls[i+1:])
			return d, true
		}
	}
	return dossier.Dossier{}, false
}

// await runs f on its own goroutine and stops waiting once ctx is done, so
// a callee that ignores its context cannot hold the run past the deadline.
// A late result is dropped.
func await[T any](ctx context.Context, f func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := f()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func skipRemaining(st *runState, calls []ToolCall) {
	for _, c := range calls {
		_ = st.conv.AppendResult(Failed(c, ErrSkipped))
	}
}

func (o *Orchestrator) callModel(ctx context.Context, st *runState, step int) (ChatResponse, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.model_call", trace.WithAttributes(
		attribute.Int("step", step),
		attribute.String("model", o.opts.Model),
	))
	defer span.End()

	msgs := make([]ChatMessage, 0, st.conv.Len()+1)
	msgs = append(msgs, ChatMessage{Role: RoleSystem, Content: orchestratorSystemPrompt})
	msgs = append(msgs, st.conv.Messages()...)

	req := ChatRequest{
		Model:       o.opts.Model,
		Messages:    msgs,
		Tools:       o.tools.Specs(),
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	}
	resp, err := await(ctx, func() (ChatResponse, error) { return o.llm.Chat(ctx, req) })
	o.metrics.ObserveModelCall(o.opts.Model, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, err
	}
	o.metrics.ObserveTokens(o.opts.Model, resp.Usage)
	st.usage.Add(resp.Usage)
	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)), attribute.Int("tokens.total", resp.Usage.TotalTokens))
	st.log.Debug().Int("step", step).Int("tool_calls", len(resp.ToolCalls)).Msg("model turn received")
	return resp, nil
}

func (o *Orchestrator) emitPartials(st *runState, d dossier.Dossier) {
	fp := d.Fingerprint()
	if _, seen := st.streamed[fp]; seen {
		return
	}
	st.streamed[fp] = struct{}{}
	st.obs.Observe(Event{Kind: EventPartialOpener, Text: d.Opener})
	for i, q := range d.Questions {
		st.obs.Observe(Event{Kind: EventPartialQuestion, Index: i, Text: q.Q})
	}
}

func (o *Orchestrator) modelFailure(ctx, runCtx context.Context, st *runState, err error) RunResult {
	switch {
	case st.mon.Cancelled() || errors.Is(ctx.Err(), context.Canceled):
		return cancelled()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return timedOut(st, st.mon.Check())
	}
	terr := &TransportError{Provider: o.llm.Name(), Err: err}
	return RunResult{
		Outcome: OutcomeFailed,
		Reason:  fmt.Sprintf("model call failed: %v", err),
		Err:     terr,
	}
}

func (o *Orchestrator) exhausted(ctx context.Context, st *runState) RunResult {
	err := st.mon.Check()
	if errors.Is(err, budget.ErrCancelled) || errors.Is(ctx.Err(), context.Canceled) {
		return cancelled()
	}
	return timedOut(st, err)
}

func timedOut(st *runState, err error) RunResult {
	var exceeded budget.ErrExceeded
	if !errors.As(err, &exceeded) {
		exceeded = budget.ErrExceeded{Kind: budget.KindTime, Usage: time.Since(st.start).Round(time.Millisecond).String()}
	}
	reason := fmt.Sprintf("%v (%v)", ErrNoDossier, exceeded)
	if exceeded.Kind == budget.KindTime {
		reason = fmt.Sprintf("Run timed out before a dossier was ready (%v)", exceeded)
	}
	if st.lastErr != nil {
		reason += "; last error: " + st.lastErr.Error()
	}
	return RunResult{
		Outcome: OutcomeTimedOut,
		Reason:  reason,
		Err:     fmt.Errorf("%w: %w", ErrNoDossier, exceeded),
	}
}

func cancelled() RunResult {
	return RunResult{Outcome: OutcomeFailed, Reason: budget.ErrCancelled.Error(), Err: budget.ErrCancelled}
}

func success(d dossier.Dossier) RunResult {
	d = d.Complete()
	return RunResult{Outcome: OutcomeSuccess, Dossier: &d}
}

// dossierFrom extracts a validated dossier from a successful tool result.
// Raw payloads are only trusted for the completion tool.
func dossierFrom(res ToolResult, completion bool) (dossier.Dossier, bool) {
	switch v := res.Value.(type) {
	case dossier.Dossier:
		return v, dossier.ValidateDossier(v) == nil
	case *dossier.Dossier:
		if v != nil {
			return *v, dossier.ValidateDossier(*v) == nil
		}
	}
	if completion && len(res.Payload) > 0 {
		d, err := dossier.Validate(res.Payload)
		return d, err == nil
	}
	return dossier.Dossier{}, false
}

// normalizeCalls guarantees every call has a unique, non-empty ID.
func normalizeCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for i, c := range calls {
		if _, dup := seen[c.ID]; c.ID == "" || dup {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = struct{}{}
		if len(c.Arguments) == 0 {
			c.Arguments = []byte("{}")
		}
		out[i] = c
	}
	return out
}
