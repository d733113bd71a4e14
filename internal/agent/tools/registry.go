// Package tools binds tool implementations to their capability cards and
// dispatches model tool calls against them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/budget"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
)

// Tool is one invocable capability. Invoke receives arguments that already
// satisfy the card's input schema and must honour ctx.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName string
	Fn       func(ctx context.Context, args json.RawMessage) (any, error)
}

func (f Func) Name() string { return f.ToolName }

func (f Func) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return f.Fn(ctx, args)
}

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

type entry struct {
	tool   Tool
	card   capability.ToolCard
	schema *jsonschema.Schema
}

// Registry is the per-process tool table. It is read-only once built and
// safe for concurrent runs.
type Registry struct {
	cards   *capability.Registry
	entries map[string]entry
	order   []string
	timeout time.Duration
	logger  zerolog.Logger
	metrics *core.Metrics
}

// Options configure a Registry.
type Options struct {
	// Timeout bounds each dispatch; zero uses budget.DefaultToolTimeout.
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *core.Metrics
}

var tracer = otel.Tracer("when2meet/internal/agent/tools")

// NewRegistry builds an empty table over a validated card catalogue.
func NewRegistry(cards *capability.Registry, opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = budget.DefaultToolTimeout
	}
	return &Registry{
		cards:   cards,
		entries: make(map[string]entry),
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("component", "tools").Logger(),
		metrics: opts.Metrics,
	}
}

// Register binds t to the card of the same name.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("tool %s already registered", name)
	}
	card, ok := r.cards.Tool(name)
	if !ok {
		return fmt.Errorf("tool %s has no capability card", name)
	}
	schema, err := compileSchema(card.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %s: compile input schema: %w", name, err)
	}
	r.entries[name] = entry{tool: t, card: card, schema: schema}
	r.order = append(r.order, name)
	return nil
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Specs describes the registered tools to the model.
func (r *Registry) Specs() []core.ToolSpec {
	out := make([]core.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, core.ToolSpec{Name: name, Description: e.card.Description, Parameters: e.card.InputSchema})
	}
	return out
}

// Cards returns the cards of the registered tools.
func (r *Registry) Cards() []capability.ToolCard {
	out := make([]capability.ToolCard, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].card)
	}
	return out
}

// Dispatch runs one call. Every failure is returned as an error result; it
// never panics.
func (r *Registry) Dispatch(ctx context.Context, call core.ToolCall) (res core.ToolResult) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "tools.dispatch")
	span.SetAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))
	defer func() {
		r.metrics.ObserveToolCall(call.Name, time.Since(start), res.Err)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	e, ok := r.entries[call.Name]
	if !ok {
		return core.Failed(call, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name))
	}

	args := call.Arguments
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var decoded interface{}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return core.Failed(call, &core.ToolError{Tool: call.Name, Err: fmt.Errorf("%w: malformed JSON: %v", ErrInvalidArguments, err)})
	}
	if _, isObject := decoded.(map[string]interface{}); !isObject {
		return core.Failed(call, &core.ToolError{Tool: call.Name, Err: fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)})
	}
	if err := e.schema.Validate(decoded); err != nil {
		return core.Failed(call, &core.ToolError{Tool: call.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)})
	}

	timeout := r.timeout
	if d, ok := budget.ToolTimeoutFrom(ctx); ok {
		timeout = d
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := r.invoke(tctx, e.tool, args)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		r.logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Err(err).Msg("tool failed")
		return core.Failed(call, &core.ToolError{Tool: call.Name, Err: err})
	}
	r.logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Dur("took", time.Since(start)).Msg("tool finished")
	return core.Succeeded(call, value)
}

// invoke runs the tool on its own goroutine so the per-call timeout holds
// even for tools that ignore ctx. Panics become errors.
func (r *Registry) invoke(ctx context.Context, t Tool, args json.RawMessage) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error().Str("tool", t.Name()).Interface("panic", p).Bytes("stack", debug.Stack()).Msg("tool panicked")
				out = outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
			done <- out
		}()
		out.value, out.err = t.Invoke(ctx, args)
	}()
	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func compileSchema(params map[string]interface{}) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
