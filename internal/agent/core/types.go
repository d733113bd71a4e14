package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yhlin07/when2meet-mcp-2025/internal/budget"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

// TurnKind identifies who produced a conversation turn.
type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnModel      TurnKind = "model"
	TurnToolResult TurnKind = "tool_result"
)

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of one dispatched call. Exactly one of Payload
// or Err is meaningful.
type ToolResult struct {
	CallID  string          `json:"call_id"`
	Name    string          `json:"name"`
	Value   any             `json:"-"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     error           `json:"-"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Err == nil }

// Content is what the model sees for this result.
func (r ToolResult) Content() string {
	if r.Err != nil {
		b, _ := json.Marshal(map[string]string{"error": r.Err.Error()})
		return string(b)
	}
	if len(r.Payload) == 0 {
		return "{}"
	}
	return string(r.Payload)
}

// Succeeded builds a success result, marshalling value into the payload.
func Succeeded(call ToolCall, value any) ToolResult {
	payload, err := json.Marshal(value)
	if err != nil {
		return Failed(call, &ToolError{Tool: call.Name, Err: fmt.Errorf("encode result: %w", err)})
	}
	return ToolResult{CallID: call.ID, Name: call.Name, Value: value, Payload: payload}
}

// Failed builds an error result.
func Failed(call ToolCall, err error) ToolResult {
	return ToolResult{CallID: call.ID, Name: call.Name, Err: err}
}

// Turn is one entry of the transcript.
type Turn struct {
	Kind      TurnKind        `json:"kind"`
	Text      string          `json:"text,omitempty"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Conversation is the append-only transcript of a run. Every call of a
// model turn must be answered before the next model turn is accepted.
type Conversation struct {
	turns   []Turn
	pending []string
}

// NewConversation seeds a transcript with the user request.
func NewConversation(userText string) *Conversation {
	return &Conversation{turns: []Turn{{Kind: TurnUser, Text: userText}}}
}

// AppendModel records a model turn and marks its calls pending.
func (c *Conversation) AppendModel(text string, calls []ToolCall) error {
	if len(c.pending) > 0 {
		return fmt.Errorf("conversation: %d tool calls still unanswered", len(c.pending))
	}
	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return errors.New("conversation: tool call without id")
		}
		if _, dup := seen[call.ID]; dup {
			return fmt.Errorf("conversation: duplicate tool call id %s", call.ID)
		}
		seen[call.ID] = struct{}{}
		c.pending = append(c.pending, call.ID)
	}
	c.turns = append(c.turns, Turn{Kind: TurnModel, Text: text, ToolCalls: append([]ToolCall(nil), calls...)})
	return nil
}

// AppendResult answers one pending call.
func (c *Conversation) AppendResult(res ToolResult) error {
	idx := -1
	for i, id := range c.pending {
		if id == res.CallID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("conversation: no pending call %s", res.CallID)
	}
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	turn := Turn{Kind: TurnToolResult, CallID: res.CallID, ToolName: res.Name}
	if res.Err != nil {
		turn.Error = res.Err.Error()
	} else {
		turn.Payload = res.Payload
	}
	c.turns = append(c.turns, turn)
	return nil
}

// Pending lists call IDs still waiting for a result.
func (c *Conversation) Pending() []string {
	return append([]string(nil), c.pending...)
}

// Turns returns a copy of the transcript.
func (c *Conversation) Turns() []Turn {
	return append([]Turn(nil), c.turns...)
}

// Len is the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Messages converts the transcript to provider messages in order.
func (c *Conversation) Messages() []ChatMessage {
	out := make([]ChatMessage, 0, len(c.turns))
	for _, t := range c.turns {
		switch t.Kind {
		case TurnUser:
			out = append(out, ChatMessage{Role: RoleUser, Content: t.Text})
		case TurnModel:
			out = append(out, ChatMessage{Role: RoleAssistant, Content: t.Text, ToolCalls: t.ToolCalls})
		case TurnToolResult:
			content := string(t.Payload)
			if t.Error != "" {
				b, _ := json.Marshal(map[string]string{"error": t.Error})
				content = string(b)
			}
			out = append(out, ChatMessage{Role: RoleTool, Content: content, ToolCallID: t.CallID, Name: t.ToolName})
		}
	}
	return out
}

// Outcome of a run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeFailed   Outcome = "failed"
)

// RunResult is produced once at the end of a run.
type RunResult struct {
	RunID        string           `json:"run_id"`
	Outcome      Outcome          `json:"outcome"`
	Dossier      *dossier.Dossier `json:"dossier,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Err          error            `json:"-"`
	Steps        int              `json:"steps"`
	Duration     time.Duration    `json:"duration"`
	Usage        Usage            `json:"usage"`
	Conversation []Turn           `json:"conversation,omitempty"`
}

// SeedRequest starts a run.
type SeedRequest struct {
	LinkedInURL string         `json:"linkedinUrl"`
	Notes       string         `json:"additionalNotes,omitempty"`
	Budget      *budget.Config `json:"-"`
}

// EventKind names a progress notification.
type EventKind string

const (
	EventToolStarted     EventKind = "tool_started"
	EventToolFinished    EventKind = "tool_finished"
	EventToolFailed      EventKind = "tool_failed"
	EventPartialOpener   EventKind = "partial_opener"
	EventPartialQuestion EventKind = "partial_question"
)

// Event is pushed to the observer in order as the run progresses.
type Event struct {
	Kind   EventKind `json:"kind"`
	Tool   string    `json:"tool,omitempty"`
	CallID string    `json:"call_id,omitempty"`
	Text   string    `json:"text,omitempty"`
	Index  int       `json:"index,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// Observer receives run events. Implementations must not block for long;
// the loop waits on them.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// ToolSpec is what the model is told about a tool.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Dispatcher resolves and runs tool calls.
type Dispatcher interface {
	Specs() []ToolSpec
	Dispatch(ctx context.Context, call ToolCall) ToolResult
}

// ValidateSeed checks the request fields a run cannot start without.
func ValidateSeed(req SeedRequest) error {
	if strings.TrimSpace(req.LinkedInURL) == "" {
		return &ValidationError{Field: "linkedinUrl", Message: "LinkedIn URL is required"}
	}
	if req.Budget != nil {
		if err := req.Budget.Validate(); err != nil {
			return &ValidationError{Field: "budget", Message: err.Error()}
		}
	}
	return nil
}
