// Package mcp exposes the dossier pipeline as a stdio MCP server.
// Clients speak newline-delimited JSON-RPC 2.0: "initialize", "tools/list"
// and "tools/call".
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
)

const (
	ProtocolVersion = "2024-11-05"
	ToolName        = "prepare_meeting_dossier"

	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	maxLineBytes = 1 << 20
)

// Agent is the pipeline the server drives.
type Agent interface {
	runtime.Preparer
	Normalize(req core.SeedRequest) (core.SeedRequest, error)
}

// ---------- JSON-RPC skeleton ----------

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolDesc describes a single MCP tool, including input schema.
type ToolDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      struct {
		ProgressToken json.RawMessage `json:"progressToken,omitempty"`
	} `json:"_meta"`
}

type dossierArgs struct {
	LinkedInURL     string `json:"linkedinUrl"`
	AdditionalNotes string `json:"additionalNotes"`
}

// Options tune a Server.
type Options struct {
	Name    string
	Version string
	// CallTimeout bounds a single tools/call; zero leaves the agent's own
	// run budget in charge.
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// Server holds the agent; it keeps no per-session state.
type Server struct {
	agent Agent
	opts  Options
	tools []ToolDesc

	mu  sync.Mutex
	out io.Writer
}

func NewServer(agent Agent, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "when2meet"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{agent: agent, opts: opts, tools: []ToolDesc{dossierTool()}}
}

func dossierTool() ToolDesc {
	return ToolDesc{
		Name: ToolName,
		Description: "Research a person from their LinkedIn profile and return a meeting dossier: " +
			"a personalised opener and exactly three conversation questions, with optional analytics.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"linkedinUrl":     map[string]any{"type": "string", "format": "uri", "description": "LinkedIn profile URL"},
				"additionalNotes": map[string]any{"type": "string", "description": "Meeting context, goals or anything else worth knowing"},
			},
			"required": []string{"linkedinUrl"},
		},
	}
}

// Serve reads requests from in until EOF or ctx is done. Calls are handled
// one at a time, in order.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var req rpcReq
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(nil, nil, &rpcError{Code: codeParse, Message: "parse error"})
			continue
		}
		s.handle(ctx, req)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req rpcReq) {
	notification := len(req.ID) == 0 || string(req.ID) == "null"
	log := s.opts.Logger.With().Str("method", req.Method).Logger()

	if req.JSONRPC != "2.0" {
		if !notification {
			s.reply(req.ID, nil, &rpcError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""})
		}
		return
	}

	switch req.Method {
	case "initialize":
		s.reply(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.opts.Name, "version": s.opts.Version},
		}, nil)
	case "ping":
		s.reply(req.ID, map[string]any{}, nil)
	case "tools/list":
		s.reply(req.ID, map[string]any{"tools": s.tools}, nil)
	case "tools/call":
		res, rerr := s.callTool(ctx, req.Params)
		if notification {
			return
		}
		if rerr != nil {
			s.reply(req.ID, nil, rerr)
			return
		}
		s.reply(req.ID, res, nil)
	default:
		if notification {
			log.Debug().Msg("notification ignored")
			return
		}
		s.reply(req.ID, nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)})
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (*callResult, *rpcError) {
	var p callParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}
	if p.Name != ToolName {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", p.Name)}
	}
	var args dossierArgs
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return errorResult("arguments must be an object with linkedinUrl"), nil
		}
	}
	req, err := s.agent.Normalize(core.SeedRequest{LinkedInURL: args.LinkedInURL, Notes: args.AdditionalNotes})
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	var obs core.Observer
	if len(p.Meta.ProgressToken) > 0 {
		obs = &progressNotifier{srv: s, token: p.Meta.ProgressToken}
	}

	res := s.agent.Prepare(ctx, req, obs)
	s.opts.Logger.Info().Str("run_id", res.RunID).Str("outcome", string(res.Outcome)).Int("steps", res.Steps).Msg("tool call finished")
	if res.Outcome != core.OutcomeSuccess || res.Dossier == nil {
		return errorResult(runtime.ErrorMessage(res)), nil
	}
	b, err := json.MarshalIndent(res.Dossier, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &callResult{Content: []content{{Type: "text", Text: string(b)}}}, nil
}

func errorResult(msg string) *callResult {
	return &callResult{Content: []content{{Type: "text", Text: msg}}, IsError: true}
}

func (s *Server) reply(id json.RawMessage, result any, rerr *rpcError) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	s.write(rpcResp{JSONRPC: "2.0", ID: id, Result: result, Error: rerr})
}

func (s *Server) write(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.opts.Logger.Error().Err(err).Msg("encode response")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(b, '\n')); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.opts.Logger.Warn().Err(err).Msg("write response")
	}
}

// progressNotifier forwards run events as notifications/progress.
type progressNotifier struct {
	srv   *Server
	token json.RawMessage
	n     int
}

func (p *progressNotifier) Observe(ev core.Event) {
	if ev.Kind != core.EventToolStarted && ev.Kind != core.EventToolFinished {
		return
	}
	p.n++
	msg := fmt.Sprintf("%s %s", ev.Tool, ev.Kind)
	p.srv.write(rpcNotification{
		JSONRPC: "2.0",
		Method:  "notifications/progress",
		Params:  map[string]any{"progressToken": p.token, "progress": p.n, "message": msg},
	})
}
