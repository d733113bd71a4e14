package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/tools"
	"github.com/yhlin07/when2meet-mcp-2025/internal/budget"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/internal/helpers"
	"github.com/yhlin07/when2meet-mcp-2025/repository"
)

const DefaultMaxNotesLength = 50000

// Preparer produces one dossier run per request. Implemented by *Agent.
type Preparer interface {
	Prepare(ctx context.Context, req core.SeedRequest, obs core.Observer) core.RunResult
}

// AgentDeps are the process-wide collaborators of an Agent.
type AgentDeps struct {
	Tools   tools.Deps
	Cache   repository.DossierCache
	Logger  zerolog.Logger
	Metrics *core.Metrics
}

// Agent is the assembled dossier pipeline shared by every entry point.
type Agent struct {
	orch     *core.Orchestrator
	registry *tools.Registry
	cache    repository.DossierCache
	maxNotes int
	logger   zerolog.Logger
}

// NewAgent resolves models, builds the tool table and orchestrator.
func NewAgent(cfg *config.Config, deps AgentDeps) (*Agent, error) {
	deps.Tools.Logger = deps.Logger
	deps.Tools.Metrics = deps.Metrics
	models := tools.NewModels(cfg.LLM, deps.Tools.Providers)

	registry, err := tools.Build(cfg, models, deps.Tools)
	if err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}
	orchModel, err := models.Resolve(cfg.LLM.Routing.Orchestrator)
	if err != nil {
		return nil, fmt.Errorf("orchestrator model: %w", err)
	}
	orch, err := core.NewOrchestrator(orchModel.LLM, registry, core.Options{
		Model:       orchModel.Name,
		Temperature: cfg.Agent.Temperature,
		MaxTokens:   orchModel.MaxTokens,
		Budget: budget.Config{
			MaxSteps:    cfg.Agent.MaxSteps,
			MaxRunTime:  cfg.Agent.MaxRunTime,
			ToolTimeout: cfg.Agent.ToolTimeout,
		},
		TextFallback:   cfg.Agent.TextFallback,
		CompletionTool: capability.ToolReturnDossier,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	cache := deps.Cache
	if cache == nil {
		cache = repository.NopCache{}
	}
	maxNotes := cfg.Server.MaxNotesLength
	if maxNotes <= 0 {
		maxNotes = DefaultMaxNotesLength
	}
	return &Agent{
		orch:     orch,
		registry: registry,
		cache:    cache,
		maxNotes: maxNotes,
		logger:   deps.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Tools lists the cards of the registered tools.
func (a *Agent) Tools() []capability.ToolCard { return a.registry.Cards() }

// Normalize validates and cleans a caller request.
func (a *Agent) Normalize(req core.SeedRequest) (core.SeedRequest, error) {
	return NormalizeRequest(req, a.maxNotes)
}

// NormalizeRequest checks the profile link and bounds the notes. Errors are
// *core.ValidationError.
func NormalizeRequest(req core.SeedRequest, maxNotes int) (core.SeedRequest, error) {
	if err := core.ValidateSeed(req); err != nil {
		return req, err
	}
	u, err := helpers.ProfileURL(req.LinkedInURL)
	if err != nil {
		return req, &core.ValidationError{Field: "linkedinUrl", Message: "Invalid url"}
	}
	if maxNotes <= 0 {
		maxNotes = DefaultMaxNotesLength
	}
	if helpers.RuneCount(req.Notes) > maxNotes {
		return req, &core.ValidationError{Field: "additionalNotes", Message: fmt.Sprintf("must be at most %d characters", maxNotes)}
	}
	req.LinkedInURL = u.String()
	req.Notes = helpers.SanitizeNotes(req.Notes)
	return req, nil
}

// Prepare serves req from the cache or runs the orchestrator. req must
// already be normalized.
func (a *Agent) Prepare(ctx context.Context, req core.SeedRequest, obs core.Observer) core.RunResult {
	if obs == nil {
		obs = core.ObserverFunc(func(core.Event) {})
	}
	key, err := helpers.RequestFingerprint(req.LinkedInURL, req.Notes)
	if err != nil {
		return core.RunResult{Outcome: core.OutcomeFailed, Reason: err.Error(), Err: &core.ValidationError{Field: "linkedinUrl", Message: err.Error()}}
	}

	if d, ok, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn().Err(err).Msg("dossier cache lookup failed")
	} else if ok {
		a.logger.Info().Str("key", key[:12]).Msg("dossier served from cache")
		obs.Observe(core.Event{Kind: core.EventPartialOpener, Text: d.Opener})
		for i, q := range d.Questions {
			obs.Observe(core.Event{Kind: core.EventPartialQuestion, Index: i, Text: q.Q})
		}
		return core.RunResult{RunID: "cache-" + uuid.NewString(), Outcome: core.OutcomeSuccess, Dossier: &d}
	}

	res := a.orch.Run(ctx, req, obs)
	if res.Outcome == core.OutcomeSuccess && res.Dossier != nil {
		// stored even when the caller has disconnected
		cctx := context.WithoutCancel(ctx)
		if err := a.cache.Put(cctx, key, *res.Dossier); err != nil {
			a.logger.Warn().Err(err).Str("run_id", res.RunID).Msg("dossier cache store failed")
		}
	}
	return res
}

// Close releases the cache connection.
func (a *Agent) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

// ErrorMessage is the caller-facing text of a failed result.
func ErrorMessage(res core.RunResult) string {
	if msg := strings.TrimSpace(res.Reason); msg != "" {
		return msg
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	return core.ErrNoDossier.Error()
}
