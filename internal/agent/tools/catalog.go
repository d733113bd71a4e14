package tools

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/capability"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_fetch"
	"github.com/yhlin07/when2meet-mcp-2025/tools/web_search"
)

// ProviderFactory builds a chat client for a configured provider.
type ProviderFactory func(name string, cfg config.LLMProvider) (core.LLMProvider, error)

// DefaultProviderFactory talks to OpenAI-compatible endpoints.
func DefaultProviderFactory(name string, cfg config.LLMProvider) (core.LLMProvider, error) {
	p, err := core.NewLLMProvider(name, cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Deps overrides the backends Build would otherwise create from config.
type Deps struct {
	Providers ProviderFactory
	Searcher  web_search.WebSearcher
	Fetcher   web_fetch.WebFetcher
	Logger    zerolog.Logger
	Metrics   *core.Metrics
}

// Models resolves routed model keys to clients, sharing one client per
// provider.
type Models struct {
	cfg     config.LLMConfig
	factory ProviderFactory
	clients map[string]core.LLMProvider
}

func NewModels(cfg config.LLMConfig, factory ProviderFactory) *Models {
	if factory == nil {
		factory = DefaultProviderFactory
	}
	return &Models{cfg: cfg, factory: factory, clients: make(map[string]core.LLMProvider)}
}

// Resolve returns the model routed under key.
func (m *Models) Resolve(key string) (Model, error) {
	rm, err := m.cfg.ResolveModel(key)
	if err != nil {
		return Model{}, err
	}
	client, ok := m.clients[rm.ProviderName]
	if !ok {
		client, err = m.factory(rm.ProviderName, rm.Provider)
		if err != nil {
			return Model{}, fmt.Errorf("provider %s: %w", rm.ProviderName, err)
		}
		m.clients[rm.ProviderName] = client
	}
	return Model{LLM: client, Name: rm.Model.ModelID(), MaxTokens: rm.Model.MaxTokens, Temperature: rm.Model.Temperature}, nil
}

// NewCardRegistry loads the built-in cards, sealing them when a signing
// secret is configured.
func NewCardRegistry(cfg config.CapabilityConfig) (*capability.Registry, error) {
	cards := capability.DefaultToolCards()
	if cfg.SigningSecret != "" {
		for i, tc := range cards {
			sealed, err := capability.Seal(tc, cfg.SigningSecret)
			if err != nil {
				return nil, err
			}
			cards[i] = sealed
		}
	}
	required := cfg.RequiredTools
	if len(required) == 0 {
		required = capability.DefaultRequired
	}
	return capability.NewRegistry(cards, cfg.SigningSecret, required)
}

// Build assembles the tool table for cfg. The optional web tools are only
// registered when their backends are configured.
func Build(cfg *config.Config, models *Models, deps Deps) (*Registry, error) {
	cards, err := NewCardRegistry(cfg.Capability)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(cards, Options{Timeout: cfg.Agent.ToolTimeout, Logger: deps.Logger, Metrics: deps.Metrics})

	research, err := models.Resolve(cfg.LLM.Routing.Research)
	if err != nil {
		return nil, fmt.Errorf("research model: %w", err)
	}
	analysis, err := models.Resolve(cfg.LLM.Routing.Analysis)
	if err != nil {
		return nil, fmt.Errorf("analysis model: %w", err)
	}
	synthesis, err := models.Resolve(cfg.LLM.Routing.Synthesis)
	if err != nil {
		return nil, fmt.Errorf("synthesis model: %w", err)
	}
	research.Metrics, analysis.Metrics, synthesis.Metrics = deps.Metrics, deps.Metrics, deps.Metrics
	toolset := []Tool{
		Research{Model: research},
		AnalyzeContext{Model: analysis},
		GenerateDossier{Model: synthesis},
		ReturnDossier{},
	}

	searcher := deps.Searcher
	if searcher == nil {
		searcher, err = searcherFromConfig(cfg.Sources.WebSearch)
		if err != nil {
			return nil, err
		}
	}
	if searcher != nil {
		toolset = append(toolset, WebSearch{Searcher: searcher, MaxResults: cfg.Sources.WebSearch.MaxResults})
	}

	fetcher := deps.Fetcher
	if fetcher == nil && cfg.Sources.WebFetch.Enabled {
		fetcher, err = web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType,
			time.Duration(cfg.Sources.WebFetch.TimeoutMS)*time.Millisecond, cfg.Sources.WebFetch.MaxChars)
		if err != nil {
			return nil, err
		}
	}
	if fetcher != nil {
		toolset = append(toolset, FetchPage{Fetcher: fetcher})
	}

	for _, t := range toolset {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func searcherFromConfig(cfg config.WebSearchConfig) (web_search.WebSearcher, error) {
	client := core.NewHTTPClient(cfg.Timeout, 2, 0)
	switch {
	case cfg.SerperAPIKey != "":
		return web_search.NewWebSearcher(web_search.SerperProvider, cfg.SerperAPIKey, client)
	case cfg.BraveAPIKey != "":
		return web_search.NewWebSearcher(web_search.BraveProvider, cfg.BraveAPIKey, client)
	}
	return nil, nil
}
