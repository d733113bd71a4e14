package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/logging"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
	"github.com/yhlin07/when2meet-mcp-2025/repository"
)

// app is the process-wide wiring shared by every command.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   *core.Metrics
	agent     *runtime.Agent
	telemetry *runtime.Telemetry
}

func newApp(ctx context.Context, cfgPath string, logOut io.Writer) (*app, error) {
	cfg := config.LoadConfig(cfgPath)

	var logger zerolog.Logger
	if logOut == nil {
		logger = logging.New(cfg.General)
	} else {
		logger = logging.NewWithWriter(logOut, cfg.General)
	}

	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	cache, err := repository.NewDossierCache(ctx, cfg.Storage.Redis, logging.Component(logger, "cache"))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("dossier cache: %w", err)
	}
	metrics := core.DefaultMetrics()
	agent, err := runtime.NewAgent(cfg, runtime.AgentDeps{
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		_ = cache.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, metrics: metrics, agent: agent, telemetry: tel}, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.agent.Close(), a.telemetry.Shutdown(ctx))
}
