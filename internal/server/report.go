package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/runtime"
	"github.com/yhlin07/when2meet-mcp-2025/internal/stream"
)

var reportTracer = otel.Tracer("when2meet/internal/server/report")

// ReportHandler serves dossier requests.
type ReportHandler struct {
	Agent     Agent
	Heartbeat time.Duration
	Logger    zerolog.Logger
	Metrics   *core.Metrics
}

type reportRequest struct {
	LinkedInURL     string `json:"linkedinUrl"`
	AdditionalNotes string `json:"additionalNotes"`
}

func (h *ReportHandler) Register(g *echo.Group) {
	g.POST("/report", h.stream)
	g.POST("/report/sync", h.sync)
	g.GET("/tools", h.tools)
}

// bind decodes and validates the body; failures are 400s before any
// streaming starts.
func (h *ReportHandler) bind(c echo.Context) (core.SeedRequest, error) {
	var body reportRequest
	if err := c.Bind(&body); err != nil {
		return core.SeedRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := h.Agent.Normalize(core.SeedRequest{LinkedInURL: body.LinkedInURL, Notes: body.AdditionalNotes})
	if err != nil {
		return core.SeedRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return req, nil
}

func (h *ReportHandler) stream(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	ctx, span := reportTracer.Start(c.Request().Context(), "report.stream")
	defer span.End()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	em := stream.New(ctx, resp, stream.Options{Heartbeat: h.Heartbeat, Logger: h.Logger, Metrics: h.Metrics})
	em.Start()
	defer em.Close()

	res := h.Agent.Prepare(ctx, req, em)
	span.SetAttributes(attribute.String("run.id", res.RunID), attribute.String("run.outcome", string(res.Outcome)))
	if ctx.Err() != nil {
		h.Logger.Debug().Str("run_id", res.RunID).Msg("client disconnected, no terminal event")
		return nil
	}
	if err := em.Finish(res); err != nil && !errors.Is(err, stream.ErrTerminated) {
		h.Logger.Debug().Err(err).Str("run_id", res.RunID).Msg("client went away before terminal event")
	}
	return nil
}

func (h *ReportHandler) sync(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	ctx, span := reportTracer.Start(c.Request().Context(), "report.sync")
	defer span.End()

	res := h.Agent.Prepare(ctx, req, nil)
	span.SetAttributes(attribute.String("run.id", res.RunID), attribute.String("run.outcome", string(res.Outcome)))
	if res.Outcome == core.OutcomeSuccess && res.Dossier != nil {
		return c.JSON(http.StatusOK, res.Dossier)
	}
	return echo.NewHTTPError(statusFor(res), runtime.ErrorMessage(res))
}

// statusFor maps a failed run onto an HTTP status.
func statusFor(res core.RunResult) int {
	var (
		ve *core.ValidationError
		te *core.TransportError
	)
	switch {
	case errors.As(res.Err, &ve):
		return http.StatusBadRequest
	case res.Outcome == core.OutcomeTimedOut:
		return http.StatusGatewayTimeout
	case errors.As(res.Err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *ReportHandler) tools(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Agent.Tools())
}
