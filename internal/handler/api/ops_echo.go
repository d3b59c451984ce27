package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/analytics"
	xhttp "CreditPulse/pkg/http"
	xlogger "CreditPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReportSource exposes the most recent batch report.
type ReportSource interface {
	LastReport() *models.BatchReport
}

// Pinger checks one dependency.
type Pinger func(ctx context.Context) error

// OpsEchoHandler serves health, run report and scenario catalogue endpoints.
type OpsEchoHandler struct {
	logger      *xlogger.Logger
	reports     ReportSource
	deps        map[string]Pinger
	pingTimeout time.Duration
}

func NewOpsEchoHandler(logger *xlogger.Logger, reports ReportSource, deps map[string]Pinger) *OpsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OpsEchoHandler{logger: logger, reports: reports, deps: deps, pingTimeout: 2 * time.Second}
}

func (h *OpsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/runs/latest", h.LatestRun)
	g.GET("/runs/latest/failures", h.LatestFailures)
	g.GET("/scenarios", h.Scenarios)
}

// HealthResponse lists the state of every checked dependency.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *OpsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.pingTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	res := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	var firstErr error
	for _, name := range names {
		if err := h.deps[name](ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			if firstErr == nil {
				firstErr = xhttp.UnavailableError(name, err)
			}
			continue
		}
		res.Checks[name] = "ok"
	}
	if firstErr != nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// RunSummary is the report of the last batch without its failure list.
type RunSummary struct {
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	DurationMs int64                      `json:"duration_ms"`
	Rows       int                        `json:"rows"`
	Converged  int                        `json:"converged"`
	Signals    int                        `json:"signals"`
	Degraded   int                        `json:"degraded"`
	Failures   map[models.FailureKind]int `json:"failures"`
}

func (h *OpsEchoHandler) LatestRun(c echo.Context) error {
	r := h.latest()
	if r == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no batch has completed yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, RunSummary{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Rows:       r.Rows,
		Converged:  r.Converged,
		Signals:    r.Signals,
		Degraded:   r.Degraded,
		Failures:   r.FailureCounts(),
	})
}

// FailuresRequest filters the failures of the last batch.
type FailuresRequest struct {
	Kind   string `query:"kind" validate:"omitempty,oneof=invalid_input convergence_failure insufficient_history degraded_estimate timeout internal"`
	Ticker string `query:"ticker" validate:"omitempty,max=32"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

func (h *OpsEchoHandler) LatestFailures(c echo.Context) error {
	req := &FailuresRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r := h.latest()
	if r == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no batch has completed yet"))
	}

	rows := make([]models.RowFailure, 0)
	var total int64
	for _, f := range r.Failures {
		if req.Kind != "" && string(f.Kind) != req.Kind {
			continue
		}
		if req.Ticker != "" && f.Ticker != req.Ticker {
			continue
		}
		total++
		if len(rows) < req.Limit {
			rows = append(rows, f)
		}
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *OpsEchoHandler) Scenarios(c echo.Context) error {
	names := analytics.ScenarioNames()
	out := make([]models.Scenario, 0, len(names))
	for _, name := range names {
		if sc, ok := analytics.NamedScenario(name); ok {
			out = append(out, sc)
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *OpsEchoHandler) latest() *models.BatchReport {
	if h.reports == nil {
		return nil
	}
	return h.reports.LastReport()
}
