package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"FinChart/internal/domain/models"
	"FinChart/internal/usecase"
	xhttp "FinChart/pkg/http"
	xlogger "FinChart/pkg/logger"
)

// HealthChecker is a dependency probed by /healthz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// SystemHandler serves health and bar ingestion.
type SystemHandler struct {
	logger   *xlogger.Logger
	ingestor *usecase.BarIngestor
	sessions *usecase.ChartSessions
	checks   map[string]HealthChecker
	timeout  time.Duration
}

var _ xhttp.Handler = (*SystemHandler)(nil)

func NewSystemHandler(logger *xlogger.Logger, ingestor *usecase.BarIngestor, sessions *usecase.ChartSessions, checks map[string]HealthChecker) *SystemHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SystemHandler{
		logger:   logger.Component("system_api"),
		ingestor: ingestor,
		sessions: sessions,
		checks:   checks,
		timeout:  2 * time.Second,
	}
}

func (h *SystemHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	if h.ingestor != nil {
		e.POST("/api/bars", h.IngestBars)
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// Health probes every dependency; any failure answers 503.
func (h *SystemHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	if h.sessions != nil {
		res.Sessions = h.sessions.Len()
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name].Health(ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("check", name), xlogger.Error(err))
			continue
		}
		res.Checks[name] = "ok"
	}

	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// IngestBars accepts pushed bars. With Kafka publishing enabled they are
// queued (202); otherwise they are stored and open charts refreshed (200).
func (h *SystemHandler) IngestBars(c echo.Context) error {
	req := &models.IngestBarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	n, err := h.ingestor.Ingest(c.Request().Context(), req.Bars)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidArgument) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("ingest bars failed", xlogger.Int("bars", len(req.Bars)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("bar ingestion failed").WithError(err))
	}

	res := models.IngestBarsResponse{Accepted: n, Backend: h.ingestor.Backend()}
	if res.Backend == "kafka" {
		return xhttp.AcceptedResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}
