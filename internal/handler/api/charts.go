package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"FinChart/internal/domain/models"
	"FinChart/internal/render"
	"FinChart/internal/service/ratelimit"
	"FinChart/internal/services/chart"
	"FinChart/internal/usecase"
	xhttp "FinChart/pkg/http"
	xlogger "FinChart/pkg/logger"
)

// ChartsHandler exposes chart sessions over REST and websocket.
type ChartsHandler struct {
	logger   *xlogger.Logger
	sessions *usecase.ChartSessions
	limiter  *ratelimit.Limiter
	stream   StreamConfig
}

var _ xhttp.Handler = (*ChartsHandler)(nil)

// NewChartsHandler builds the handler. limiter bounds PNG renders per
// session; a nil limiter disables the bound.
func NewChartsHandler(logger *xlogger.Logger, sessions *usecase.ChartSessions, limiter *ratelimit.Limiter, stream StreamConfig) *ChartsHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &ChartsHandler{logger: logger.Component("charts_api"), sessions: sessions, limiter: limiter, stream: stream.withDefaults()}
}

func (h *ChartsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/charts")
	g.POST("", h.Open)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Close)

	g.POST("/:id/resize", h.Resize)
	g.POST("/:id/granularity", h.Granularity)
	g.POST("/:id/chart-type", h.ChartType)
	g.POST("/:id/theme", h.Theme)
	g.POST("/:id/ma", h.MA)
	g.POST("/:id/indicator", h.Indicator)
	g.POST("/:id/volume", h.Volume)

	g.POST("/:id/zoom", h.Zoom)
	g.POST("/:id/pan", h.Pan)
	g.POST("/:id/fit", h.Fit)
	g.POST("/:id/crosshair", h.Crosshair)

	g.POST("/:id/tool", h.Tool)
	g.POST("/:id/pointer", h.Pointer)
	g.POST("/:id/undo", h.Undo)
	g.POST("/:id/clear", h.Clear)

	g.GET("/:id/render", h.Render)
	g.GET("/:id/stream", h.Stream)
}

func (h *ChartsHandler) Open(c echo.Context) error {
	req := &models.OpenChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.sessions.Open(c.Request().Context(), usecase.OpenParams{
		Symbol:      req.Symbol,
		Granularity: req.Granularity(),
		ChartType:   models.ChartType(req.ChartType),
		Theme:       models.Theme(req.Theme),
		Width:       req.Width,
		Height:      req.Height,
	})
	if err != nil {
		return h.fail(c, "open chart", err)
	}
	return xhttp.CreatedResponse(c, snap)
}

func (h *ChartsHandler) Get(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.sessions.Get(req.ID)
	if err != nil {
		return h.fail(c, "get chart", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *ChartsHandler) Close(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sessions.Close(req.ID, "client"); err != nil {
		return h.fail(c, "close chart", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *ChartsHandler) Resize(c echo.Context) error {
	req := &models.ResizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "resize")(h.sessions.Resize(req.ID, req.Width, req.Height))
}

// Granularity reloads the series, so the reply carries it.
func (h *ChartsHandler) Granularity(c echo.Context) error {
	req := &models.GranularityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, err := h.sessions.SetGranularity(c.Request().Context(), req.ID, req.Granularity()); err != nil {
		return h.fail(c, "set granularity", err)
	}
	return h.reply(c, "set granularity")(h.sessions.Get(req.ID))
}

func (h *ChartsHandler) ChartType(c echo.Context) error {
	req := &models.ChartTypeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "set chart type")(h.sessions.SetChartType(req.ID, models.ChartType(req.Type)))
}

func (h *ChartsHandler) Theme(c echo.Context) error {
	req := &models.ThemeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "set theme")(h.sessions.SetTheme(req.ID, models.Theme(req.Theme)))
}

func (h *ChartsHandler) MA(c echo.Context) error {
	req := &models.MAToggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "toggle ma")(h.sessions.SetMA(req.ID, *req.Index, *req.Visible))
}

func (h *ChartsHandler) Indicator(c echo.Context) error {
	req := &models.IndicatorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "toggle indicator")(h.sessions.SetIndicator(req.ID, models.IndicatorKind(req.Kind), *req.Visible))
}

func (h *ChartsHandler) Volume(c echo.Context) error {
	req := &models.VolumeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "toggle volume")(h.sessions.SetVolume(req.ID, *req.Visible))
}

func (h *ChartsHandler) Zoom(c echo.Context) error {
	req := &models.ZoomRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "zoom")(h.sessions.Zoom(req.ID, models.ZoomDirection(req.Direction), *req.Focal))
}

func (h *ChartsHandler) Pan(c echo.Context) error {
	req := &models.PanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "pan")(h.sessions.Pan(req.ID, req.Delta))
}

func (h *ChartsHandler) Fit(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "fit")(h.sessions.Fit(req.ID))
}

func (h *ChartsHandler) Crosshair(c echo.Context) error {
	req := &models.CrosshairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "crosshair")(h.sessions.Crosshair(req.ID, req.X, req.Y, req.Clear))
}

func (h *ChartsHandler) Tool(c echo.Context) error {
	req := &models.ToolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "select tool")(h.sessions.SelectTool(req.ID, models.ShapeKind(req.Tool)))
}

func (h *ChartsHandler) Pointer(c echo.Context) error {
	req := &models.PointerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "pointer")(h.sessions.Pointer(req.ID, usecase.PointerPhase(req.Phase), req.X, req.Y))
}

func (h *ChartsHandler) Undo(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "undo")(h.sessions.Undo(req.ID))
}

func (h *ChartsHandler) Clear(c echo.Context) error {
	req := &models.ChartIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.reply(c, "clear drawings")(h.sessions.ClearDrawings(req.ID))
}

// Render writes one pane as PNG. Renders are buffered so a failure still
// produces a JSON error instead of a truncated image.
func (h *ChartsHandler) Render(c echo.Context) error {
	req := &models.RenderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.limiter != nil && !h.limiter.Allow(req.ID) {
		c.Response().Header().Set("Retry-After", "1")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("render rate exceeded for chart").WithParam("id", req.ID))
	}

	var buf bytes.Buffer
	if err := h.sessions.Render(req.ID, chart.Pane(req.Pane), &buf); err != nil {
		return h.fail(c, "render chart", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// reply adapts a (Snapshot, error) pair to a response.
func (h *ChartsHandler) reply(c echo.Context, op string) func(usecase.Snapshot, error) error {
	return func(snap usecase.Snapshot, err error) error {
		if err != nil {
			return h.fail(c, op, err)
		}
		return xhttp.SuccessResponse(c, snap)
	}
}

func (h *ChartsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrSessionNotFound):
		return xhttp.NotFoundError("chart session not found")
	case errors.Is(err, usecase.ErrInvalidArgument):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, usecase.ErrTooManySessions):
		return xhttp.UnavailableError("chart session limit reached")
	case errors.Is(err, render.ErrEmpty):
		return xhttp.NotFoundError("pane has nothing to draw")
	case errors.Is(err, chart.ErrDisposed):
		return xhttp.NotFoundError("chart session disposed")
	default:
		return xhttp.InternalError("chart operation failed").WithError(err)
	}
}
