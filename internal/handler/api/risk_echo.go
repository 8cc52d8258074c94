package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	dsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/services/decision"
	"RiskPulse/internal/services/ratelimit"
	"RiskPulse/internal/usecase"
	xhttp "RiskPulse/pkg/http"
	xlogger "RiskPulse/pkg/logger"
)

// RiskEchoHandler exposes the decision and ingest boundary over HTTP.
type RiskEchoHandler struct {
	logger *xlogger.Logger
	engine *decision.Engine
	ingest *usecase.IngestProcessor
	store  drepo.FeatureStore
	scorer dsvc.Scorer
	rl     *ratelimit.Limiter
}

func NewRiskEchoHandler(
	logger *xlogger.Logger,
	engine *decision.Engine,
	ingest *usecase.IngestProcessor,
	store drepo.FeatureStore,
	scorer dsvc.Scorer,
) *RiskEchoHandler {
	return &RiskEchoHandler{
		logger: logger,
		engine: engine,
		ingest: ingest,
		store:  store,
		scorer: scorer,
		rl:     ratelimit.New(8192),
	}
}

func (h *RiskEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/events", h.IngestEvent)
	g.GET("/features/:user_id", h.Features)
	e.GET("/health", h.HealthCheck)
}

// Predict scores a user. Infrastructure trouble degrades the decision
// (fail-closed) inside the engine, so this only surfaces hard errors.
func (h *RiskEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":predict", 50, 25) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
	}

	d, err := h.engine.Predict(c.Request().Context(), req.UserID, req.Passthrough)
	if err != nil {
		h.logger.Error("predict failed", xlogger.String("user_id", req.UserID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, d)
}

// IngestEvent validates and publishes one transaction event.
func (h *RiskEchoHandler) IngestEvent(c echo.Context) error {
	req := &models.IngestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":events", 200, 100) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
	}

	e, err := h.ingest.Ingest(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("ingest failed", xlogger.String("event_id", req.EventID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, models.IngestResponse{
		EventID: e.EventID,
		Status:  "queued",
	})
}

// Features returns the raw stored feature record, a debugging aid.
func (h *RiskEchoHandler) Features(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return xhttp.BadRequestResponse(c, "user_id required")
	}

	rec, err := h.store.Get(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "no features for user")
		}
		h.logger.Error("feature read failed", xlogger.String("user_id", userID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rec.ToFields())
}

// HealthCheck reports the reachability of the store and the scorer.
func (h *RiskEchoHandler) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if err := h.store.Health(ctx); err != nil {
		status["store"] = err.Error()
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if err := h.scorer.Health(ctx); err != nil {
		status["scorer"] = err.Error()
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, code, status)
}
