package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

type RiskHandler struct {
	riskService *service.RiskService
}

func NewRiskHandler(riskService *service.RiskService) *RiskHandler {
	return &RiskHandler{riskService: riskService}
}

// EvaluateTransaction handles POST /risk/evaluate
func (h *RiskHandler) EvaluateTransaction(c echo.Context) error {
	var tx domain.Transaction
	if err := c.Bind(&tx); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid transaction payload"})
	}

	rec, err := h.riskService.Evaluate(c.Request().Context(), &tx, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// GetRecord handles GET /risk/records/:id
func (h *RiskHandler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	rec, err := h.riskService.GetRecord(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ListRecords handles GET /risk/records
func (h *RiskHandler) ListRecords(c echo.Context) error {
	filter := domain.RiskFilter{Limit: 100}

	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		}
		filter.UserID = &id
	}
	if v := c.QueryParam("monitoring_type"); v != "" {
		mt := domain.MonitoringType(v)
		if !domain.ValidMonitoringType(mt) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid monitoring_type"})
		}
		filter.MonitoringType = &mt
	}
	if v := c.QueryParam("requires_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid requires_review"})
		}
		filter.RequiresReview = &b
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	records, err := h.riskService.ListRecords(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

type reviewRequest struct {
	ReviewerID    uuid.UUID `json:"reviewer_id"`
	FalsePositive bool      `json:"false_positive"`
}

// ReviewRecord handles POST /risk/records/:id/review
func (h *RiskHandler) ReviewRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid review payload"})
	}

	rec, err := h.riskService.MarkReviewed(c.Request().Context(), id, req.ReviewerID, req.FalsePositive, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *RiskHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/evaluate", h.EvaluateTransaction)
	g.GET("/records", h.ListRecords)
	g.GET("/records/:id", h.GetRecord)
	g.POST("/records/:id/review", h.ReviewRecord)
}
