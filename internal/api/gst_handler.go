package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/service"
)

type GSTHandler struct {
	gstService *service.GSTService
}

func NewGSTHandler(gstService *service.GSTService) *GSTHandler {
	return &GSTHandler{gstService: gstService}
}

// ClassifyTransaction handles POST /gst/classify
func (h *GSTHandler) ClassifyTransaction(c echo.Context) error {
	var in service.ClassifyInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid classification payload"})
	}

	det, err := h.gstService.Classify(c.Request().Context(), in, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, det)
}

// GetDetail handles GET /gst/details/:id
func (h *GSTHandler) GetDetail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	det, err := h.gstService.GetDetail(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, det)
}

// MarkReportedInBAS handles POST /gst/details/:id/bas
func (h *GSTHandler) MarkReportedInBAS(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	det, err := h.gstService.MarkReportedInBAS(c.Request().Context(), id, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, det)
}

func (h *GSTHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/classify", h.ClassifyTransaction)
	g.GET("/details/:id", h.GetDetail)
	g.POST("/details/:id/bas", h.MarkReportedInBAS)
}
