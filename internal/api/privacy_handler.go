package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/service"
)

type PrivacyHandler struct {
	privacyService *service.PrivacyService
}

func NewPrivacyHandler(privacyService *service.PrivacyService) *PrivacyHandler {
	return &PrivacyHandler{privacyService: privacyService}
}

// CreateRequest handles POST /privacy/requests
func (h *PrivacyHandler) CreateRequest(c echo.Context) error {
	var in service.CreateRequestInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
	}

	req, err := h.privacyService.CreateRequest(c.Request().Context(), in, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}

// GetRequest handles GET /privacy/requests/:id
func (h *PrivacyHandler) GetRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	req, err := h.privacyService.GetRequest(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// ListRequests handles GET /privacy/requests/users/:user_id
func (h *PrivacyHandler) ListRequests(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
	}

	requests, err := h.privacyService.ListRequests(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, requests)
}

type processRequestBody struct {
	ProcessedBy     uuid.UUID `json:"processed_by"`
	Reject          bool      `json:"reject"`
	RejectionReason string    `json:"rejection_reason"`
}

// ProcessRequest handles POST /privacy/requests/:id/process
func (h *PrivacyHandler) ProcessRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var body processRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid process payload"})
	}

	req, err := h.privacyService.ProcessRequest(c.Request().Context(), id, body.ProcessedBy, service.ProcessDecision{
		Reject:          body.Reject,
		RejectionReason: body.RejectionReason,
	}, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *PrivacyHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/requests", h.CreateRequest)
	g.GET("/requests/:id", h.GetRequest)
	g.GET("/requests/users/:user_id", h.ListRequests)
	g.POST("/requests/:id/process", h.ProcessRequest)
}
