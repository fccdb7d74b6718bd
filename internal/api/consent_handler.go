package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

type ConsentHandler struct {
	consentService *service.ConsentService
}

func NewConsentHandler(consentService *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// RecordConsent handles POST /consents
func (h *ConsentHandler) RecordConsent(c echo.Context) error {
	var in service.RecordConsentInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid consent payload"})
	}

	rec, err := h.consentService.RecordConsent(c.Request().Context(), in, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type withdrawRequest struct {
	UserID      uuid.UUID          `json:"user_id"`
	ConsentType domain.ConsentType `json:"consent_type"`
	Reason      string             `json:"reason"`
}

// WithdrawConsent handles POST /consents/withdraw
func (h *ConsentHandler) WithdrawConsent(c echo.Context) error {
	var req withdrawRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid withdraw payload"})
	}

	rec, err := h.consentService.WithdrawConsent(c.Request().Context(), req.UserID, req.ConsentType, req.Reason, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ListConsents handles GET /consents/users/:user_id
func (h *ConsentHandler) ListConsents(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
	}

	records, err := h.consentService.ListConsents(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *ConsentHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.RecordConsent)
	g.POST("/withdraw", h.WithdrawConsent)
	g.GET("/users/:user_id", h.ListConsents)
}
