package api

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

// errorJSON maps domain error kinds onto HTTP statuses.
func errorJSON(c echo.Context, err error) error {
	switch {
	case domain.IsValidation(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.IsNotFound(err):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.IsConflict(err):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// actorFrom extracts the acting identity from the request: the JWT subject
// when present, plus connection metadata.
func actorFrom(c echo.Context) service.Actor {
	actor := service.Actor{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return actor
	}
	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return actor
	}
	if sub, ok := (*claims)["sub"].(string); ok {
		if id, err := uuid.Parse(sub); err == nil {
			actor.UserID = id
		}
	}
	return actor
}
