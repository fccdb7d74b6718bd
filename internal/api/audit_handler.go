package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/repository/elasticsearch"
	"github.com/banking/compliance-engine/internal/service"
)

type AuditHandler struct {
	auditService *service.AuditService
	searchRepo   *elasticsearch.SearchRepository
}

func NewAuditHandler(auditService *service.AuditService, searchRepo *elasticsearch.SearchRepository) *AuditHandler {
	return &AuditHandler{auditService: auditService, searchRepo: searchRepo}
}

func parseAuditFilter(c echo.Context) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{Limit: 100}

	if v := c.QueryParam("actor_user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, domain.ValidationError("invalid actor_user_id")
		}
		filter.ActorUserID = &id
	}
	if v := c.QueryParam("operation_type"); v != "" {
		op := domain.OperationType(v)
		filter.OperationType = &op
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := domain.AuditResourceType(v)
		filter.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		filter.ResourceID = &v
	}
	if v := c.QueryParam("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, domain.ValidationError("invalid success")
		}
		filter.Success = &b
	}
	if v := c.QueryParam("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, domain.ValidationError("invalid start_time, want RFC3339")
		}
		filter.StartTime = &t
	}
	if v := c.QueryParam("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, domain.ValidationError("invalid end_time, want RFC3339")
		}
		filter.EndTime = &t
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	return filter, nil
}

// QueryEntries handles GET /audit/entries
func (h *AuditHandler) QueryEntries(c echo.Context) error {
	filter, err := parseAuditFilter(c)
	if err != nil {
		return errorJSON(c, err)
	}

	page, err := h.auditService.Query(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ExportCSV handles GET /audit/entries/export
func (h *AuditHandler) ExportCSV(c echo.Context) error {
	filter, err := parseAuditFilter(c)
	if err != nil {
		return errorJSON(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="audit-export.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	if _, err := h.auditService.ExportCSV(c.Request().Context(), filter, c.Response()); err != nil {
		return err
	}
	return nil
}

// SearchEntries handles GET /audit/search
func (h *AuditHandler) SearchEntries(c echo.Context) error {
	if h.searchRepo == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "search is not available"})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing query parameter 'q'"})
	}

	from, _ := strconv.Atoi(c.QueryParam("from"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size == 0 {
		size = 20
	}

	hits, total, err := h.searchRepo.Search(c.Request().Context(), query, from, size)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "search failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total": total,
		"hits":  hits,
	})
}

func (h *AuditHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/entries", h.QueryEntries)
	g.GET("/entries/export", h.ExportCSV)
	g.GET("/search", h.SearchEntries)
}
