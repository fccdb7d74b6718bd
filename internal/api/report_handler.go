package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

type ReportHandler struct {
	reportService *service.ReportService
	jobs          *service.JobRunner
}

func NewReportHandler(reportService *service.ReportService, jobs *service.JobRunner) *ReportHandler {
	return &ReportHandler{reportService: reportService, jobs: jobs}
}

type generateRequest struct {
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
	Sections []domain.ReportSection `json:"sections"`
}

// GenerateReport handles POST /reports/generate
func (h *ReportHandler) GenerateReport(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid report payload"})
	}

	report, err := h.reportService.Generate(c.Request().Context(),
		domain.ReportPeriod{Start: req.Start, End: req.End}, req.Sections, actorFrom(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// RunConsentExpiry handles POST /jobs/consent-expiry. The external scheduler
// hits this endpoint on its cadence.
func (h *ReportHandler) RunConsentExpiry(c echo.Context) error {
	expired, err := h.jobs.RunConsentExpiry(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"expired": expired})
}

type monthlyReportRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunMonthlyReport handles POST /jobs/monthly-report.
func (h *ReportHandler) RunMonthlyReport(c echo.Context) error {
	var req monthlyReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job payload"})
	}

	report, err := h.jobs.RunMonthlyReport(c.Request().Context(),
		domain.ReportPeriod{Start: req.Start, End: req.End})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) RegisterRoutes(reports, jobs *echo.Group) {
	reports.POST("/generate", h.GenerateReport)
	jobs.POST("/consent-expiry", h.RunConsentExpiry)
	jobs.POST("/monthly-report", h.RunMonthlyReport)
}
