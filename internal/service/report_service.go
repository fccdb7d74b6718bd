package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
)

// ReportService aggregates point-in-time compliance reports. Generation is
// read-only over a single asOf snapshot; the one documented side effect in
// this package lives in the scheduled jobs, not here.
type ReportService struct {
	risks    RiskStore
	consents ConsentStore
	requests RequestStore
	gst      GSTStore
	auditLog AuditStore
	exports  ExportStore
	audit    *AuditService
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewReportService(
	risks RiskStore,
	consents ConsentStore,
	requests RequestStore,
	gst GSTStore,
	auditLog AuditStore,
	exports ExportStore,
	audit *AuditService,
	logger *zap.Logger,
	m *metrics.Metrics,
) *ReportService {
	return &ReportService{
		risks:    risks,
		consents: consents,
		requests: requests,
		gst:      gst,
		auditLog: auditLog,
		exports:  exports,
		audit:    audit,
		logger:   logger,
		metrics:  m,
	}
}

// Generate builds the report for the period with the requested sections.
// An empty section list means all sections. Every section reads against the
// same asOf timestamp, so identical underlying data yields identical section
// content regardless of when the report is generated.
func (s *ReportService) Generate(ctx context.Context, period domain.ReportPeriod, sections []domain.ReportSection, actor Actor) (*domain.ComplianceReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		sections = domain.AllSections
	}
	for _, sec := range sections {
		if !domain.ValidReportSection(sec) {
			return nil, domain.ValidationError("unknown report section %q", sec)
		}
	}

	now := time.Now().UTC()
	asOf := now
	if period.End.Before(asOf) {
		asOf = period.End
	}

	report := &domain.ComplianceReport{
		Period:      period,
		AsOf:        asOf,
		GeneratedAt: now,
		GeneratedBy: actor.UserID,
		ActionItems: []string{},
	}

	for _, sec := range sections {
		var err error
		switch sec {
		case domain.SectionAML:
			err = s.buildAML(ctx, report)
		case domain.SectionPrivacy:
			err = s.buildPrivacy(ctx, report)
		case domain.SectionAPRA:
			err = s.buildAPRA(ctx, report)
		case domain.SectionGST:
			err = s.buildGST(ctx, report)
		}
		if err != nil {
			return nil, fmt.Errorf("build %s section: %w", sec, err)
		}
	}

	s.metrics.ReportsGenerated.Inc()
	s.recordAudit(ctx, actor, report)
	s.logger.Info("compliance report generated",
		zap.String("period", report.Period.Key()),
		zap.Time("as_of", report.AsOf),
		zap.Int("action_items", len(report.ActionItems)),
	)
	return report, nil
}

func (s *ReportService) buildAML(ctx context.Context, r *domain.ComplianceReport) error {
	stats, err := s.risks.Stats(ctx, r.Period, r.AsOf)
	if err != nil {
		return err
	}
	r.Sections.AML = stats

	switch {
	case stats.AverageRiskScore >= 0.75:
		r.ExecutiveSummary.AMLRiskLevel = domain.StatusRiskHigh
	case stats.AverageRiskScore >= 0.5:
		r.ExecutiveSummary.AMLRiskLevel = domain.StatusRiskMedium
	default:
		r.ExecutiveSummary.AMLRiskLevel = domain.StatusRiskLow
	}

	if stats.PendingReview > 0 {
		r.ActionItems = append(r.ActionItems,
			fmt.Sprintf("Review %d pending AML alerts", stats.PendingReview))
	}
	return nil
}

func (s *ReportService) buildPrivacy(ctx context.Context, r *domain.ComplianceReport) error {
	consentStats, err := s.consents.Stats(ctx, r.Period, r.AsOf)
	if err != nil {
		return err
	}
	requestStats, err := s.requests.Stats(ctx, r.Period, r.AsOf)
	if err != nil {
		return err
	}
	r.Sections.Privacy = &domain.PrivacyStats{
		Consents: *consentStats,
		Requests: *requestStats,
	}

	if requestStats.Overdue > 0 {
		r.ExecutiveSummary.Privacy = domain.StatusIssues
		r.ActionItems = append(r.ActionItems,
			fmt.Sprintf("Process %d overdue data subject requests", requestStats.Overdue))
	} else {
		r.ExecutiveSummary.Privacy = domain.StatusCompliant
	}
	return nil
}

func (s *ReportService) buildAPRA(ctx context.Context, r *domain.ComplianceReport) error {
	stats, err := s.auditLog.Stats(ctx, r.Period, r.AsOf)
	if err != nil {
		return err
	}
	r.Sections.APRA = stats

	if stats.Failures > 0 {
		r.ExecutiveSummary.APRA = domain.StatusIssues
		r.ActionItems = append(r.ActionItems,
			fmt.Sprintf("Investigate %d failed audited operations", stats.Failures))
	} else {
		r.ExecutiveSummary.APRA = domain.StatusCompliant
	}
	return nil
}

func (s *ReportService) buildGST(ctx context.Context, r *domain.ComplianceReport) error {
	stats, err := s.gst.Stats(ctx, r.Period, r.AsOf)
	if err != nil {
		return err
	}
	r.Sections.GST = stats

	if stats.ValidationErrors > 0 {
		r.ExecutiveSummary.GST = domain.StatusIssues
		r.ActionItems = append(r.ActionItems,
			fmt.Sprintf("Reconcile %d GST validation discrepancies", stats.ValidationErrors))
	} else {
		r.ExecutiveSummary.GST = domain.StatusCompliant
	}
	return nil
}

// Archive stores the report JSON under a period-keyed object key. Re-running
// the same period overwrites the previous archive rather than duplicating it.
func (s *ReportService) Archive(ctx context.Context, report *domain.ComplianceReport) (string, error) {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := fmt.Sprintf("compliance-report_%s.json", report.Period.Key())
	url, err := s.exports.PutReport(ctx, key, payload)
	if err != nil {
		return "", domain.PersistenceError("archive report", err)
	}
	report.ArchiveURL = url
	return url, nil
}

func (s *ReportService) recordAudit(ctx context.Context, actor Actor, report *domain.ComplianceReport) {
	entry := domain.NewAuditLogEntry(actor.UserID, domain.OperationReportGenerate, domain.ResourceReport, report.Period.Key())
	entry.IPAddress = actor.IPAddress
	entry.UserAgent = actor.UserAgent
	if err := s.audit.SealSnapshots(entry, nil, report.ExecutiveSummary); err != nil {
		s.logger.Error("seal audit snapshots", zap.Error(err))
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("record audit entry", zap.Error(err))
	}
}
