package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReportSection names one block of a compliance report.
type ReportSection string

const (
	SectionAML     ReportSection = "AML"
	SectionPrivacy ReportSection = "PRIVACY"
	SectionAPRA    ReportSection = "APRA"
	SectionGST     ReportSection = "GST"
)

// AllSections is the default section set when the caller requests none.
var AllSections = []ReportSection{SectionAML, SectionPrivacy, SectionAPRA, SectionGST}

// ValidReportSection reports whether v names a known section.
func ValidReportSection(v ReportSection) bool {
	switch v {
	case SectionAML, SectionPrivacy, SectionAPRA, SectionGST:
		return true
	}
	return false
}

// ReportPeriod is the half-open interval [Start, End) a report covers.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects malformed periods before any aggregation work.
func (p ReportPeriod) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return ValidationError("report period start and end are required")
	}
	if !p.Start.Before(p.End) {
		return ValidationError("report period start %s must precede end %s",
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return nil
}

// Key renders the period as a stable archive key component, e.g.
// "2025-01-01_2025-02-01".
func (p ReportPeriod) Key() string {
	return p.Start.UTC().Format("2006-01-02") + "_" + p.End.UTC().Format("2006-01-02")
}

// ComplianceStatus is the per-domain verdict in the executive summary.
type ComplianceStatus string

const (
	StatusCompliant  ComplianceStatus = "COMPLIANT"
	StatusIssues     ComplianceStatus = "ISSUES"
	StatusRiskLow    ComplianceStatus = "LOW"
	StatusRiskMedium ComplianceStatus = "MEDIUM"
	StatusRiskHigh   ComplianceStatus = "HIGH"
)

// ExecutiveSummary maps each reported domain to its compliance status.
type ExecutiveSummary struct {
	AMLRiskLevel ComplianceStatus `json:"aml_risk_level,omitempty"`
	Privacy      ComplianceStatus `json:"privacy,omitempty"`
	APRA         ComplianceStatus `json:"apra,omitempty"`
	GST          ComplianceStatus `json:"gst,omitempty"`
}

// ReportSections carries the computed section bodies; absent sections are nil.
type ReportSections struct {
	AML     *RiskStats    `json:"aml,omitempty"`
	Privacy *PrivacyStats `json:"privacy,omitempty"`
	APRA    *AuditStats   `json:"apra,omitempty"`
	GST     *GSTStats     `json:"gst,omitempty"`
}

// PrivacyStats joins the consent and request views for the privacy section.
type PrivacyStats struct {
	Consents ConsentStats `json:"consents"`
	Requests RequestStats `json:"requests"`
}

// ComplianceReport is a point-in-time snapshot. It is never persisted as
// mutable state; regenerating over unchanged data yields identical sections.
type ComplianceReport struct {
	Period           ReportPeriod     `json:"period"`
	AsOf             time.Time        `json:"as_of"`
	Sections         ReportSections   `json:"sections"`
	ExecutiveSummary ExecutiveSummary `json:"executive_summary"`
	ActionItems      []string         `json:"action_items"`
	GeneratedAt      time.Time        `json:"generated_at"`
	GeneratedBy      uuid.UUID        `json:"generated_by"`
	ArchiveURL       string           `json:"archive_url,omitempty"`
}
