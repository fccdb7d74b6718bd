package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonitoringType identifies which class of rule produced the strongest
// signal for a scored transaction.
type MonitoringType string

const (
	MonitoringThresholdExceeded  MonitoringType = "THRESHOLD_EXCEEDED"
	MonitoringVelocityCheck      MonitoringType = "VELOCITY_CHECK"
	MonitoringPatternDetection   MonitoringType = "PATTERN_DETECTION"
	MonitoringSuspiciousActivity MonitoringType = "SUSPICIOUS_ACTIVITY"
)

// ValidMonitoringType reports whether v names a known monitoring type.
func ValidMonitoringType(v MonitoringType) bool {
	switch v {
	case MonitoringThresholdExceeded, MonitoringVelocityCheck,
		MonitoringPatternDetection, MonitoringSuspiciousActivity:
		return true
	}
	return false
}

// RiskRecord is the scored outcome of evaluating one transaction. Created
// exactly once per evaluation; only ReviewedAt, ReportedToRegulator and
// ReportReference are ever updated afterwards.
type RiskRecord struct {
	ID                  uuid.UUID       `json:"id"`
	TransactionID       uuid.UUID       `json:"transaction_id"`
	UserID              uuid.UUID       `json:"user_id"`
	Amount              decimal.Decimal `json:"amount"`
	RiskScore           float64         `json:"risk_score"`
	MonitoringType      MonitoringType  `json:"monitoring_type"`
	RequiresReview      bool            `json:"requires_review"`
	ReviewedAt          *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy          *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReportedToRegulator bool            `json:"reported_to_regulator"`
	ReportReference     *string         `json:"report_reference,omitempty"`
	FalsePositive       bool            `json:"false_positive"`
	RuleSignals         []RuleSignal    `json:"rule_signals,omitempty"`
	EvaluatedAt         time.Time       `json:"evaluated_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RuleSignal is one evaluator's output, kept on the record as evidence for
// the reviewing analyst.
type RuleSignal struct {
	Type   MonitoringType `json:"type"`
	Score  float64        `json:"score"`
	Reason string         `json:"reason"`
}

// ClampScore forces a score into [0,1]. Every score stored on a RiskRecord
// passes through here.
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// VelocityWindow is the per-user rolling aggregate the velocity and pattern
// evaluators read. Count and Sum cover the configured window ending now.
type VelocityWindow struct {
	UserID      uuid.UUID       `json:"user_id"`
	Count       int64           `json:"count"`
	Sum         decimal.Decimal `json:"sum"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
}

// RiskFilter selects risk records for listing and report aggregation.
type RiskFilter struct {
	UserID         *uuid.UUID
	MonitoringType *MonitoringType
	RequiresReview *bool
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

// RiskStats is the AML section input computed by the store for one period.
type RiskStats struct {
	Total            int64            `json:"total"`
	ByMonitoringType map[string]int64 `json:"by_monitoring_type"`
	AverageRiskScore float64          `json:"average_risk_score"`
	PendingReview    int64            `json:"pending_review"`
	Reported         int64            `json:"reported"`
	FalsePositives   int64            `json:"false_positives"`
}
