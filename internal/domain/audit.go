package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType classifies the audited operation.
type OperationType string

const (
	OperationEvaluate        OperationType = "RISK_EVALUATE"
	OperationReview          OperationType = "RISK_REVIEW"
	OperationRegulatorFile   OperationType = "REGULATOR_FILE"
	OperationConsentGrant    OperationType = "CONSENT_GRANT"
	OperationConsentWithdraw OperationType = "CONSENT_WITHDRAW"
	OperationConsentExpire   OperationType = "CONSENT_EXPIRE"
	OperationRequestCreate   OperationType = "REQUEST_CREATE"
	OperationRequestProcess  OperationType = "REQUEST_PROCESS"
	OperationGSTClassify     OperationType = "GST_CLASSIFY"
	OperationBASReport       OperationType = "BAS_REPORT"
	OperationReportGenerate  OperationType = "REPORT_GENERATE"
	OperationExport          OperationType = "EXPORT"
	OperationQuery           OperationType = "QUERY"
)

// AuditResourceType names the entity an audit entry is about.
type AuditResourceType string

const (
	ResourceRiskRecord AuditResourceType = "RISK_RECORD"
	ResourceConsent    AuditResourceType = "CONSENT"
	ResourceRequest    AuditResourceType = "DATA_SUBJECT_REQUEST"
	ResourceGSTDetail  AuditResourceType = "GST_DETAIL"
	ResourceReport     AuditResourceType = "COMPLIANCE_REPORT"
	ResourceAuditLog   AuditResourceType = "AUDIT_LOG"
)

// AuditLogEntry is one immutable line of compliance evidence. Once persisted
// it is never updated or deleted.
type AuditLogEntry struct {
	ID            uuid.UUID         `json:"id"`
	ActorUserID   uuid.UUID         `json:"actor_user_id"`
	OperationType OperationType     `json:"operation_type"`
	ResourceType  AuditResourceType `json:"resource_type"`
	ResourceID    string            `json:"resource_id"`
	IPAddress     string            `json:"ip_address"`
	UserAgent     string            `json:"user_agent,omitempty"`
	PreviousData  []byte            `json:"-"` // sealed snapshot before the change
	CurrentData   []byte            `json:"-"` // sealed snapshot after the change
	Success       bool              `json:"success"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	Signature     string            `json:"signature"`
	KeyVersion    int               `json:"-"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewAuditLogEntry builds an entry with generated id and timestamp. The
// recorder fills Signature before persisting.
func NewAuditLogEntry(actor uuid.UUID, op OperationType, resource AuditResourceType, resourceID string) *AuditLogEntry {
	return &AuditLogEntry{
		ID:            uuid.New(),
		ActorUserID:   actor,
		OperationType: op,
		ResourceType:  resource,
		ResourceID:    resourceID,
		Success:       true,
		Timestamp:     time.Now().UTC(),
	}
}

// AuditFilter selects audit entries for queries and CSV export.
type AuditFilter struct {
	ActorUserID   *uuid.UUID
	OperationType *OperationType
	ResourceType  *AuditResourceType
	ResourceID    *string
	Success       *bool
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int
	Offset        int
}

// AuditPage is one page of query results.
type AuditPage struct {
	Entries    []*AuditLogEntry `json:"entries"`
	TotalCount int64            `json:"total_count"`
	PageSize   int              `json:"page_size"`
	HasMore    bool             `json:"has_more"`
}

// AuditStats is the APRA section input for one period.
type AuditStats struct {
	Total       int64            `json:"total"`
	Failures    int64            `json:"failures"`
	ByOperation map[string]int64 `json:"by_operation"`
}
