package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banking/compliance-engine/internal/domain"
)

// Actor identifies who is performing an operation. It is supplied by the
// calling request layer together with connection metadata.
type Actor struct {
	UserID    uuid.UUID
	IPAddress string
	UserAgent string
}

// RiskStore persists risk records. Create happens exactly once per
// evaluation; the narrow setters below are the only mutations.
type RiskStore interface {
	Create(ctx context.Context, rec *domain.RiskRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RiskRecord, error)
	List(ctx context.Context, filter domain.RiskFilter) ([]*domain.RiskRecord, error)
	// ListByUserSince returns the user's records with EvaluatedAt >= since,
	// newest first. The pattern evaluator reads these.
	ListByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.RiskRecord, error)
	// SetReviewed sets ReviewedAt/ReviewedBy once; a second call is a conflict.
	SetReviewed(ctx context.Context, id, reviewer uuid.UUID, falsePositive bool, at time.Time) error
	// SetRegulatorReport marks the record as filed with the given reference.
	SetRegulatorReport(ctx context.Context, id uuid.UUID, reference string) error
	Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RiskStats, error)
}

// VelocityStore maintains the per-user rolling window aggregate. Observe
// must be atomic: two concurrent transactions for the same user must both
// see the other reflected in at least one of the returned windows.
type VelocityStore interface {
	Observe(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, at time.Time) (*domain.VelocityWindow, error)
}

// RegulatorQueue hands a high-risk record to the external submission
// channel and returns the regulator's reference for it.
type RegulatorQueue interface {
	Submit(ctx context.Context, rec *domain.RiskRecord) (reference string, err error)
}

// ConsentStore persists the append-only consent history.
type ConsentStore interface {
	Create(ctx context.Context, rec *domain.ConsentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ConsentRecord, error)
	// LatestGranted returns the newest GRANTED record of the type for the
	// user, or a NotFound error.
	LatestGranted(ctx context.Context, userID uuid.UUID, ctype domain.ConsentType) (*domain.ConsentRecord, error)
	// Transition moves a record from to the target status only when its
	// current status equals from; otherwise it reports a conflict.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.ConsentStatus, at time.Time, reason *string) error
	// ExpireDue transitions every GRANTED record with expiresAt < now to
	// EXPIRED and returns the number transitioned. Idempotent.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConsentRecord, error)
	Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.ConsentStats, error)
}

// RequestStore persists data-subject requests with CAS transitions.
type RequestStore interface {
	Create(ctx context.Context, req *domain.DataSubjectRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DataSubjectRequest, error)
	// BeginProcessing moves PENDING or PROCESSING to PROCESSING; a terminal
	// request is a conflict.
	BeginProcessing(ctx context.Context, id uuid.UUID) error
	// Finalize moves PROCESSING to the terminal status; exactly one of two
	// racing calls succeeds.
	Finalize(ctx context.Context, id uuid.UUID, to domain.RequestStatus, processedBy uuid.UUID, at time.Time, exportURL, rejectionReason *string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataSubjectRequest, error)
	Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RequestStats, error)
}

// GSTStore persists GST transaction details.
type GSTStore interface {
	Create(ctx context.Context, det *domain.GSTTransactionDetail) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GSTTransactionDetail, error)
	// MarkReportedInBAS flips the flag once; calling it on an already
	// flagged record is a no-op, not an error.
	MarkReportedInBAS(ctx context.Context, id uuid.UUID, at time.Time) error
	Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.GSTStats, error)
}

// AuditStore is the append-only evidence ledger. There are no update or
// delete operations, deliberately.
type AuditStore interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
	Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.AuditStats, error)
}

// SearchIndexer indexes audit entries for admin search. Best effort; the
// ledger write is the source of truth.
type SearchIndexer interface {
	Index(ctx context.Context, entry *domain.AuditLogEntry) error
}

// OperationalAlert is an escalation raised when evidence recording fails.
type OperationalAlert struct {
	Kind     string    `json:"kind"`
	Detail   string    `json:"detail"`
	Resource string    `json:"resource"`
	RaisedAt time.Time `json:"raised_at"`
}

// AlertPublisher surfaces operational alerts to the outside world.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert OperationalAlert) error
}

// ExportStore materializes export artifacts and archived reports, returning
// the URL collaborators use to reach them.
type ExportStore interface {
	PutExport(ctx context.Context, requestID uuid.UUID, payload []byte) (string, error)
	PutReport(ctx context.Context, key string, payload []byte) (string, error)
}
