package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestType is the kind of data-subject request filed by a user.
type RequestType string

const (
	RequestAccess      RequestType = "ACCESS"
	RequestDeletion    RequestType = "DELETION"
	RequestPortability RequestType = "PORTABILITY"
	RequestCorrection  RequestType = "CORRECTION"
)

// ValidRequestType reports whether v names a known request type.
func ValidRequestType(v RequestType) bool {
	switch v {
	case RequestAccess, RequestDeletion, RequestPortability, RequestCorrection:
		return true
	}
	return false
}

// RequestStatus is the workflow state of a data-subject request.
// Transitions are monotonic: PENDING -> PROCESSING -> {COMPLETED, REJECTED}.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestProcessing RequestStatus = "PROCESSING"
	RequestCompleted  RequestStatus = "COMPLETED"
	RequestRejected   RequestStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestRejected
}

// ResponseSLADays is the statutory response window. The due date is fixed at
// filing time and never recomputed.
const ResponseSLADays = 30

// DetailKind names the shape of the typed details attached to a request.
type DetailKind string

const (
	DetailNone       DetailKind = "NONE"
	DetailCorrection DetailKind = "CORRECTION_FIELDS"
	DetailScope      DetailKind = "DATA_SCOPE"
	DetailFreeText   DetailKind = "FREE_TEXT"
)

// maxDetailExtensions bounds the extension map so details stay a typed
// variant rather than an unbounded blob.
const maxDetailExtensions = 16

// RequestDetails is the typed replacement for the free-form details field.
type RequestDetails struct {
	Kind       DetailKind        `json:"kind"`
	Note       string            `json:"note,omitempty"`
	Extensions map[string]string `json:"extensions,omitempty"`
}

// Validate enforces the detail variant's bounds.
func (d RequestDetails) Validate() error {
	switch d.Kind {
	case DetailNone, DetailCorrection, DetailScope, DetailFreeText:
	default:
		return ValidationError("unknown detail kind %q", d.Kind)
	}
	if len(d.Extensions) > maxDetailExtensions {
		return ValidationError("details carry %d extensions, limit is %d", len(d.Extensions), maxDetailExtensions)
	}
	return nil
}

// DataSubjectRequest tracks one privacy-law request against the statutory
// SLA. DueDate is immutable, always RequestDate + 30 days.
type DataSubjectRequest struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	RequestType        RequestType    `json:"request_type"`
	Status             RequestStatus  `json:"status"`
	Details            RequestDetails `json:"details"`
	VerificationMethod string         `json:"verification_method"`
	RequestDate        time.Time      `json:"request_date"`
	DueDate            time.Time      `json:"due_date"`
	ProcessedBy        *uuid.UUID     `json:"processed_by,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	ExportURL          *string        `json:"export_url,omitempty"`
	RejectionReason    *string        `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Overdue is a derived predicate, recomputed on every read and never stored.
func (r *DataSubjectRequest) Overdue(now time.Time) bool {
	return r.DueDate.Before(now) && !r.Status.IsTerminal()
}

// RequestStats is the privacy section input for one period.
type RequestStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByType   map[string]int64 `json:"by_type"`
	Overdue  int64            `json:"overdue"`
}
