package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
)

// ConsentService manages the append-only consent lifecycle. History is never
// rewritten: a fresh grant is a new record, withdrawal and expiry only move a
// record into its terminal state.
type ConsentService struct {
	store   ConsentStore
	audit   *AuditService
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewConsentService(store ConsentStore, audit *AuditService, logger *zap.Logger, m *metrics.Metrics) *ConsentService {
	return &ConsentService{store: store, audit: audit, logger: logger, metrics: m}
}

// RecordConsentInput carries one consent grant.
type RecordConsentInput struct {
	UserID         uuid.UUID          `json:"user_id"`
	ConsentType    domain.ConsentType `json:"consent_type"`
	Purposes       []string           `json:"purposes"`
	DataCategories []string           `json:"data_categories"`
	ThirdParties   []string           `json:"third_parties,omitempty"`
	ExpiryDays     int                `json:"expiry_days,omitempty"`
}

// RecordConsent appends a new GRANTED record. An earlier grant of the same
// type is left untouched; the newest GRANTED record is the operative one.
func (s *ConsentService) RecordConsent(ctx context.Context, in RecordConsentInput, actor Actor) (*domain.ConsentRecord, error) {
	if in.UserID == uuid.Nil {
		return nil, domain.ValidationError("user id is required")
	}
	if !domain.ValidConsentType(in.ConsentType) {
		return nil, domain.ValidationError("unknown consent type %q", in.ConsentType)
	}
	if len(in.Purposes) == 0 {
		return nil, domain.ValidationError("at least one purpose is required")
	}
	if in.ExpiryDays < 0 {
		return nil, domain.ValidationError("expiry days must not be negative")
	}

	now := time.Now().UTC()
	rec := &domain.ConsentRecord{
		ID:             uuid.New(),
		UserID:         in.UserID,
		ConsentType:    in.ConsentType,
		Purposes:       in.Purposes,
		DataCategories: in.DataCategories,
		ThirdParties:   in.ThirdParties,
		Status:         domain.ConsentGranted,
		GrantedAt:      now,
		IPAddress:      actor.IPAddress,
		CreatedAt:      now,
	}
	if in.ExpiryDays > 0 {
		expires := now.AddDate(0, 0, in.ExpiryDays)
		rec.ExpiresAt = &expires
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, domain.PersistenceError("create consent record", err)
	}

	s.recordAudit(ctx, actor, domain.OperationConsentGrant, rec.ID, nil, rec, true, "")
	s.logger.Info("consent granted",
		zap.String("consent_id", rec.ID.String()),
		zap.String("user_id", rec.UserID.String()),
		zap.String("consent_type", string(rec.ConsentType)),
	)
	return rec, nil
}

// WithdrawConsent moves the user's latest GRANTED record of the type to
// WITHDRAWN. No active grant is a conflict; a concurrent withdraw loses the
// conditional update and also reports a conflict.
func (s *ConsentService) WithdrawConsent(ctx context.Context, userID uuid.UUID, ctype domain.ConsentType, reason string, actor Actor) (*domain.ConsentRecord, error) {
	if userID == uuid.Nil {
		return nil, domain.ValidationError("user id is required")
	}
	if !domain.ValidConsentType(ctype) {
		return nil, domain.ValidationError("unknown consent type %q", ctype)
	}

	current, err := s.store.LatestGranted(ctx, userID, ctype)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ConflictError("no active %s consent to withdraw for user %s", ctype, userID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.store.Transition(ctx, current.ID, domain.ConsentGranted, domain.ConsentWithdrawn, now, reasonPtr); err != nil {
		s.recordAudit(ctx, actor, domain.OperationConsentWithdraw, current.ID, current, nil, false, err.Error())
		return nil, err
	}

	after, err := s.store.GetByID(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, domain.OperationConsentWithdraw, current.ID, current, after, true, "")
	s.logger.Info("consent withdrawn",
		zap.String("consent_id", current.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("consent_type", string(ctype)),
	)
	return after, nil
}

// ExpireOldConsents transitions every GRANTED record whose expiry has passed
// to EXPIRED and returns how many moved. Running it twice is harmless; the
// second pass finds nothing due.
func (s *ConsentService) ExpireOldConsents(ctx context.Context, actor Actor) (int64, error) {
	now := time.Now().UTC()
	expired, err := s.store.ExpireDue(ctx, now)
	if err != nil {
		return 0, domain.PersistenceError("expire due consents", err)
	}

	if expired > 0 {
		s.metrics.ConsentsExpired.Add(float64(expired))
		s.recordAudit(ctx, actor, domain.OperationConsentExpire, uuid.Nil, nil,
			map[string]int64{"expired_count": expired}, true, "")
		s.logger.Info("consents expired", zap.Int64("count", expired))
	}
	return expired, nil
}

// ListConsents returns the user's full consent history, newest first.
func (s *ConsentService) ListConsents(ctx context.Context, userID uuid.UUID) ([]*domain.ConsentRecord, error) {
	if userID == uuid.Nil {
		return nil, domain.ValidationError("user id is required")
	}
	return s.store.ListByUser(ctx, userID)
}

// HasActiveConsent reports whether the user currently holds an active grant
// of the type.
func (s *ConsentService) HasActiveConsent(ctx context.Context, userID uuid.UUID, ctype domain.ConsentType) (bool, error) {
	rec, err := s.store.LatestGranted(ctx, userID, ctype)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return rec.IsActive(time.Now().UTC()), nil
}

func (s *ConsentService) recordAudit(ctx context.Context, actor Actor, op domain.OperationType, resourceID uuid.UUID, previous, current interface{}, success bool, errMsg string) {
	rid := resourceID.String()
	if resourceID == uuid.Nil {
		rid = "batch"
	}
	entry := domain.NewAuditLogEntry(actor.UserID, op, domain.ResourceConsent, rid)
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
