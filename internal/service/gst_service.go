package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
)

// treatmentByCategory is the default category rule table. Categories without
// an entry are taxable supplies.
var treatmentByCategory = map[domain.TransactionCategory]domain.GSTTreatment{
	domain.CategoryGroceries:     domain.TreatmentGSTFree,
	domain.CategoryMedical:       domain.TreatmentGSTFree,
	domain.CategoryEducation:     domain.TreatmentGSTFree,
	domain.CategoryExport:        domain.TreatmentGSTFree,
	domain.CategoryFinancial:     domain.TreatmentInputTaxed,
	domain.CategoryResidential:   domain.TreatmentInputTaxed,
	domain.CategoryInternational: domain.TreatmentOutOfScope,
}

// GSTService classifies transactions for tax treatment and validates their
// GST component.
type GSTService struct {
	store   GSTStore
	audit   *AuditService
	logger  *zap.Logger
	metrics *metrics.Metrics
	rate    decimal.Decimal
}

func NewGSTService(cfg config.GSTConfig, store GSTStore, audit *AuditService, logger *zap.Logger, m *metrics.Metrics) (*GSTService, error) {
	rate, err := decimal.NewFromString(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid gst rate %q: %w", cfg.Rate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("gst rate must be in [0,1], got %s", rate)
	}
	return &GSTService{store: store, audit: audit, logger: logger, metrics: m, rate: rate}, nil
}

// ClassifyInput carries one transaction for tax classification. GSTAmount is
// the component supplied by the posting system, validated here.
type ClassifyInput struct {
	TransactionID uuid.UUID                  `json:"transaction_id"`
	Category      domain.TransactionCategory `json:"category"`
	BaseAmount    decimal.Decimal            `json:"base_amount"`
	GSTAmount     decimal.Decimal            `json:"gst_amount"`
}

// Classify assigns a treatment from the category rule table and validates
// the supplied GST component against it. An invalid component does not
// block persistence; the detail carries the validation errors instead.
func (s *GSTService) Classify(ctx context.Context, in ClassifyInput, actor Actor) (*domain.GSTTransactionDetail, error) {
	if in.TransactionID == uuid.Nil {
		return nil, domain.ValidationError("transaction id is required")
	}
	if in.BaseAmount.IsNegative() {
		return nil, domain.ValidationError("base amount must not be negative")
	}

	treatment, ok := treatmentByCategory[in.Category]
	if !ok {
		treatment = domain.TreatmentTaxableSupply
	}

	validationErrors := domain.ValidateGST(treatment, in.BaseAmount, in.GSTAmount, s.rate)

	now := time.Now().UTC()
	det := &domain.GSTTransactionDetail{
		ID:               uuid.New(),
		TransactionID:    in.TransactionID,
		BaseAmount:       in.BaseAmount,
		GSTAmount:        in.GSTAmount,
		Treatment:        treatment,
		Validated:        len(validationErrors) == 0,
		ValidationErrors: validationErrors,
		ClassifiedAt:     now,
		CreatedAt:        now,
	}

	if err := s.store.Create(ctx, det); err != nil {
		return nil, domain.PersistenceError("create gst detail", err)
	}

	if !det.Validated {
		s.metrics.GSTValidationFailures.Inc()
		s.logger.Warn("gst validation failed",
			zap.String("transaction_id", in.TransactionID.String()),
			zap.Strings("errors", validationErrors),
		)
	}

	s.recordAudit(ctx, actor, domain.OperationGSTClassify, det.ID, nil, det, true, "")
	return det, nil
}

// MarkReportedInBAS flags the detail as included in a Business Activity
// Statement. The flag is one-way; flagging an already reported detail is a
// no-op.
func (s *GSTService) MarkReportedInBAS(ctx context.Context, id uuid.UUID, actor Actor) (*domain.GSTTransactionDetail, error) {
	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.ReportedInBAS {
		return before, nil
	}

	if err := s.store.MarkReportedInBAS(ctx, id, time.Now().UTC()); err != nil {
		s.recordAudit(ctx, actor, domain.OperationBASReport, id, before, nil, false, err.Error())
		return nil, err
	}

	after, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, domain.OperationBASReport, id, before, after, true, "")
	return after, nil
}

// GetDetail returns one classified detail.
func (s *GSTService) GetDetail(ctx context.Context, id uuid.UUID) (*domain.GSTTransactionDetail, error) {
	return s.store.GetByID(ctx, id)
}

func (s *GSTService) recordAudit(ctx context.Context, actor Actor, op domain.OperationType, resourceID uuid.UUID, previous, current interface{}, success bool, errMsg string) {
	entry := domain.NewAuditLogEntry(actor.UserID, op, domain.ResourceGSTDetail, resourceID.String())
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
