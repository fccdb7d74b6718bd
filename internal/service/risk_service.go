package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
)

// RiskService scores transactions against AML/CTF monitoring rules and
// manages the review and regulator-reporting lifecycle of the records it
// produces.
type RiskService struct {
	store    RiskStore
	velocity VelocityStore
	queue    RegulatorQueue
	audit    *AuditService
	logger   *zap.Logger
	metrics  *metrics.Metrics

	thresholdAmount    decimal.Decimal
	structuringFloor   decimal.Decimal
	velocityWindow     time.Duration
	velocityMaxCount   int64
	velocityMaxSum     decimal.Decimal
	reviewThreshold    float64
	highRiskThreshold  float64
	reportingThreshold float64
	submitMaxRetries   int
	submitRetryBackoff time.Duration

	submissions chan uuid.UUID
	wg          sync.WaitGroup
	stopOnce    sync.Once
	stopped     chan struct{}
}

// NewRiskService builds the engine from configuration and starts the
// regulator submission worker.
func NewRiskService(
	cfg config.RiskConfig,
	store RiskStore,
	velocity VelocityStore,
	queue RegulatorQueue,
	audit *AuditService,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*RiskService, error) {
	threshold, err := decimal.NewFromString(cfg.ThresholdAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid risk threshold_amount %q: %w", cfg.ThresholdAmount, err)
	}
	maxSum, err := decimal.NewFromString(cfg.VelocityMaxSum)
	if err != nil {
		return nil, fmt.Errorf("invalid risk velocity_max_sum %q: %w", cfg.VelocityMaxSum, err)
	}
	if cfg.StructuringMarginPct <= 0 || cfg.StructuringMarginPct >= 1 {
		return nil, fmt.Errorf("risk structuring_margin_pct must be in (0,1), got %v", cfg.StructuringMarginPct)
	}
	margin := decimal.NewFromFloat(cfg.StructuringMarginPct)
	floor := threshold.Sub(threshold.Mul(margin))

	s := &RiskService{
		store:              store,
		velocity:           velocity,
		queue:              queue,
		audit:              audit,
		logger:             logger,
		metrics:            m,
		thresholdAmount:    threshold,
		structuringFloor:   floor,
		velocityWindow:     cfg.VelocityWindow,
		velocityMaxCount:   cfg.VelocityMaxCount,
		velocityMaxSum:     maxSum,
		reviewThreshold:    cfg.ReviewThreshold,
		highRiskThreshold:  cfg.HighRiskThreshold,
		reportingThreshold: cfg.ReportingThreshold,
		submitMaxRetries:   cfg.SubmitMaxRetries,
		submitRetryBackoff: cfg.SubmitRetryBackoff,
		submissions:        make(chan uuid.UUID, 256),
		stopped:            make(chan struct{}),
	}

	s.wg.Add(1)
	go s.submissionWorker()

	return s, nil
}

// Stop drains the submission worker. Safe to call more than once.
func (s *RiskService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		close(s.submissions)
	})
	s.wg.Wait()
}

// Evaluate scores one transaction, persists the resulting record, and
// enqueues a regulator submission when the score reaches the reporting
// threshold. Evaluation errors fail safe: the record is still persisted,
// flagged for review as SUSPICIOUS_ACTIVITY.
func (s *RiskService) Evaluate(ctx context.Context, tx *domain.Transaction, actor Actor) (*domain.RiskRecord, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &domain.RiskRecord{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		EvaluatedAt:   now,
		CreatedAt:     now,
	}

	signals, evalErr := s.runEvaluators(ctx, tx, now)
	if evalErr != nil {
		s.logger.Error("risk evaluation degraded, failing safe",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(evalErr),
		)
		s.applyFailSafe(rec, signals, evalErr)
	} else {
		s.combineRuleResults(rec, signals)
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, domain.PersistenceError("create risk record", err)
	}

	s.metrics.TransactionsScored.Inc()
	if rec.RequiresReview {
		s.metrics.ReviewsFlagged.Inc()
	}

	s.recordAudit(ctx, actor, domain.OperationEvaluate, rec.ID, nil, rec, true, "")

	if evalErr == nil && rec.RiskScore >= s.reportingThreshold {
		s.enqueueSubmission(rec.ID)
	}

	s.logger.Info("transaction scored",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("risk_record_id", rec.ID.String()),
		zap.Float64("risk_score", rec.RiskScore),
		zap.String("monitoring_type", string(rec.MonitoringType)),
		zap.Bool("requires_review", rec.RequiresReview),
	)

	return rec, nil
}

// runEvaluators executes the four monitoring rules. Every rule contributes a
// signal, zero-scored when nothing fired, so the record shows what almost
// fired. A window or store read failure aborts with the partial signals.
func (s *RiskService) runEvaluators(ctx context.Context, tx *domain.Transaction, now time.Time) ([]domain.RuleSignal, error) {
	signals := make([]domain.RuleSignal, 0, 4)

	signals = append(signals, s.evalThreshold(tx))

	window, err := s.velocity.Observe(ctx, tx.UserID, tx.Amount, now)
	if err != nil {
		return signals, fmt.Errorf("observe velocity window: %w", err)
	}
	signals = append(signals, s.evalVelocity(window))

	patternSignal, err := s.evalPattern(ctx, tx, now)
	if err != nil {
		return signals, fmt.Errorf("pattern lookback: %w", err)
	}
	signals = append(signals, patternSignal)

	signals = append(signals, s.evalSuspicious(tx, signals))

	return signals, nil
}

// evalThreshold flags transactions at or above the absolute reporting limit.
// Cash-equivalent transactions at the limit score maximally.
func (s *RiskService) evalThreshold(tx *domain.Transaction) domain.RuleSignal {
	sig := domain.RuleSignal{Type: domain.MonitoringThresholdExceeded}
	if tx.Amount.LessThan(s.thresholdAmount) {
		return sig
	}
	sig.Score = 0.9
	if tx.CashEquivalent {
		sig.Score = 1.0
	}
	sig.Reason = fmt.Sprintf("amount %s meets or exceeds the %s reporting threshold",
		tx.Amount.StringFixed(2), s.thresholdAmount.StringFixed(2))
	return sig
}

// evalVelocity compares the user's rolling window aggregate against the
// configured count and sum limits.
func (s *RiskService) evalVelocity(w *domain.VelocityWindow) domain.RuleSignal {
	sig := domain.RuleSignal{Type: domain.MonitoringVelocityCheck}

	countRatio := float64(w.Count) / float64(s.velocityMaxCount)
	sumRatio, _ := w.Sum.Div(s.velocityMaxSum).Float64()
	ratio := countRatio
	if sumRatio > ratio {
		ratio = sumRatio
	}
	if ratio < 1 {
		return sig
	}

	overshoot := ratio - 1
	if overshoot > 1 {
		overshoot = 1
	}
	sig.Score = domain.ClampScore(0.7 + 0.3*overshoot)
	sig.Reason = fmt.Sprintf("%d transactions totalling %s in the last %s exceed the velocity limits",
		w.Count, w.Sum.StringFixed(2), s.velocityWindow)
	return sig
}

// evalPattern detects structuring: repeated transactions sitting just below
// the reporting threshold inside the rolling window.
func (s *RiskService) evalPattern(ctx context.Context, tx *domain.Transaction, now time.Time) (domain.RuleSignal, error) {
	sig := domain.RuleSignal{Type: domain.MonitoringPatternDetection}

	if !s.inStructuringBand(tx.Amount) {
		return sig, nil
	}

	since := now.Add(-s.velocityWindow)
	prior, err := s.store.ListByUserSince(ctx, tx.UserID, since)
	if err != nil {
		return sig, err
	}

	inBand := 1 // the current transaction
	for _, p := range prior {
		if p.TransactionID != tx.ID && s.inStructuringBand(p.Amount) {
			inBand++
		}
	}
	if inBand < 2 {
		return sig, nil
	}

	sig.Score = domain.ClampScore(0.75 + 0.05*float64(inBand-2))
	sig.Reason = fmt.Sprintf("%d transactions just below the %s threshold within %s",
		inBand, s.thresholdAmount.StringFixed(2), s.velocityWindow)
	return sig, nil
}

func (s *RiskService) inStructuringBand(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(s.structuringFloor) && amount.LessThan(s.thresholdAmount)
}

// evalSuspicious is the composite rule: a high-risk category or counterparty
// profile corroborated by at least one other firing rule.
func (s *RiskService) evalSuspicious(tx *domain.Transaction, prior []domain.RuleSignal) domain.RuleSignal {
	sig := domain.RuleSignal{Type: domain.MonitoringSuspiciousActivity}

	var base float64
	var trait string
	switch tx.Category {
	case domain.CategoryCrypto:
		base, trait = 0.45, "crypto exchange counterparty"
	case domain.CategoryGambling:
		base, trait = 0.4, "gambling counterparty"
	case domain.CategoryInternational:
		base, trait = 0.3, "international transfer"
	default:
		if tx.CashEquivalent && tx.Amount.GreaterThanOrEqual(s.structuringFloor) {
			base, trait = 0.3, "large cash-equivalent transaction"
		}
	}
	if base == 0 {
		return sig
	}

	corroborated := false
	for _, p := range prior {
		if p.Score > 0 {
			corroborated = true
			break
		}
	}
	if !corroborated {
		return sig
	}

	sig.Score = domain.ClampScore(base + 0.35)
	sig.Reason = fmt.Sprintf("%s corroborated by other monitoring signals", trait)
	return sig
}

// combineRuleResults aggregates the signals onto the record. The aggregate is
// the maximum rule score plus a 0.1 corroboration bonus when two or more
// rules fired above the review threshold, clamped to [0,1]. Max keeps a
// single decisive rule interpretable against the fixed review bands; the
// bonus encodes that independent corroborating signals raise analyst
// priority. The monitoring type is the strongest signal's type.
func (s *RiskService) combineRuleResults(rec *domain.RiskRecord, signals []domain.RuleSignal) {
	best := signals[0]
	firing := 0
	for _, sig := range signals {
		if sig.Score > best.Score {
			best = sig
		}
		if sig.Score >= s.reviewThreshold {
			firing++
		}
	}

	score := best.Score
	if firing >= 2 {
		score += 0.1
	}

	rec.RiskScore = domain.ClampScore(score)
	rec.MonitoringType = best.Type
	rec.RequiresReview = rec.RiskScore >= s.reviewThreshold
	rec.RuleSignals = signals
}

// applyFailSafe shapes the record when evaluation itself failed: flagged for
// review, typed SUSPICIOUS_ACTIVITY, score raised to at least the review
// threshold. A monitoring gap must surface as work, not vanish.
func (s *RiskService) applyFailSafe(rec *domain.RiskRecord, partial []domain.RuleSignal, cause error) {
	score := s.reviewThreshold
	for _, sig := range partial {
		if sig.Score > score {
			score = sig.Score
		}
	}
	rec.RiskScore = domain.ClampScore(score)
	rec.MonitoringType = domain.MonitoringSuspiciousActivity
	rec.RequiresReview = true
	rec.RuleSignals = append(partial, domain.RuleSignal{
		Type:   domain.MonitoringSuspiciousActivity,
		Score:  rec.RiskScore,
		Reason: fmt.Sprintf("evaluation degraded: %v", cause),
	})
}

// MarkReviewed records the analyst's decision on a flagged record. The
// review timestamp is set once; reviewing an already reviewed record is a
// conflict.
func (s *RiskService) MarkReviewed(ctx context.Context, id, reviewer uuid.UUID, falsePositive bool, actor Actor) (*domain.RiskRecord, error) {
	if reviewer == uuid.Nil {
		return nil, domain.ValidationError("reviewer id is required")
	}

	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetReviewed(ctx, id, reviewer, falsePositive, time.Now().UTC()); err != nil {
		s.recordAudit(ctx, actor, domain.OperationReview, id, before, nil, false, err.Error())
		return nil, err
	}

	after, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, domain.OperationReview, id, before, after, true, "")
	return after, nil
}

// GetRecord returns one risk record.
func (s *RiskService) GetRecord(ctx context.Context, id uuid.UUID) (*domain.RiskRecord, error) {
	return s.store.GetByID(ctx, id)
}

// ListRecords returns filtered risk records.
func (s *RiskService) ListRecords(ctx context.Context, filter domain.RiskFilter) ([]*domain.RiskRecord, error) {
	return s.store.List(ctx, filter)
}

func (s *RiskService) enqueueSubmission(id uuid.UUID) {
	select {
	case <-s.stopped:
		s.logger.Warn("submission worker stopped, dropping enqueue",
			zap.String("risk_record_id", id.String()))
	case s.submissions <- id:
	default:
		// Queue full. The record stays flagged; a later reconciliation
		// sweep over unreported high-risk records picks it up.
		s.logger.Warn("regulator submission queue full",
			zap.String("risk_record_id", id.String()))
	}
}

// submissionWorker drains the queue, submitting each record with bounded
// retries. Submission outcomes never mutate the risk score.
func (s *RiskService) submissionWorker() {
	defer s.wg.Done()
	for id := range s.submissions {
		s.submitWithRetry(id)
	}
}

func (s *RiskService) submitWithRetry(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("regulator submission: load record failed",
			zap.String("risk_record_id", id.String()), zap.Error(err))
		s.metrics.RegulatorSubmissions.WithLabelValues("failed").Inc()
		return
	}
	if rec.ReportedToRegulator {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= s.submitMaxRetries; attempt++ {
		reference, err := s.queue.Submit(ctx, rec)
		if err == nil {
			if err := s.store.SetRegulatorReport(ctx, id, reference); err != nil {
				s.logger.Error("regulator submission: persist reference failed",
					zap.String("risk_record_id", id.String()), zap.Error(err))
				s.metrics.RegulatorSubmissions.WithLabelValues("failed").Inc()
				return
			}
			s.metrics.RegulatorSubmissions.WithLabelValues("submitted").Inc()
			s.logger.Info("risk record reported to regulator",
				zap.String("risk_record_id", id.String()),
				zap.String("report_reference", reference),
			)
			return
		}
		lastErr = err
		s.logger.Warn("regulator submission attempt failed",
			zap.String("risk_record_id", id.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < s.submitMaxRetries {
			select {
			case <-time.After(time.Duration(attempt) * s.submitRetryBackoff):
			case <-ctx.Done():
				s.metrics.RegulatorSubmissions.WithLabelValues("failed").Inc()
				return
			}
		}
	}

	s.metrics.RegulatorSubmissions.WithLabelValues("failed").Inc()
	s.logger.Error("regulator submission exhausted retries",
		zap.String("risk_record_id", id.String()),
		zap.Error(lastErr),
	)
}

func (s *RiskService) recordAudit(ctx context.Context, actor Actor, op domain.OperationType, resourceID uuid.UUID, previous, current interface{}, success bool, errMsg string) {
	entry := domain.NewAuditLogEntry(actor.UserID, op, domain.ResourceRiskRecord, resourceID.String())
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
