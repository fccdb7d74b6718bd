package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
)

func cashTransaction(userID uuid.UUID, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "AUD",
		Category:       domain.CategoryGeneral,
		Counterparty:   "ACME Pty Ltd",
		CashEquivalent: true,
		OccurredAt:     time.Now().UTC(),
	}
}

func cardTransaction(userID uuid.UUID, amount string) *domain.Transaction {
	tx := cashTransaction(userID, amount)
	tx.CashEquivalent = false
	return tx
}

func TestEvaluateThresholdExceeded(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	rec, err := e.risk.Evaluate(context.Background(), cashTransaction(uuid.New(), "10000"), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.MonitoringThresholdExceeded, rec.MonitoringType)
	assert.Equal(t, 1.0, rec.RiskScore)
	assert.True(t, rec.RequiresReview)

	stored, err := e.risks.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RiskScore, stored.RiskScore)
}

func TestEvaluateCleanTransaction(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	rec, err := e.risk.Evaluate(context.Background(), cardTransaction(uuid.New(), "250.00"), testActor())
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.RiskScore)
	assert.False(t, rec.RequiresReview)
	assert.Len(t, rec.RuleSignals, 4)
}

func TestEvaluateStructuringPattern(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	first, err := e.risk.Evaluate(context.Background(), cardTransaction(userID, "9800"), testActor())
	require.NoError(t, err)
	assert.False(t, first.RequiresReview)

	second, err := e.risk.Evaluate(context.Background(), cardTransaction(userID, "9700"), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.MonitoringPatternDetection, second.MonitoringType)
	assert.True(t, second.RequiresReview)
	assert.GreaterOrEqual(t, second.RiskScore, 0.5)
}

func TestEvaluateVelocityBreach(t *testing.T) {
	cfg := testRiskConfig()
	cfg.VelocityMaxCount = 3
	e := newEnv(t, cfg)
	userID := uuid.New()

	var rec *domain.RiskRecord
	var err error
	for i := 0; i < 4; i++ {
		rec, err = e.risk.Evaluate(context.Background(), cardTransaction(userID, "50"), testActor())
		require.NoError(t, err)
	}

	assert.Equal(t, domain.MonitoringVelocityCheck, rec.MonitoringType)
	assert.True(t, rec.RequiresReview)
}

func TestEvaluateFailsSafeOnWindowError(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	e.velocity.FailObserve = errors.New("redis unavailable")

	rec, err := e.risk.Evaluate(context.Background(), cardTransaction(uuid.New(), "100"), testActor())
	require.NoError(t, err)

	assert.True(t, rec.RequiresReview)
	assert.Equal(t, domain.MonitoringSuspiciousActivity, rec.MonitoringType)
	assert.GreaterOrEqual(t, rec.RiskScore, 0.5)

	// The degraded record is persisted, not dropped.
	stored, err := e.risks.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.RequiresReview)
}

func TestEvaluateScoreClamped(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	// Cash at the threshold plus corroborating signals pushes the raw sum
	// past 1.0; the stored score must stay clamped.
	rec, err := e.risk.Evaluate(context.Background(), cashTransaction(uuid.New(), "25000"), testActor())
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.RiskScore, 1.0)
}

func TestEvaluateRejectsInvalidTransaction(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	tx := cardTransaction(uuid.New(), "100")
	tx.UserID = uuid.Nil
	_, err := e.risk.Evaluate(context.Background(), tx, testActor())
	assert.True(t, domain.IsValidation(err))
}

func TestRegulatorSubmissionAsync(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	rec, err := e.risk.Evaluate(context.Background(), cashTransaction(uuid.New(), "10000"), testActor())
	require.NoError(t, err)
	require.GreaterOrEqual(t, rec.RiskScore, 0.9)

	// Evaluation returned before the submission completed; the worker
	// catches up asynchronously.
	require.Eventually(t, func() bool {
		stored, err := e.risks.GetByID(context.Background(), rec.ID)
		return err == nil && stored.ReportedToRegulator
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := e.risks.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReportReference)
	assert.Contains(t, *stored.ReportReference, "AUSTRAC-")
}

func TestRegulatorSubmissionRetriesWithoutMutatingScore(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	e.queue.FailTimes = 2

	rec, err := e.risk.Evaluate(context.Background(), cashTransaction(uuid.New(), "10000"), testActor())
	require.NoError(t, err)
	originalScore := rec.RiskScore

	require.Eventually(t, func() bool {
		stored, err := e.risks.GetByID(context.Background(), rec.ID)
		return err == nil && stored.ReportedToRegulator
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, e.queue.Attempts())

	stored, err := e.risks.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, originalScore, stored.RiskScore)
}

func TestMarkReviewedOnce(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	reviewer := uuid.New()

	rec, err := e.risk.Evaluate(context.Background(), cashTransaction(uuid.New(), "10000"), testActor())
	require.NoError(t, err)

	reviewed, err := e.risk.MarkReviewed(context.Background(), rec.ID, reviewer, true, testActor())
	require.NoError(t, err)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.Equal(t, reviewer, *reviewed.ReviewedBy)
	assert.True(t, reviewed.FalsePositive)

	_, err = e.risk.MarkReviewed(context.Background(), rec.ID, uuid.New(), false, testActor())
	assert.True(t, domain.IsConflict(err))
}

func TestEvaluateWritesAuditEntry(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	_, err := e.risk.Evaluate(context.Background(), cardTransaction(uuid.New(), "100"), testActor())
	require.NoError(t, err)

	op := domain.OperationEvaluate
	page, err := e.audit.Query(context.Background(), domain.AuditFilter{OperationType: &op})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount)
}
