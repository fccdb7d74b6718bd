package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/crypto"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
	"github.com/banking/compliance-engine/internal/repository/memory"
	"github.com/banking/compliance-engine/internal/repository/postgres"
	redisrepo "github.com/banking/compliance-engine/internal/repository/redis"
	"github.com/banking/compliance-engine/internal/service"
)

// TestComplianceFlow requires the Docker Compose environment running.
func TestComplianceFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// 1. Setup
	cfg, err := config.Load()
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	signer, err := crypto.NewEvidenceSigner(
		cfg.Encryption.KeysBase64,
		cfg.Encryption.CurrentKeyVersion,
		cfg.Encryption.HMACSecret,
	)
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	require.NoError(t, err)
	defer pool.Close()

	velocity, err := redisrepo.NewVelocityStore(cfg.Redis, cfg.Risk.VelocityWindow)
	if err != nil {
		t.Logf("Redis not available, falling back to in-memory window: %v", err)
	}

	m := metrics.NewWith(prometheus.NewRegistry())
	alerts := memory.NewAlertSink()
	queue := memory.NewRegulatorQueue()

	auditService := service.NewAuditService(
		postgres.NewAuditRepository(pool), nil, alerts, signer, logger, m,
		cfg.Audit.WriteMaxRetries, cfg.Audit.WriteRetryBackoff,
	)

	var window service.VelocityStore
	if velocity != nil {
		window = velocity
	} else {
		window = memory.NewVelocityStore(cfg.Risk.VelocityWindow)
	}
	riskService, err := service.NewRiskService(
		cfg.Risk, postgres.NewRiskRepository(pool), window, queue, auditService, logger, m,
	)
	require.NoError(t, err)
	defer riskService.Stop()

	actor := service.Actor{UserID: uuid.New(), IPAddress: "127.0.0.1"}

	// 2. Execution
	userID := uuid.New()
	tx := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         decimal.RequireFromString("12000"),
		Currency:       "AUD",
		Category:       domain.CategoryGeneral,
		Counterparty:   "ACME Pty Ltd",
		CashEquivalent: true,
		OccurredAt:     time.Now().UTC(),
	}
	rec, err := riskService.Evaluate(ctx, tx, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.MonitoringThresholdExceeded, rec.MonitoringType)
	assert.True(t, rec.RequiresReview)

	// 3. Verification - persistence and signature
	op := domain.OperationEvaluate
	page, err := auditService.Query(ctx, domain.AuditFilter{
		ActorUserID:   &actor.UserID,
		OperationType: &op,
		Limit:         1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.Entries)

	entry := page.Entries[0]
	assert.Equal(t, rec.ID.String(), entry.ResourceID)
	assert.NotEmpty(t, entry.Signature)

	valid := signer.VerifyEntry(
		entry.ID.String(),
		entry.ActorUserID.String(),
		string(entry.OperationType),
		string(entry.ResourceType),
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Success,
		entry.Signature,
	)
	assert.True(t, valid, "audit signature must verify")

	// 4. Verification - regulator submission drained asynchronously
	require.Eventually(t, func() bool {
		stored, err := postgres.NewRiskRepository(pool).GetByID(ctx, rec.ID)
		return err == nil && stored.ReportedToRegulator
	}, 10*time.Second, 200*time.Millisecond)

	t.Log("Compliance flow integration test passed")
}
