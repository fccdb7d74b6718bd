package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/crypto"
	"github.com/banking/compliance-engine/internal/metrics"
	"github.com/banking/compliance-engine/internal/repository/memory"
	"github.com/banking/compliance-engine/internal/service"
)

const (
	testKeyBase64    = "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWE="
	testSecretBase64 = "c2VjcmV0LXNpZ25pbmcta2V5"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		ThresholdAmount:      "10000",
		StructuringMarginPct: 0.10,
		VelocityWindow:       24 * time.Hour,
		VelocityMaxCount:     20,
		VelocityMaxSum:       "50000",
		ReviewThreshold:      0.5,
		HighRiskThreshold:    0.75,
		ReportingThreshold:   0.9,
		SubmitMaxRetries:     3,
		SubmitRetryBackoff:   5 * time.Millisecond,
	}
}

// env wires every service against in-memory stores.
type env struct {
	risks    *memory.RiskStore
	velocity *memory.VelocityStore
	queue    *memory.RegulatorQueue
	consents *memory.ConsentStore
	requests *memory.RequestStore
	gstStore *memory.GSTStore
	auditLog *memory.AuditStore
	exports  *memory.ExportStore
	alerts   *memory.AlertSink
	signer   *crypto.EvidenceSigner
	metrics  *metrics.Metrics
	audit    *service.AuditService
	risk     *service.RiskService
	consent  *service.ConsentService
	privacy  *service.PrivacyService
	gst      *service.GSTService
	reports  *service.ReportService
	jobs     *service.JobRunner
}

func newEnv(t *testing.T, riskCfg config.RiskConfig) *env {
	t.Helper()

	signer, err := crypto.NewEvidenceSigner([]string{testKeyBase64}, 1, testSecretBase64)
	require.NoError(t, err)

	logger := zap.NewNop()
	m := metrics.NewWith(prometheus.NewRegistry())

	e := &env{
		risks:    memory.NewRiskStore(),
		velocity: memory.NewVelocityStore(riskCfg.VelocityWindow),
		queue:    memory.NewRegulatorQueue(),
		consents: memory.NewConsentStore(),
		requests: memory.NewRequestStore(),
		gstStore: memory.NewGSTStore(),
		auditLog: memory.NewAuditStore(),
		exports:  memory.NewExportStore(),
		alerts:   memory.NewAlertSink(),
		signer:   signer,
		metrics:  m,
	}

	e.audit = service.NewAuditService(e.auditLog, nil, e.alerts, signer, logger, m, 3, time.Millisecond)

	e.risk, err = service.NewRiskService(riskCfg, e.risks, e.velocity, e.queue, e.audit, logger, m)
	require.NoError(t, err)
	t.Cleanup(e.risk.Stop)

	e.consent = service.NewConsentService(e.consents, e.audit, logger, m)
	e.privacy = service.NewPrivacyService(e.requests, e.exports, e.consent, e.audit, logger)

	e.gst, err = service.NewGSTService(config.GSTConfig{Rate: "0.10"}, e.gstStore, e.audit, logger, m)
	require.NoError(t, err)

	e.reports = service.NewReportService(e.risks, e.consents, e.requests, e.gstStore, e.auditLog,
		e.exports, e.audit, logger, m)
	e.jobs = service.NewJobRunner(e.consent, e.reports, logger)

	return e
}

func testActor() service.Actor {
	return service.Actor{
		UserID:    mustUUID("11111111-1111-1111-1111-111111111111"),
		IPAddress: "10.0.0.1",
		UserAgent: "compliance-tests",
	}
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}
