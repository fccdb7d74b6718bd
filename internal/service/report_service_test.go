package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
)

// seedPeriod returns a fully elapsed reporting window and a reference time
// inside it.
func seedPeriod() (domain.ReportPeriod, time.Time) {
	now := time.Now().UTC()
	period := domain.ReportPeriod{
		Start: now.Add(-30 * 24 * time.Hour),
		End:   now.Add(-24 * time.Hour),
	}
	return period, now.Add(-48 * time.Hour)
}

func seedReportData(t *testing.T, e *env, inside time.Time) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.risks.Create(ctx, &domain.RiskRecord{
		ID:             uuid.New(),
		TransactionID:  uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString("12000"),
		RiskScore:      0.9,
		MonitoringType: domain.MonitoringThresholdExceeded,
		RequiresReview: true,
		EvaluatedAt:    inside,
		CreatedAt:      inside,
	}))
	require.NoError(t, e.risks.Create(ctx, &domain.RiskRecord{
		ID:             uuid.New(),
		TransactionID:  uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString("40"),
		RiskScore:      0.1,
		MonitoringType: domain.MonitoringThresholdExceeded,
		EvaluatedAt:    inside,
		CreatedAt:      inside,
	}))

	require.NoError(t, e.requests.Create(ctx, &domain.DataSubjectRequest{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		RequestType:        domain.RequestAccess,
		Status:             domain.RequestPending,
		VerificationMethod: "two-factor",
		RequestDate:        inside,
		DueDate:            inside.Add(-time.Hour),
		CreatedAt:          inside,
	}))

	require.NoError(t, e.consents.Create(ctx, &domain.ConsentRecord{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeMarketing,
		Purposes:    []string{"email"},
		Status:      domain.ConsentGranted,
		GrantedAt:   inside,
		CreatedAt:   inside,
	}))

	failed := domain.NewAuditLogEntry(uuid.New(), domain.OperationEvaluate, domain.ResourceRiskRecord, "seed")
	failed.Success = false
	failed.Timestamp = inside
	require.NoError(t, e.auditLog.Append(ctx, failed))

	require.NoError(t, e.gstStore.Create(ctx, &domain.GSTTransactionDetail{
		ID:               uuid.New(),
		TransactionID:    uuid.New(),
		BaseAmount:       decimal.RequireFromString("100.00"),
		GSTAmount:        decimal.RequireFromString("7.00"),
		Treatment:        domain.TreatmentTaxableSupply,
		Validated:        false,
		ValidationErrors: []string{"gst mismatch"},
		ClassifiedAt:     inside,
		CreatedAt:        inside,
	}))
}

func TestGenerateFullReport(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, inside := seedPeriod()
	seedReportData(t, e, inside)

	report, err := e.reports.Generate(context.Background(), period, nil, testActor())
	require.NoError(t, err)

	assert.Equal(t, period.End, report.AsOf)

	require.NotNil(t, report.Sections.AML)
	assert.Equal(t, int64(2), report.Sections.AML.Total)
	assert.Equal(t, int64(1), report.Sections.AML.PendingReview)
	assert.InDelta(t, 0.5, report.Sections.AML.AverageRiskScore, 1e-9)
	assert.Equal(t, domain.StatusRiskMedium, report.ExecutiveSummary.AMLRiskLevel)

	require.NotNil(t, report.Sections.Privacy)
	assert.Equal(t, int64(1), report.Sections.Privacy.Requests.Overdue)
	assert.Equal(t, domain.StatusIssues, report.ExecutiveSummary.Privacy)

	require.NotNil(t, report.Sections.APRA)
	assert.Equal(t, int64(1), report.Sections.APRA.Failures)
	assert.Equal(t, domain.StatusIssues, report.ExecutiveSummary.APRA)

	require.NotNil(t, report.Sections.GST)
	assert.Equal(t, int64(1), report.Sections.GST.ValidationErrors)
	assert.Equal(t, domain.StatusIssues, report.ExecutiveSummary.GST)

	assert.ElementsMatch(t, []string{
		"Review 1 pending AML alerts",
		"Process 1 overdue data subject requests",
		"Investigate 1 failed audited operations",
		"Reconcile 1 GST validation discrepancies",
	}, report.ActionItems)
}

func TestGenerateIsDeterministic(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, inside := seedPeriod()
	seedReportData(t, e, inside)

	first, err := e.reports.Generate(context.Background(), period, nil, testActor())
	require.NoError(t, err)
	second, err := e.reports.Generate(context.Background(), period, nil, testActor())
	require.NoError(t, err)

	assert.Equal(t, first.Sections, second.Sections)
	assert.Equal(t, first.ExecutiveSummary, second.ExecutiveSummary)
	assert.Equal(t, first.ActionItems, second.ActionItems)
}

func TestGenerateSectionSubset(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, inside := seedPeriod()
	seedReportData(t, e, inside)

	report, err := e.reports.Generate(context.Background(), period, []domain.ReportSection{domain.SectionAML}, testActor())
	require.NoError(t, err)

	assert.NotNil(t, report.Sections.AML)
	assert.Nil(t, report.Sections.Privacy)
	assert.Nil(t, report.Sections.APRA)
	assert.Nil(t, report.Sections.GST)
	assert.Empty(t, report.ExecutiveSummary.Privacy)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, _ := seedPeriod()

	_, err := e.reports.Generate(context.Background(), domain.ReportPeriod{Start: period.End, End: period.Start}, nil, testActor())
	assert.True(t, domain.IsValidation(err))

	_, err = e.reports.Generate(context.Background(), period, []domain.ReportSection{"PAYROLL"}, testActor())
	assert.True(t, domain.IsValidation(err))
}

func TestGenerateExcludesRecordsOutsidePeriod(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, _ := seedPeriod()

	after := period.End.Add(time.Hour)
	require.NoError(t, e.risks.Create(context.Background(), &domain.RiskRecord{
		ID:             uuid.New(),
		TransactionID:  uuid.New(),
		UserID:         uuid.New(),
		Amount:         decimal.RequireFromString("9999"),
		RiskScore:      1.0,
		MonitoringType: domain.MonitoringSuspiciousActivity,
		RequiresReview: true,
		EvaluatedAt:    after,
		CreatedAt:      after,
	}))

	report, err := e.reports.Generate(context.Background(), period, []domain.ReportSection{domain.SectionAML}, testActor())
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Sections.AML.Total)
	assert.Equal(t, domain.StatusRiskLow, report.ExecutiveSummary.AMLRiskLevel)
}

func TestArchiveIsIdempotentPerPeriod(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, inside := seedPeriod()
	seedReportData(t, e, inside)

	report, err := e.reports.Generate(context.Background(), period, nil, testActor())
	require.NoError(t, err)

	url, err := e.reports.Archive(context.Background(), report)
	require.NoError(t, err)
	assert.Contains(t, url, period.Key())
	assert.Equal(t, url, report.ArchiveURL)
	assert.Equal(t, 1, e.exports.Len())

	_, err = e.reports.Archive(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 1, e.exports.Len())
}

func TestRunMonthlyReport(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	period, inside := seedPeriod()
	seedReportData(t, e, inside)

	// A consent granted in the period but past its expiry; the job sweeps it
	// before aggregating.
	dueAt := inside.Add(24 * time.Hour)
	require.NoError(t, e.consents.Create(context.Background(), &domain.ConsentRecord{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeAnalytics,
		Purposes:    []string{"product analytics"},
		Status:      domain.ConsentGranted,
		GrantedAt:   inside,
		ExpiresAt:   &dueAt,
		CreatedAt:   inside,
	}))

	report, err := e.jobs.RunMonthlyReport(context.Background(), period)
	require.NoError(t, err)

	require.NotNil(t, report.Sections.Privacy)
	assert.Equal(t, int64(1), report.Sections.Privacy.Consents.ByStatus[string(domain.ConsentExpired)])
	assert.Equal(t, 1, e.exports.Len())

	url, ok := e.jobs.LastArchiveURL(period)
	require.True(t, ok)
	assert.Equal(t, report.ArchiveURL, url)

	// Same period again overwrites the archive object.
	_, err = e.jobs.RunMonthlyReport(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, 1, e.exports.Len())
}

func TestRunConsentExpiry(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, e.consents.Create(context.Background(), &domain.ConsentRecord{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeMarketing,
		Purposes:    []string{"email"},
		Status:      domain.ConsentGranted,
		GrantedAt:   now.Add(-24 * time.Hour),
		ExpiresAt:   &past,
		CreatedAt:   now.Add(-24 * time.Hour),
	}))

	count, err := e.jobs.RunConsentExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
