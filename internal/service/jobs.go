package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/domain"
)

// systemActor attributes scheduled-job activity in the audit trail.
var systemActor = Actor{UserID: uuid.MustParse("00000000-0000-0000-0000-000000000001")}

// JobRunner hosts the entry points an external scheduler calls. Each run is
// idempotent for its period.
type JobRunner struct {
	consent *ConsentService
	reports *ReportService
	logger  *zap.Logger

	mu          sync.Mutex
	runsByKey   map[string]string
	maxRunsKept int
}

func NewJobRunner(consent *ConsentService, reports *ReportService, logger *zap.Logger) *JobRunner {
	return &JobRunner{
		consent:     consent,
		reports:     reports,
		logger:      logger,
		runsByKey:   make(map[string]string),
		maxRunsKept: 64,
	}
}

// RunConsentExpiry sweeps due consents into EXPIRED. Safe to invoke on any
// cadence; a rerun finds nothing left to expire.
func (j *JobRunner) RunConsentExpiry(ctx context.Context) (int64, error) {
	expired, err := j.consent.ExpireOldConsents(ctx, systemActor)
	if err != nil {
		j.logger.Error("consent expiry job failed", zap.Error(err))
		return 0, err
	}
	j.logger.Info("consent expiry job completed", zap.Int64("expired", expired))
	return expired, nil
}

// RunMonthlyReport expires due consents, then generates and archives the
// full report for the period. The expiry sweep is the job's one deliberate
// side effect; generation itself stays read-only. Re-running a period
// overwrites the period-keyed archive, so the job is idempotent per period.
func (j *JobRunner) RunMonthlyReport(ctx context.Context, period domain.ReportPeriod) (*domain.ComplianceReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	if _, err := j.consent.ExpireOldConsents(ctx, systemActor); err != nil {
		return nil, fmt.Errorf("pre-report consent expiry: %w", err)
	}

	report, err := j.reports.Generate(ctx, period, domain.AllSections, systemActor)
	if err != nil {
		return nil, err
	}

	url, err := j.reports.Archive(ctx, report)
	if err != nil {
		return nil, err
	}

	j.rememberRun(period.Key(), url)
	j.logger.Info("monthly report job completed",
		zap.String("period", period.Key()),
		zap.String("archive_url", url),
	)
	return report, nil
}

// LastArchiveURL returns the archive URL of the most recent run for the
// period, if this process ran one.
func (j *JobRunner) LastArchiveURL(period domain.ReportPeriod) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	url, ok := j.runsByKey[period.Key()]
	return url, ok
}

func (j *JobRunner) rememberRun(key, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.runsByKey) >= j.maxRunsKept {
		for k := range j.runsByKey {
			delete(j.runsByKey, k)
			break
		}
	}
	j.runsByKey[key] = url
}
