package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

// ExportStore is the in-memory ExportStore. Objects are kept by key so tests
// can assert that re-archiving a period overwrites rather than duplicates.
type ExportStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewExportStore() *ExportStore {
	return &ExportStore{Objects: make(map[string][]byte)}
}

func (s *ExportStore) PutExport(ctx context.Context, requestID uuid.UUID, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("exports/%s.json", requestID)
	s.Objects[key] = payload
	return "s3://compliance-data-exports/" + key, nil
}

func (s *ExportStore) PutReport(ctx context.Context, key string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objectKey := "reports/" + key
	s.Objects[objectKey] = payload
	return "s3://compliance-reports/" + objectKey, nil
}

// Len reports how many distinct objects are stored.
func (s *ExportStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}

// RegulatorQueue is a scripted RegulatorQueue.
type RegulatorQueue struct {
	mu sync.Mutex
	// FailTimes makes the first FailTimes submissions fail.
	FailTimes int
	attempts  int
	submitted []uuid.UUID
}

func NewRegulatorQueue() *RegulatorQueue {
	return &RegulatorQueue{}
}

func (q *RegulatorQueue) Submit(ctx context.Context, rec *domain.RiskRecord) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.attempts <= q.FailTimes {
		return "", fmt.Errorf("regulator endpoint unavailable")
	}
	q.submitted = append(q.submitted, rec.ID)
	return fmt.Sprintf("AUSTRAC-%06d", q.attempts), nil
}

// Attempts reports how many Submit calls were made.
func (q *RegulatorQueue) Attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts
}

// Submitted returns the ids of successfully submitted records.
func (q *RegulatorQueue) Submitted() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, len(q.submitted))
	copy(out, q.submitted)
	return out
}

// AlertSink collects operational alerts.
type AlertSink struct {
	mu     sync.Mutex
	alerts []service.OperationalAlert
}

func NewAlertSink() *AlertSink {
	return &AlertSink{}
}

func (a *AlertSink) PublishAlert(ctx context.Context, alert service.OperationalAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

// Alerts returns the collected alerts.
func (a *AlertSink) Alerts() []service.OperationalAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]service.OperationalAlert, len(a.alerts))
	copy(out, a.alerts)
	return out
}
