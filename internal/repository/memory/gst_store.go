package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banking/compliance-engine/internal/domain"
)

// GSTStore is the in-memory GSTStore.
type GSTStore struct {
	mu      sync.RWMutex
	details map[uuid.UUID]*domain.GSTTransactionDetail
}

func NewGSTStore() *GSTStore {
	return &GSTStore{details: make(map[uuid.UUID]*domain.GSTTransactionDetail)}
}

func (s *GSTStore) Create(ctx context.Context, det *domain.GSTTransactionDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *det
	s.details[det.ID] = &clone
	return nil
}

func (s *GSTStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GSTTransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	det, ok := s.details[id]
	if !ok {
		return nil, domain.NotFoundError("gst detail", id.String())
	}
	clone := *det
	return &clone, nil
}

func (s *GSTStore) MarkReportedInBAS(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	det, ok := s.details[id]
	if !ok {
		return domain.NotFoundError("gst detail", id.String())
	}
	det.ReportedInBAS = true
	return nil
}

func (s *GSTStore) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.GSTStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.GSTStats{ByTreatment: map[string]int64{}}
	for _, det := range s.details {
		if !inPeriod(det.ClassifiedAt, period, asOf) {
			continue
		}
		stats.Total++
		stats.ByTreatment[string(det.Treatment)]++
		if !det.Validated {
			stats.ValidationErrors++
		}
		if det.ReportedInBAS {
			stats.ReportedInBAS++
		}
		stats.TotalGST = stats.TotalGST.Add(det.GSTAmount)
	}
	return stats, nil
}
