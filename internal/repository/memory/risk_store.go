// Package memory provides in-memory store implementations used by unit
// tests. They honour the same transition semantics as the postgres layer.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banking/compliance-engine/internal/domain"
)

// RiskStore is the in-memory RiskStore.
type RiskStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.RiskRecord

	// FailCreate forces Create to fail, for exercising the fail-safe path.
	FailCreate error
	// FailList forces ListByUserSince to fail.
	FailList error
}

func NewRiskStore() *RiskStore {
	return &RiskStore{records: make(map[uuid.UUID]*domain.RiskRecord)}
}

func (s *RiskStore) Create(ctx context.Context, rec *domain.RiskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *RiskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RiskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.NotFoundError("risk record", id.String())
	}
	clone := *rec
	return &clone, nil
}

func (s *RiskStore) List(ctx context.Context, filter domain.RiskFilter) ([]*domain.RiskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.RiskRecord{}
	for _, rec := range s.records {
		if filter.UserID != nil && rec.UserID != *filter.UserID {
			continue
		}
		if filter.MonitoringType != nil && rec.MonitoringType != *filter.MonitoringType {
			continue
		}
		if filter.RequiresReview != nil && rec.RequiresReview != *filter.RequiresReview {
			continue
		}
		if filter.Since != nil && rec.EvaluatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !rec.EvaluatedAt.Before(*filter.Until) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })
	return out, nil
}

func (s *RiskStore) ListByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.RiskRecord, error) {
	s.mu.RLock()
	if s.FailList != nil {
		s.mu.RUnlock()
		return nil, s.FailList
	}
	s.mu.RUnlock()
	return s.List(ctx, domain.RiskFilter{UserID: &userID, Since: &since})
}

func (s *RiskStore) SetReviewed(ctx context.Context, id, reviewer uuid.UUID, falsePositive bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.NotFoundError("risk record", id.String())
	}
	if rec.ReviewedAt != nil {
		return domain.ConflictError("risk record %s already reviewed", id)
	}
	rec.ReviewedAt = &at
	rec.ReviewedBy = &reviewer
	rec.FalsePositive = falsePositive
	return nil
}

func (s *RiskStore) SetRegulatorReport(ctx context.Context, id uuid.UUID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.NotFoundError("risk record", id.String())
	}
	if rec.ReportedToRegulator {
		return nil
	}
	rec.ReportedToRegulator = true
	rec.ReportReference = &reference
	return nil
}

func (s *RiskStore) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RiskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.RiskStats{ByMonitoringType: map[string]int64{}}
	var scoreSum float64
	for _, rec := range s.records {
		if !inPeriod(rec.EvaluatedAt, period, asOf) {
			continue
		}
		stats.Total++
		stats.ByMonitoringType[string(rec.MonitoringType)]++
		scoreSum += rec.RiskScore
		if rec.RequiresReview && rec.ReviewedAt == nil {
			stats.PendingReview++
		}
		if rec.ReportedToRegulator {
			stats.Reported++
		}
		if rec.FalsePositive {
			stats.FalsePositives++
		}
	}
	if stats.Total > 0 {
		stats.AverageRiskScore = scoreSum / float64(stats.Total)
	}
	return stats, nil
}

func inPeriod(t time.Time, period domain.ReportPeriod, asOf time.Time) bool {
	return !t.Before(period.Start) && t.Before(period.End) && !t.After(asOf)
}

// VelocityStore is the in-memory VelocityStore, keeping exact timestamps so
// the window is truly rolling.
type VelocityStore struct {
	mu     sync.Mutex
	window time.Duration
	events map[uuid.UUID][]velocityEvent

	// FailObserve forces Observe to fail.
	FailObserve error
}

type velocityEvent struct {
	amount decimal.Decimal
	at     time.Time
}

func NewVelocityStore(window time.Duration) *VelocityStore {
	return &VelocityStore{window: window, events: make(map[uuid.UUID][]velocityEvent)}
}

func (s *VelocityStore) Observe(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, at time.Time) (*domain.VelocityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailObserve != nil {
		return nil, s.FailObserve
	}

	cutoff := at.Add(-s.window)
	kept := s.events[userID][:0]
	for _, e := range s.events[userID] {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, velocityEvent{amount: amount, at: at})
	s.events[userID] = kept

	sum := decimal.Zero
	for _, e := range kept {
		sum = sum.Add(e.amount)
	}
	return &domain.VelocityWindow{
		UserID:      userID,
		Count:       int64(len(kept)),
		Sum:         sum,
		WindowStart: cutoff,
		WindowEnd:   at,
	}, nil
}
