package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banking/compliance-engine/internal/domain"
)

// ConsentStore is the in-memory ConsentStore.
type ConsentStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.ConsentRecord
}

func NewConsentStore() *ConsentStore {
	return &ConsentStore{records: make(map[uuid.UUID]*domain.ConsentRecord)}
}

func (s *ConsentStore) Create(ctx context.Context, rec *domain.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *ConsentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.NotFoundError("consent record", id.String())
	}
	clone := *rec
	return &clone, nil
}

func (s *ConsentStore) LatestGranted(ctx context.Context, userID uuid.UUID, ctype domain.ConsentType) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ConsentRecord
	for _, rec := range s.records {
		if rec.UserID != userID || rec.ConsentType != ctype || rec.Status != domain.ConsentGranted {
			continue
		}
		if latest == nil || rec.GrantedAt.After(latest.GrantedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, domain.NotFoundError("granted consent", fmt.Sprintf("%s/%s", userID, ctype))
	}
	clone := *latest
	return &clone, nil
}

func (s *ConsentStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.ConsentStatus, at time.Time, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.NotFoundError("consent record", id.String())
	}
	if rec.Status != from {
		return domain.ConflictError("consent %s is not %s", id, from)
	}
	rec.Status = to
	if to == domain.ConsentWithdrawn {
		rec.WithdrawnAt = &at
		rec.WithdrawReason = reason
	}
	return nil
}

func (s *ConsentStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, rec := range s.records {
		if rec.Status == domain.ConsentGranted && rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
			rec.Status = domain.ConsentExpired
			expired++
		}
	}
	return expired, nil
}

func (s *ConsentStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.ConsentRecord{}
	for _, rec := range s.records {
		if rec.UserID == userID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

func (s *ConsentStore) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.ConsentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ConsentStats{ByStatus: map[string]int64{}, ByType: map[string]int64{}}
	for _, rec := range s.records {
		if !inPeriod(rec.GrantedAt, period, asOf) {
			continue
		}
		stats.Total++
		stats.ByStatus[string(rec.Status)]++
		stats.ByType[string(rec.ConsentType)]++
	}
	return stats, nil
}
