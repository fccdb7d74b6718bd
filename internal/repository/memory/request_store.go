package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banking/compliance-engine/internal/domain"
)

// RequestStore is the in-memory RequestStore.
type RequestStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*domain.DataSubjectRequest
}

func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[uuid.UUID]*domain.DataSubjectRequest)}
}

func (s *RequestStore) Create(ctx context.Context, req *domain.DataSubjectRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *RequestStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DataSubjectRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.NotFoundError("data subject request", id.String())
	}
	clone := *req
	return &clone, nil
}

func (s *RequestStore) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return domain.NotFoundError("data subject request", id.String())
	}
	if req.Status.IsTerminal() {
		return domain.ConflictError("request %s already %s", id, req.Status)
	}
	req.Status = domain.RequestProcessing
	return nil
}

func (s *RequestStore) Finalize(ctx context.Context, id uuid.UUID, to domain.RequestStatus, processedBy uuid.UUID, at time.Time, exportURL, rejectionReason *string) error {
	if !to.IsTerminal() {
		return domain.ValidationError("finalize target %s is not terminal", to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return domain.NotFoundError("data subject request", id.String())
	}
	if req.Status != domain.RequestProcessing {
		return domain.ConflictError("request %s already %s", id, req.Status)
	}
	req.Status = to
	req.ProcessedBy = &processedBy
	req.CompletedAt = &at
	req.ExportURL = exportURL
	req.RejectionReason = rejectionReason
	return nil
}

func (s *RequestStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataSubjectRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*domain.DataSubjectRequest{}
	for _, req := range s.requests {
		if req.UserID == userID {
			clone := *req
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}

func (s *RequestStore) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RequestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.RequestStats{ByStatus: map[string]int64{}, ByType: map[string]int64{}}
	for _, req := range s.requests {
		if !inPeriod(req.RequestDate, period, asOf) {
			continue
		}
		stats.Total++
		stats.ByStatus[string(req.Status)]++
		stats.ByType[string(req.RequestType)]++
		if req.Overdue(asOf) {
			stats.Overdue++
		}
	}
	return stats, nil
}
