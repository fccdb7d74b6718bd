package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/banking/compliance-engine/internal/domain"
)

// AuditStore is the in-memory AuditStore. Append-only: entries are copied in
// and only copies ever leave.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditLogEntry

	// FailAppend forces Append to fail the first FailAppendTimes calls.
	FailAppend      error
	FailAppendTimes int
	appendAttempts  int
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAttempts++
	if s.FailAppend != nil {
		if s.FailAppendTimes <= 0 || s.appendAttempts <= s.FailAppendTimes {
			return s.FailAppend
		}
	}
	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

// AppendAttempts reports how many Append calls were made, including failures.
func (s *AuditStore) AppendAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appendAttempts
}

// Len reports how many entries the ledger holds.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *AuditStore) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.AuditLogEntry{}
	for _, e := range s.entries {
		if filter.ActorUserID != nil && e.ActorUserID != *filter.ActorUserID {
			continue
		}
		if filter.OperationType != nil && e.OperationType != *filter.OperationType {
			continue
		}
		if filter.ResourceType != nil && e.ResourceType != *filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && e.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && !e.Timestamp.Before(*filter.EndTime) {
			continue
		}
		clone := *e
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := int64(len(matched))
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &domain.AuditPage{
		Entries:    matched[start:end],
		TotalCount: total,
		PageSize:   limit,
		HasMore:    int64(end) < total,
	}, nil
}

func (s *AuditStore) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.AuditStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.AuditStats{ByOperation: map[string]int64{}}
	for _, e := range s.entries {
		if !inPeriod(e.Timestamp, period, asOf) {
			continue
		}
		stats.Total++
		stats.ByOperation[string(e.OperationType)]++
		if !e.Success {
			stats.Failures++
		}
	}
	return stats, nil
}
