package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banking/compliance-engine/internal/crypto"
	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/metrics"
)

// AuditService is the append-only trail recorder. Every compliance-relevant
// operation in the engine funnels through Record; entries are HMAC-signed on
// write and verified on read.
type AuditService struct {
	store        AuditStore
	indexer      SearchIndexer
	alerts       AlertPublisher
	signer       *crypto.EvidenceSigner
	logger       *zap.Logger
	metrics      *metrics.Metrics
	maxRetries   int
	retryBackoff time.Duration
}

func NewAuditService(
	store AuditStore,
	indexer SearchIndexer,
	alerts AlertPublisher,
	signer *crypto.EvidenceSigner,
	logger *zap.Logger,
	m *metrics.Metrics,
	maxRetries int,
	retryBackoff time.Duration,
) *AuditService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &AuditService{
		store:        store,
		indexer:      indexer,
		alerts:       alerts,
		signer:       signer,
		logger:       logger,
		metrics:      m,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}
}

// Record signs and appends one entry. The write is synchronous with bounded
// retries; when retries exhaust the failure is escalated as an operational
// alert and returned to the caller. Evidence loss is never silent.
func (s *AuditService) Record(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entry.Signature = s.signer.SignEntry(
		entry.ID.String(),
		entry.ActorUserID.String(),
		string(entry.OperationType),
		string(entry.ResourceType),
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Success,
	)
	entry.KeyVersion = s.signer.CurrentKeyVersion()

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		lastErr = s.store.Append(ctx, entry)
		if lastErr == nil {
			s.asyncIndex(entry)
			return nil
		}
		s.logger.Warn("audit append failed",
			zap.String("entry_id", entry.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < s.maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * s.retryBackoff):
			case <-ctx.Done():
				return domain.PersistenceError("audit append", ctx.Err())
			}
		}
	}

	s.escalate(ctx, entry, lastErr)
	return domain.PersistenceError("audit append exhausted retries", lastErr)
}

func (s *AuditService) escalate(ctx context.Context, entry *domain.AuditLogEntry, cause error) {
	s.metrics.AuditWritesEscalated.Inc()
	s.logger.Error("audit write escalated",
		zap.String("entry_id", entry.ID.String()),
		zap.String("operation", string(entry.OperationType)),
		zap.Error(cause),
	)
	if s.alerts == nil {
		return
	}
	alert := OperationalAlert{
		Kind:     "AUDIT_WRITE_FAILURE",
		Detail:   cause.Error(),
		Resource: fmt.Sprintf("%s/%s", entry.ResourceType, entry.ResourceID),
		RaisedAt: time.Now().UTC(),
	}
	if err := s.alerts.PublishAlert(ctx, alert); err != nil {
		s.logger.Error("failed to publish operational alert", zap.Error(err))
	}
}

// asyncIndex mirrors the entry into the search index, best effort.
func (s *AuditService) asyncIndex(entry *domain.AuditLogEntry) {
	if s.indexer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in audit index", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.indexer.Index(ctx, entry); err != nil {
			s.logger.Warn("audit index failed",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Query returns a filtered, paginated view of the trail. Signatures are
// verified on the way out; a mismatch is an integrity failure, not a result.
func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	page, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, domain.PersistenceError("audit query", err)
	}

	for _, entry := range page.Entries {
		valid := s.signer.VerifyEntry(
			entry.ID.String(),
			entry.ActorUserID.String(),
			string(entry.OperationType),
			string(entry.ResourceType),
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Success,
			entry.Signature,
		)
		if !valid {
			s.metrics.AuditIntegrityFailures.Inc()
			s.logger.Error("audit signature mismatch",
				zap.String("entry_id", entry.ID.String()),
			)
			return nil, fmt.Errorf("audit integrity failure: entry %s signature invalid", entry.ID)
		}
	}

	return page, nil
}

// SealSnapshots encrypts before/after payloads onto an entry.
func (s *AuditService) SealSnapshots(entry *domain.AuditLogEntry, previous, current interface{}) error {
	seal := func(v interface{}) ([]byte, error) {
		if v == nil {
			return nil, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		sealed, version, err := s.signer.Seal(raw)
		if err != nil {
			return nil, err
		}
		entry.KeyVersion = version
		return sealed, nil
	}

	var err error
	if entry.PreviousData, err = seal(previous); err != nil {
		return fmt.Errorf("seal previous snapshot: %w", err)
	}
	if entry.CurrentData, err = seal(current); err != nil {
		return fmt.Errorf("seal current snapshot: %w", err)
	}
	return nil
}

// ExportCSV writes the filtered entries as CSV with the fixed column set
// used by external admin tooling.
func (s *AuditService) ExportCSV(ctx context.Context, filter domain.AuditFilter, w io.Writer) (int, error) {
	page, err := s.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "actor", "operation", "resource", "success"}); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range page.Entries {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.ActorUserID.String(),
			string(e.OperationType),
			fmt.Sprintf("%s/%s", e.ResourceType, e.ResourceID),
			strconv.FormatBool(e.Success),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(page.Entries), nil
}
