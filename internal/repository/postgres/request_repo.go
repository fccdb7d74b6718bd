package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/compliance-engine/internal/domain"
)

// RequestRepository persists data-subject requests. The workflow transitions
// are conditional updates so racing processors cannot both finalize.
type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

const requestColumns = `
	id, user_id, request_type, status, details, verification_method,
	request_date, due_date, processed_by, completed_at, export_url,
	rejection_reason, created_at`

func (r *RequestRepository) Create(ctx context.Context, req *domain.DataSubjectRequest) error {
	details, err := json.Marshal(req.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal request details: %w", err)
	}

	const query = `
		INSERT INTO data_subject_requests (` + requestColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)
	`
	_, err = r.pool.Exec(ctx, query,
		req.ID, req.UserID, req.RequestType, req.Status, details, req.VerificationMethod,
		req.RequestDate, req.DueDate, req.ProcessedBy, req.CompletedAt, req.ExportURL,
		req.RejectionReason, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert data subject request: %w", err)
	}
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DataSubjectRequest, error) {
	const query = `SELECT ` + requestColumns + ` FROM data_subject_requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError("data subject request", id.String())
		}
		return nil, fmt.Errorf("failed to get data subject request: %w", err)
	}
	return req, nil
}

// BeginProcessing claims the request. PENDING and PROCESSING are both
// claimable; a terminal request is a conflict.
func (r *RequestRepository) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE data_subject_requests
		SET status = 'PROCESSING'
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to begin processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		req, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return domain.ConflictError("request %s already %s", id, req.Status)
	}
	return nil
}

// Finalize moves PROCESSING to the terminal status. The conditional update
// guarantees exactly one of two racing calls succeeds.
func (r *RequestRepository) Finalize(ctx context.Context, id uuid.UUID, to domain.RequestStatus, processedBy uuid.UUID, at time.Time, exportURL, rejectionReason *string) error {
	if !to.IsTerminal() {
		return domain.ValidationError("finalize target %s is not terminal", to)
	}

	const query = `
		UPDATE data_subject_requests
		SET status = $1, processed_by = $2, completed_at = $3,
			export_url = $4, rejection_reason = $5
		WHERE id = $6 AND status = 'PROCESSING'
	`
	tag, err := r.pool.Exec(ctx, query, to, processedBy, at, exportURL, rejectionReason, id)
	if err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		req, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return domain.ConflictError("request %s already %s", id, req.Status)
	}
	return nil
}

func (r *RequestRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DataSubjectRequest, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM data_subject_requests
		WHERE user_id = $1
		ORDER BY request_date DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query data subject requests: %w", err)
	}
	defer rows.Close()

	requests := []*domain.DataSubjectRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data subject request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate data subject requests: %w", err)
	}
	return requests, nil
}

func (r *RequestRepository) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RequestStats, error) {
	stats := &domain.RequestStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]int64{},
	}

	const query = `
		SELECT status, request_type, COUNT(*),
			COUNT(*) FILTER (WHERE due_date < $3 AND status NOT IN ('COMPLETED', 'REJECTED'))
		FROM data_subject_requests
		WHERE request_date >= $1 AND request_date < $2 AND request_date <= $3
		GROUP BY status, request_type
	`
	rows, err := r.pool.Query(ctx, query, period.Start, period.End, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate data subject requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, rtype string
		var count, overdue int64
		if err := rows.Scan(&status, &rtype, &count, &overdue); err != nil {
			return nil, fmt.Errorf("failed to scan request aggregate: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[rtype] += count
		stats.Overdue += overdue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request aggregates: %w", err)
	}
	return stats, nil
}

func scanRequest(row pgx.Row) (*domain.DataSubjectRequest, error) {
	var req domain.DataSubjectRequest
	var details []byte
	err := row.Scan(
		&req.ID, &req.UserID, &req.RequestType, &req.Status, &details, &req.VerificationMethod,
		&req.RequestDate, &req.DueDate, &req.ProcessedBy, &req.CompletedAt, &req.ExportURL,
		&req.RejectionReason, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &req.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request details: %w", err)
		}
	}
	return &req, nil
}
