package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/compliance-engine/internal/domain"
)

// AuditRepository is the append-only audit ledger. This table has no UPDATE
// or DELETE paths anywhere in the codebase.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	const query = `
		INSERT INTO audit_log (
			id, actor_user_id, operation_type, resource_type, resource_id,
			ip_address, user_agent, previous_data, current_data, success,
			error_message, signature, key_version, timestamp
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.ActorUserID, entry.OperationType, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, entry.PreviousData, entry.CurrentData, entry.Success,
		entry.ErrorMessage, entry.Signature, entry.KeyVersion, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query retrieves audit entries matching the filter, newest first.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.ActorUserID != nil {
		where += fmt.Sprintf(" AND actor_user_id = $%d", argIdx)
		args = append(args, *filter.ActorUserID)
		argIdx++
	}
	if filter.OperationType != nil {
		where += fmt.Sprintf(" AND operation_type = $%d", argIdx)
		args = append(args, *filter.OperationType)
		argIdx++
	}
	if filter.ResourceType != nil {
		where += fmt.Sprintf(" AND resource_type = $%d", argIdx)
		args = append(args, *filter.ResourceType)
		argIdx++
	}
	if filter.ResourceID != nil {
		where += fmt.Sprintf(" AND resource_id = $%d", argIdx)
		args = append(args, *filter.ResourceID)
		argIdx++
	}
	if filter.Success != nil {
		where += fmt.Sprintf(" AND success = $%d", argIdx)
		args = append(args, *filter.Success)
		argIdx++
	}
	if filter.StartTime != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *filter.StartTime)
		argIdx++
	}
	if filter.EndTime != nil {
		where += fmt.Sprintf(" AND timestamp < $%d", argIdx)
		args = append(args, *filter.EndTime)
		argIdx++
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM audit_log" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, actor_user_id, operation_type, resource_type, resource_id,
			ip_address, user_agent, previous_data, current_data, success,
			error_message, signature, key_version, timestamp
		FROM audit_log` + where +
		fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditLogEntry{}
	for rows.Next() {
		var e domain.AuditLogEntry
		err := rows.Scan(
			&e.ID, &e.ActorUserID, &e.OperationType, &e.ResourceType, &e.ResourceID,
			&e.IPAddress, &e.UserAgent, &e.PreviousData, &e.CurrentData, &e.Success,
			&e.ErrorMessage, &e.Signature, &e.KeyVersion, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return &domain.AuditPage{
		Entries:    entries,
		TotalCount: total,
		PageSize:   limit,
		HasMore:    int64(filter.Offset+len(entries)) < total,
	}, nil
}

// Stats aggregates the period's entries as of the snapshot timestamp.
func (r *AuditRepository) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.AuditStats, error) {
	const totalsQuery = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
		FROM audit_log
		WHERE timestamp >= $1 AND timestamp < $2 AND timestamp <= $3
	`
	stats := &domain.AuditStats{ByOperation: map[string]int64{}}
	err := r.pool.QueryRow(ctx, totalsQuery, period.Start, period.End, asOf).
		Scan(&stats.Total, &stats.Failures)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit totals: %w", err)
	}

	const byOpQuery = `
		SELECT operation_type, COUNT(*)
		FROM audit_log
		WHERE timestamp >= $1 AND timestamp < $2 AND timestamp <= $3
		GROUP BY operation_type
	`
	rows, err := r.pool.Query(ctx, byOpQuery, period.Start, period.End, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var op string
		var count int64
		if err := rows.Scan(&op, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit aggregate: %w", err)
		}
		stats.ByOperation[op] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit aggregates: %w", err)
	}
	return stats, nil
}
