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

// RiskRepository persists risk records. Rows are created once; only the
// review and regulator-report columns are ever updated.
type RiskRepository struct {
	pool *pgxpool.Pool
}

func NewRiskRepository(pool *pgxpool.Pool) *RiskRepository {
	return &RiskRepository{pool: pool}
}

const riskColumns = `
	id, transaction_id, user_id, amount, risk_score, monitoring_type,
	requires_review, reviewed_at, reviewed_by, reported_to_regulator,
	report_reference, false_positive, rule_signals, evaluated_at, created_at`

func (r *RiskRepository) Create(ctx context.Context, rec *domain.RiskRecord) error {
	signals, err := json.Marshal(rec.RuleSignals)
	if err != nil {
		return fmt.Errorf("failed to marshal rule signals: %w", err)
	}

	const query = `
		INSERT INTO risk_records (` + riskColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.TransactionID, rec.UserID, rec.Amount, rec.RiskScore, rec.MonitoringType,
		rec.RequiresReview, rec.ReviewedAt, rec.ReviewedBy, rec.ReportedToRegulator,
		rec.ReportReference, rec.FalsePositive, signals, rec.EvaluatedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert risk record: %w", err)
	}
	return nil
}

func (r *RiskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RiskRecord, error) {
	const query = `SELECT ` + riskColumns + ` FROM risk_records WHERE id = $1`
	rec, err := scanRiskRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError("risk record", id.String())
		}
		return nil, fmt.Errorf("failed to get risk record: %w", err)
	}
	return rec, nil
}

func (r *RiskRepository) List(ctx context.Context, filter domain.RiskFilter) ([]*domain.RiskRecord, error) {
	query := `SELECT ` + riskColumns + ` FROM risk_records WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.MonitoringType != nil {
		query += fmt.Sprintf(" AND monitoring_type = $%d", argIdx)
		args = append(args, *filter.MonitoringType)
		argIdx++
	}
	if filter.RequiresReview != nil {
		query += fmt.Sprintf(" AND requires_review = $%d", argIdx)
		args = append(args, *filter.RequiresReview)
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND evaluated_at >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND evaluated_at < $%d", argIdx)
		args = append(args, *filter.Until)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY evaluated_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	return r.queryRecords(ctx, query, args...)
}

func (r *RiskRepository) ListByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.RiskRecord, error) {
	const query = `
		SELECT ` + riskColumns + `
		FROM risk_records
		WHERE user_id = $1 AND evaluated_at >= $2
		ORDER BY evaluated_at DESC
	`
	return r.queryRecords(ctx, query, userID, since)
}

// SetReviewed records the analyst decision. The conditional update makes the
// review one-way; a second reviewer gets a conflict.
func (r *RiskRepository) SetReviewed(ctx context.Context, id, reviewer uuid.UUID, falsePositive bool, at time.Time) error {
	const query = `
		UPDATE risk_records
		SET reviewed_at = $1, reviewed_by = $2, false_positive = $3
		WHERE id = $4 AND reviewed_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, at, reviewer, falsePositive, id)
	if err != nil {
		return fmt.Errorf("failed to set review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ConflictError("risk record %s already reviewed", id)
	}
	return nil
}

func (r *RiskRepository) SetRegulatorReport(ctx context.Context, id uuid.UUID, reference string) error {
	const query = `
		UPDATE risk_records
		SET reported_to_regulator = TRUE, report_reference = $1
		WHERE id = $2 AND NOT reported_to_regulator
	`
	tag, err := r.pool.Exec(ctx, query, reference, id)
	if err != nil {
		return fmt.Errorf("failed to set regulator report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		// Already reported; the submission was a duplicate.
	}
	return nil
}

func (r *RiskRepository) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.RiskStats, error) {
	const totalsQuery = `
		SELECT COUNT(*),
			COALESCE(AVG(risk_score), 0),
			COUNT(*) FILTER (WHERE requires_review AND reviewed_at IS NULL),
			COUNT(*) FILTER (WHERE reported_to_regulator),
			COUNT(*) FILTER (WHERE false_positive)
		FROM risk_records
		WHERE evaluated_at >= $1 AND evaluated_at < $2 AND evaluated_at <= $3
	`
	stats := &domain.RiskStats{ByMonitoringType: map[string]int64{}}
	err := r.pool.QueryRow(ctx, totalsQuery, period.Start, period.End, asOf).Scan(
		&stats.Total, &stats.AverageRiskScore, &stats.PendingReview,
		&stats.Reported, &stats.FalsePositives,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate risk totals: %w", err)
	}

	const byTypeQuery = `
		SELECT monitoring_type, COUNT(*)
		FROM risk_records
		WHERE evaluated_at >= $1 AND evaluated_at < $2 AND evaluated_at <= $3
		GROUP BY monitoring_type
	`
	rows, err := r.pool.Query(ctx, byTypeQuery, period.Start, period.End, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monitoring types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mt string
		var count int64
		if err := rows.Scan(&mt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan monitoring type aggregate: %w", err)
		}
		stats.ByMonitoringType[mt] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monitoring type aggregates: %w", err)
	}
	return stats, nil
}

func (r *RiskRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*domain.RiskRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk records: %w", err)
	}
	defer rows.Close()

	records := []*domain.RiskRecord{}
	for rows.Next() {
		rec, err := scanRiskRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk records: %w", err)
	}
	return records, nil
}

func scanRiskRecord(row pgx.Row) (*domain.RiskRecord, error) {
	var rec domain.RiskRecord
	var signals []byte
	err := row.Scan(
		&rec.ID, &rec.TransactionID, &rec.UserID, &rec.Amount, &rec.RiskScore, &rec.MonitoringType,
		&rec.RequiresReview, &rec.ReviewedAt, &rec.ReviewedBy, &rec.ReportedToRegulator,
		&rec.ReportReference, &rec.FalsePositive, &signals, &rec.EvaluatedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &rec.RuleSignals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule signals: %w", err)
		}
	}
	return &rec, nil
}
