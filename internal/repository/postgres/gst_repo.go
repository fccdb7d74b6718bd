package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/compliance-engine/internal/domain"
)

// GSTRepository persists GST transaction details.
type GSTRepository struct {
	pool *pgxpool.Pool
}

func NewGSTRepository(pool *pgxpool.Pool) *GSTRepository {
	return &GSTRepository{pool: pool}
}

const gstColumns = `
	id, transaction_id, base_amount, gst_amount, treatment, validated,
	validation_errors, reported_in_bas, classified_at, created_at`

func (r *GSTRepository) Create(ctx context.Context, det *domain.GSTTransactionDetail) error {
	const query = `
		INSERT INTO gst_transaction_details (` + gstColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
	`
	_, err := r.pool.Exec(ctx, query,
		det.ID, det.TransactionID, det.BaseAmount, det.GSTAmount, det.Treatment, det.Validated,
		det.ValidationErrors, det.ReportedInBAS, det.ClassifiedAt, det.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert gst detail: %w", err)
	}
	return nil
}

func (r *GSTRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.GSTTransactionDetail, error) {
	const query = `SELECT ` + gstColumns + ` FROM gst_transaction_details WHERE id = $1`
	det, err := scanGSTDetail(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError("gst detail", id.String())
		}
		return nil, fmt.Errorf("failed to get gst detail: %w", err)
	}
	return det, nil
}

// MarkReportedInBAS flips the one-way flag. An already flagged row matches
// no rows and that is fine; the flag never flips back.
func (r *GSTRepository) MarkReportedInBAS(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
		UPDATE gst_transaction_details
		SET reported_in_bas = TRUE
		WHERE id = $1 AND NOT reported_in_bas
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark reported in BAS: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *GSTRepository) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.GSTStats, error) {
	const totalsQuery = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT validated),
			COUNT(*) FILTER (WHERE reported_in_bas),
			COALESCE(SUM(gst_amount), 0)
		FROM gst_transaction_details
		WHERE classified_at >= $1 AND classified_at < $2 AND classified_at <= $3
	`
	stats := &domain.GSTStats{ByTreatment: map[string]int64{}}
	err := r.pool.QueryRow(ctx, totalsQuery, period.Start, period.End, asOf).Scan(
		&stats.Total, &stats.ValidationErrors, &stats.ReportedInBAS, &stats.TotalGST,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate gst totals: %w", err)
	}

	const byTreatmentQuery = `
		SELECT treatment, COUNT(*)
		FROM gst_transaction_details
		WHERE classified_at >= $1 AND classified_at < $2 AND classified_at <= $3
		GROUP BY treatment
	`
	rows, err := r.pool.Query(ctx, byTreatmentQuery, period.Start, period.End, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate gst treatments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var treatment string
		var count int64
		if err := rows.Scan(&treatment, &count); err != nil {
			return nil, fmt.Errorf("failed to scan gst aggregate: %w", err)
		}
		stats.ByTreatment[treatment] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gst aggregates: %w", err)
	}
	return stats, nil
}

func scanGSTDetail(row pgx.Row) (*domain.GSTTransactionDetail, error) {
	var det domain.GSTTransactionDetail
	err := row.Scan(
		&det.ID, &det.TransactionID, &det.BaseAmount, &det.GSTAmount, &det.Treatment, &det.Validated,
		&det.ValidationErrors, &det.ReportedInBAS, &det.ClassifiedAt, &det.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &det, nil
}
