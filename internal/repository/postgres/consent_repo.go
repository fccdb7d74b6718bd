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

// ConsentRepository persists the append-only consent history. Status changes
// go through conditional updates keyed on the expected prior status.
type ConsentRepository struct {
	pool *pgxpool.Pool
}

func NewConsentRepository(pool *pgxpool.Pool) *ConsentRepository {
	return &ConsentRepository{pool: pool}
}

const consentColumns = `
	id, user_id, consent_type, purposes, data_categories, third_parties,
	status, granted_at, expires_at, withdrawn_at, withdraw_reason,
	ip_address, created_at`

func (r *ConsentRepository) Create(ctx context.Context, rec *domain.ConsentRecord) error {
	const query = `
		INSERT INTO consent_records (` + consentColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.ConsentType, rec.Purposes, rec.DataCategories, rec.ThirdParties,
		rec.Status, rec.GrantedAt, rec.ExpiresAt, rec.WithdrawnAt, rec.WithdrawReason,
		rec.IPAddress, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert consent record: %w", err)
	}
	return nil
}

func (r *ConsentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConsentRecord, error) {
	const query = `SELECT ` + consentColumns + ` FROM consent_records WHERE id = $1`
	rec, err := scanConsentRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError("consent record", id.String())
		}
		return nil, fmt.Errorf("failed to get consent record: %w", err)
	}
	return rec, nil
}

// LatestGranted returns the newest GRANTED record of the type for the user.
func (r *ConsentRepository) LatestGranted(ctx context.Context, userID uuid.UUID, ctype domain.ConsentType) (*domain.ConsentRecord, error) {
	const query = `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE user_id = $1 AND consent_type = $2 AND status = 'GRANTED'
		ORDER BY granted_at DESC
		LIMIT 1
	`
	rec, err := scanConsentRecord(r.pool.QueryRow(ctx, query, userID, ctype))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError("granted consent", fmt.Sprintf("%s/%s", userID, ctype))
		}
		return nil, fmt.Errorf("failed to get latest granted consent: %w", err)
	}
	return rec, nil
}

// Transition is the CAS state change: the row moves only when its current
// status equals from, so exactly one of two racing callers wins.
func (r *ConsentRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ConsentStatus, at time.Time, reason *string) error {
	const query = `
		UPDATE consent_records
		SET status = $1, withdrawn_at = $2, withdraw_reason = $3
		WHERE id = $4 AND status = $5
	`
	var withdrawnAt *time.Time
	if to == domain.ConsentWithdrawn {
		withdrawnAt = &at
	}
	tag, err := r.pool.Exec(ctx, query, to, withdrawnAt, reason, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ConflictError("consent %s is not %s", id, from)
	}
	return nil
}

// ExpireDue moves every overdue GRANTED record to EXPIRED in one statement.
func (r *ConsentRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE consent_records
		SET status = 'EXPIRED'
		WHERE status = 'GRANTED' AND expires_at IS NOT NULL AND expires_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire consents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ConsentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConsentRecord, error) {
	const query = `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consent records: %w", err)
	}
	defer rows.Close()

	records := []*domain.ConsentRecord{}
	for rows.Next() {
		rec, err := scanConsentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consent records: %w", err)
	}
	return records, nil
}

func (r *ConsentRepository) Stats(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.ConsentStats, error) {
	stats := &domain.ConsentStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]int64{},
	}

	const query = `
		SELECT status, consent_type, COUNT(*)
		FROM consent_records
		WHERE granted_at >= $1 AND granted_at < $2 AND granted_at <= $3
		GROUP BY status, consent_type
	`
	rows, err := r.pool.Query(ctx, query, period.Start, period.End, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate consents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, ctype string
		var count int64
		if err := rows.Scan(&status, &ctype, &count); err != nil {
			return nil, fmt.Errorf("failed to scan consent aggregate: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[ctype] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consent aggregates: %w", err)
	}
	return stats, nil
}

func scanConsentRecord(row pgx.Row) (*domain.ConsentRecord, error) {
	var rec domain.ConsentRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ConsentType, &rec.Purposes, &rec.DataCategories, &rec.ThirdParties,
		&rec.Status, &rec.GrantedAt, &rec.ExpiresAt, &rec.WithdrawnAt, &rec.WithdrawReason,
		&rec.IPAddress, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
