package crdb

import (
	"context"

	"github.com/tropicbook/resort-reservations-and-payments/internal/domain"
)

// RecordFailure appends to the operator reconciliation queue. Money has moved
// for every row in this table; rows are only removed by manual resolution.
func (r *Repository) RecordFailure(ctx context.Context, f domain.MaterializationFailure) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO materialization_failures (id, payment_ref, reason, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, f.ID, f.PaymentRef, f.Reason, f.Detail, f.CreatedAt)
	return err
}

// ListFailures returns unresolved failures, oldest first.
func (r *Repository) ListFailures(ctx context.Context, limit int) ([]domain.MaterializationFailure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_ref, reason, detail, created_at
		FROM materialization_failures ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []domain.MaterializationFailure
	for rows.Next() {
		var f domain.MaterializationFailure
		if err := rows.Scan(&f.ID, &f.PaymentRef, &f.Reason, &f.Detail, &f.CreatedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
