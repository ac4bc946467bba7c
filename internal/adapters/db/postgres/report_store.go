package postgres

import (
	"context"
	"fmt"

	"golang-messaging-bridge/internal/domain"
)

// SaveReport persists a broadcast report and its per-target results inside a
// single transaction.
func (s *Store) SaveReport(ctx context.Context, r domain.BroadcastReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const qr = `
		INSERT INTO delivery_reports (id, network, owner_id, owner_role, kind, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, qr, r.ID, r.Network, r.OwnerID, r.OwnerRole, r.Kind, r.StartedAt, r.FinishedAt); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	const qi = `
		INSERT INTO delivery_report_results (report_id, position, target, status, error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`
	stmt, err := tx.PrepareContext(ctx, qi)
	if err != nil {
		return fmt.Errorf("prepare insert result: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for i, res := range r.Results {
		if _, err := stmt.ExecContext(ctx, r.ID, i, res.Target, res.Status, res.Error); err != nil {
			return fmt.Errorf("exec insert result %d: %w", i, err)
		}
	}

	return tx.Commit()
}
