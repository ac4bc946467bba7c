package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang-messaging-bridge/internal/domain"

	"github.com/google/uuid"
)

// Save inserts a new destination row.
func (s *Store) Save(ctx context.Context, d domain.Destination) error {
	const q = `
		INSERT INTO destinations (id, network, native_id, native_secret, display_name, country_ref, owner_id, owner_role, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, q,
		d.ID, d.Network, d.NativeID, d.NativeSecret,
		d.DisplayName, d.CountryRef, d.Owner.ID, d.Owner.Role, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

// Get retrieves a destination by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Destination, error) {
	const q = `
		SELECT id, network, native_id, COALESCE(native_secret, ''), display_name, country_ref, owner_id, owner_role, created_at
		FROM destinations
		WHERE id = $1
	`
	var d domain.Destination
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.Network, &d.NativeID, &d.NativeSecret,
		&d.DisplayName, &d.CountryRef, &d.Owner.ID, &d.Owner.Role, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Destination{}, domain.ErrDestinationNotFound
	}
	if err != nil {
		return domain.Destination{}, fmt.Errorf("query destination: %w", err)
	}
	return d, nil
}

// ListByOwner returns the destinations created by owner on network, newest
// first.
func (s *Store) ListByOwner(ctx context.Context, network domain.Network, owner domain.Owner) ([]domain.Destination, error) {
	const q = `
		SELECT id, network, native_id, COALESCE(native_secret, ''), display_name, country_ref, owner_id, owner_role, created_at
		FROM destinations
		WHERE network = $1 AND owner_id = $2 AND owner_role = $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, q, network, owner.ID, owner.Role)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	var out []domain.Destination
	for rows.Next() {
		var d domain.Destination
		if err := rows.Scan(
			&d.ID, &d.Network, &d.NativeID, &d.NativeSecret,
			&d.DisplayName, &d.CountryRef, &d.Owner.ID, &d.Owner.Role, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes a destination row. Absent rows are not an error: the
// registry must never retain a destination the caller believes is gone.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM destinations WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	return nil
}
