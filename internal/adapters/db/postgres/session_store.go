package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang-messaging-bridge/internal/domain"
)

// Upsert inserts or replaces the session row keyed by
// (network, owner_id, owner_role).
func (s *Store) Upsert(ctx context.Context, sess domain.Session) error {
	const q = `
		INSERT INTO sessions (network, owner_id, owner_role, phone_number, credential, verification_token, code_requested_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (network, owner_id, owner_role) DO UPDATE SET
			phone_number       = EXCLUDED.phone_number,
			credential         = EXCLUDED.credential,
			verification_token = EXCLUDED.verification_token,
			code_requested_at  = EXCLUDED.code_requested_at,
			updated_at         = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, q,
		sess.Network, sess.Owner.ID, sess.Owner.Role,
		sess.PhoneNumber, sess.Credential, sess.VerificationToken,
		sess.CodeRequestedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Get loads the session for (network, owner).
func (s *Store) Get(ctx context.Context, network domain.Network, owner domain.Owner) (domain.Session, error) {
	const q = `
		SELECT phone_number, credential, COALESCE(verification_token, ''), code_requested_at, created_at, updated_at
		FROM sessions
		WHERE network = $1 AND owner_id = $2 AND owner_role = $3
	`
	sess := domain.Session{Network: network, Owner: owner}
	err := s.db.QueryRowContext(ctx, q, network, owner.ID, owner.Role).Scan(
		&sess.PhoneNumber, &sess.Credential, &sess.VerificationToken,
		&sess.CodeRequestedAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// SaveVerified stores the authenticated credential and clears the pending
// verification token in one update.
func (s *Store) SaveVerified(ctx context.Context, network domain.Network, owner domain.Owner, credential []byte) error {
	const q = `
		UPDATE sessions
		SET credential = $1, verification_token = NULL, updated_at = $2
		WHERE network = $3 AND owner_id = $4 AND owner_role = $5
	`
	res, err := s.db.ExecContext(ctx, q, credential, time.Now().UTC(), network, owner.ID, owner.Role)
	if err != nil {
		return fmt.Errorf("save verified session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
