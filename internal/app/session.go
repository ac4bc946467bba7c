package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"
)

// SessionManager orchestrates the per-owner verification state machine:
// UNINITIALIZED -> code requested -> verified. A verified session is never
// silently downgraded here; re-verification overwrites it only through the
// same two-step flow.
type SessionManager struct {
	store    ports.SessionStore
	adapters Adapters
	log      *slog.Logger
}

// NewSessionManager wires the manager with its dependencies.
func NewSessionManager(store ports.SessionStore, adapters Adapters, log *slog.Logger) *SessionManager {
	return &SessionManager{store: store, adapters: adapters, log: log}
}

// RequestCode asks the network to send a verification code to phoneNumber
// and persists the pending session keyed by (network, owner). Returns the
// verification token the caller echoes back on verify.
//
// Input validation happens before any network call.
func (m *SessionManager) RequestCode(ctx context.Context, owner domain.Owner, network domain.Network, phoneNumber string) (string, error) {
	if !owner.Valid() {
		return "", domain.ErrInvalidOwner
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", domain.ErrInvalidPhone
	}

	adapter, err := m.adapters.For(network)
	if err != nil {
		return "", err
	}

	cr, err := adapter.RequestCode(ctx, phoneNumber)
	if err != nil {
		return "", fmt.Errorf("request code: %w", err)
	}

	sess := domain.NewPendingSession(network, owner, phoneNumber, cr.Token, cr.Credential)
	if err := m.store.Upsert(ctx, sess); err != nil {
		return "", fmt.Errorf("persist pending session: %w", err)
	}

	m.log.Info("verification code requested",
		"network", network, "owner_id", owner.ID, "owner_role", owner.Role)
	return cr.Token, nil
}

// VerifyCode submits the caller-supplied code against the stored pending
// token. On success the authenticated credential is persisted and the token
// cleared; on failure the row is left untouched so the caller can retry
// with a fresh code.
func (m *SessionManager) VerifyCode(ctx context.Context, owner domain.Owner, network domain.Network, phoneNumber, code string) error {
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}
	if strings.TrimSpace(phoneNumber) == "" {
		return domain.ErrInvalidPhone
	}

	adapter, err := m.adapters.For(network)
	if err != nil {
		return err
	}

	sess, err := m.store.Get(ctx, network, owner)
	if err != nil {
		return err
	}
	if sess.VerificationToken == "" {
		return domain.ErrVerificationMissing
	}

	credential, err := adapter.ConfirmCode(ctx, sess.Credential, phoneNumber, code, sess.VerificationToken)
	if err != nil {
		// No partial mutation: a rejected or expired code leaves the row
		// as it was, ready for another attempt.
		return fmt.Errorf("confirm code: %w", err)
	}

	if err := m.store.SaveVerified(ctx, network, owner, credential); err != nil {
		return fmt.Errorf("persist verified session: %w", err)
	}

	m.log.Info("session verified",
		"network", network, "owner_id", owner.ID, "owner_role", owner.Role)
	return nil
}

// Resolve returns the session a connection must be opened with. For the
// channel network that is the owner's verified session; anything less fails
// with ErrSessionNotReady. The device network has no per-owner credential
// state, so a synthetic always-ready session is returned and link state is
// left to the adapter's Connect.
func (m *SessionManager) Resolve(ctx context.Context, owner domain.Owner, network domain.Network) (domain.Session, error) {
	if !owner.Valid() {
		return domain.Session{}, domain.ErrInvalidOwner
	}
	if network == domain.NetworkDevice {
		return domain.Session{Network: network, Owner: owner}, nil
	}
	if network != domain.NetworkChannel {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrInvalidNetwork, network)
	}

	sess, err := m.store.Get(ctx, network, owner)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.Verified() {
		return domain.Session{}, domain.ErrSessionNotReady
	}
	return sess, nil
}
