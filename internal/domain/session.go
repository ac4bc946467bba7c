package domain

import (
	"errors"
	"time"
)

// Session is the credential state allowing the bridge to act as an owner on
// a network. At most one row exists per (network, owner id, owner role);
// stores enforce this with an upsert on that composite key.
//
// Credential is opaque to the bridge: for the channel network it is whatever
// blob the gateway hands back (first unauthenticated, then authenticated
// after verification). VerificationToken is non-empty only between a code
// request and its verification.
type Session struct {
	Network           Network
	Owner             Owner
	PhoneNumber       string
	Credential        []byte
	VerificationToken string
	CodeRequestedAt   time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Verified reports whether the session holds an authenticated credential.
// A pending verification token means the credential is still the
// unauthenticated pre-login blob.
func (s Session) Verified() bool {
	return len(s.Credential) > 0 && s.VerificationToken == ""
}

// NewPendingSession builds the session row persisted when a verification
// code has been requested but not yet confirmed.
func NewPendingSession(network Network, owner Owner, phoneNumber, token string, credential []byte) Session {
	now := time.Now().UTC()
	return Session{
		Network:           network,
		Owner:             owner,
		PhoneNumber:       phoneNumber,
		Credential:        credential,
		VerificationToken: token,
		CodeRequestedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Domain errors for the session lifecycle.
var (
	ErrInvalidPhone        = errors.New("phone number must be a non-empty string")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotReady     = errors.New("session is not verified")
	ErrVerificationMissing = errors.New("no pending verification token")
)
