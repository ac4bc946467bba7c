package ports

import (
	"context"
	"errors"
	"fmt"

	"golang-messaging-bridge/internal/domain"
)

// Target is what a send addresses on the wire: the destination's native id
// plus, for the channel network, the access secret paired with it.
type Target struct {
	NativeID     string
	NativeSecret string
}

// NativeRef is what the network hands back when a destination is created or
// linked on its side.
type NativeRef struct {
	NativeID     string
	NativeSecret string
}

// DestinationSpec describes the network-side entity to create. For the
// channel network an entity is created from scratch (DisplayName/About); for
// the device network an existing group is joined via InviteCode.
type DestinationSpec struct {
	DisplayName string
	About       string
	InviteCode  string
}

// CodeRequest is the result of asking the network to send a verification
// code: the opaque token to submit alongside the code, and the
// unauthenticated credential blob the confirmation call must resume from.
type CodeRequest struct {
	Token      string
	Credential []byte
}

// Conn is one live connection to a network, scoped to a single job. All
// methods honour ctx deadlines; a deadline hit is a transient error.
type Conn interface {
	// SendText delivers a plain text message to target.
	SendText(ctx context.Context, target Target, text string) error

	// SendMedia delivers media bytes with an optional caption.
	SendMedia(ctx context.Context, target Target, media []byte, mimeType, caption string) error

	// ResolveContact looks up the network-native ref for a phone number.
	// Returns ErrContactNotFound if the number has no account there.
	ResolveContact(ctx context.Context, phoneNumber string) (Target, error)

	// CreateDestination creates or joins the network-side entity and
	// returns its native identifiers.
	CreateDestination(ctx context.Context, spec DestinationSpec) (NativeRef, error)

	// DeleteDestination tears down the network-side entity.
	DeleteDestination(ctx context.Context, target Target) error

	// Close releases the connection. Idempotent, and safe to call after a
	// prior operation failed.
	Close() error
}

// NetworkAdapter is the thin protocol client for one external network.
type NetworkAdapter interface {
	// Connect opens a connection authenticated as the session's owner.
	// Returns ErrConnectionFailed if the credential is invalid or expired,
	// ErrNotLinked if the device-network pairing has not completed.
	Connect(ctx context.Context, session domain.Session) (Conn, error)

	// RequestCode asks the network to send a verification code to the
	// phone number over an unauthenticated connection. Networks without
	// phone verification return ErrVerificationUnsupported.
	RequestCode(ctx context.Context, phoneNumber string) (CodeRequest, error)

	// ConfirmCode submits the code and pending token, resuming from the
	// unauthenticated credential, and returns the authenticated
	// credential on success.
	ConfirmCode(ctx context.Context, credential []byte, phoneNumber, code, token string) ([]byte, error)
}

// Adapter-level errors. Callers classify with errors.Is.
var (
	ErrConnectionFailed        = errors.New("connection failed")
	ErrNotLinked               = errors.New("device is not linked")
	ErrContactNotFound         = errors.New("contact not found on network")
	ErrCodeRejected            = errors.New("verification code rejected")
	ErrCodeExpired             = errors.New("verification code expired")
	ErrVerificationUnsupported = errors.New("network does not support phone verification")
)

// TransientError marks a failure worth one retry: timeouts, dropped sockets,
// gateway 5xx. Permanent errors are returned bare.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable, directly or via
// a context deadline expiry anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
