package ports

import (
	"context"

	"golang-messaging-bridge/internal/domain"

	"github.com/google/uuid"
)

// SessionStore persists one credential record per (network, owner) pair.
type SessionStore interface {
	// Upsert writes the session keyed by (network, owner id, owner role),
	// inserting or fully replacing the mutable fields.
	Upsert(ctx context.Context, s domain.Session) error

	// Get loads the session for (network, owner).
	// Returns domain.ErrSessionNotFound if absent.
	Get(ctx context.Context, network domain.Network, owner domain.Owner) (domain.Session, error)

	// SaveVerified stores the authenticated credential and clears the
	// pending verification token in a single update.
	SaveVerified(ctx context.Context, network domain.Network, owner domain.Owner, credential []byte) error
}

// DestinationStore persists the registry of network destinations.
type DestinationStore interface {
	// Save persists a new destination row.
	Save(ctx context.Context, d domain.Destination) error

	// Get retrieves a destination by ID.
	// Returns domain.ErrDestinationNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (domain.Destination, error)

	// ListByOwner returns the destinations created by owner on network.
	ListByOwner(ctx context.Context, network domain.Network, owner domain.Owner) ([]domain.Destination, error)

	// Delete removes a destination row. Deleting an absent row is not an
	// error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReportStore persists broadcast audit reports, one row per delivery result.
type ReportStore interface {
	// SaveReport persists the report and its per-target results.
	SaveReport(ctx context.Context, r domain.BroadcastReport) error
}
