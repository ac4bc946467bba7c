package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/google/uuid"
)

// DestinationRegistry maps internally-owned groups and channels to the
// native identifiers a network adapter needs to address them.
type DestinationRegistry struct {
	sessions *SessionManager
	store    ports.DestinationStore
	adapters Adapters
	log      *slog.Logger
}

// NewDestinationRegistry wires the registry with its dependencies.
func NewDestinationRegistry(sessions *SessionManager, store ports.DestinationStore, adapters Adapters, log *slog.Logger) *DestinationRegistry {
	return &DestinationRegistry{sessions: sessions, store: store, adapters: adapters, log: log}
}

// Create builds the network-side entity and, only once its native
// identifiers are captured, persists the destination row. A network failure
// leaves no orphaned registry entry.
func (r *DestinationRegistry) Create(ctx context.Context, owner domain.Owner, network domain.Network, displayName, countryRef string, spec ports.DestinationSpec) (domain.Destination, error) {
	if !owner.Valid() {
		return domain.Destination{}, domain.ErrInvalidOwner
	}
	if displayName == "" {
		return domain.Destination{}, errors.New("display name is required")
	}
	spec.DisplayName = displayName

	sess, err := r.sessions.Resolve(ctx, owner, network)
	if err != nil {
		return domain.Destination{}, err
	}

	adapter, err := r.adapters.For(network)
	if err != nil {
		return domain.Destination{}, err
	}

	conn, err := adapter.Connect(ctx, sess)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	ref, err := conn.CreateDestination(ctx, spec)
	if err != nil {
		return domain.Destination{}, fmt.Errorf("create network destination: %w", err)
	}

	d := domain.NewDestination(network, owner, displayName, countryRef, ref.NativeID, ref.NativeSecret)
	if err := r.store.Save(ctx, d); err != nil {
		return domain.Destination{}, fmt.Errorf("persist destination: %w", err)
	}

	r.log.Info("destination created",
		"destination_id", d.ID, "network", network, "owner_id", owner.ID)
	return d, nil
}

// Resolve loads a destination and the wire target addressing it. A row with
// missing required native fields (a partially-migrated legacy entry) is
// reported as not found rather than silently skipped here; the dispatcher
// decides what a missing destination means for the job.
func (r *DestinationRegistry) Resolve(ctx context.Context, id uuid.UUID) (domain.Destination, ports.Target, error) {
	d, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.Destination{}, ports.Target{}, err
	}
	if !d.Addressable() {
		return domain.Destination{}, ports.Target{}, fmt.Errorf("missing native identifiers: %w", domain.ErrDestinationNotFound)
	}
	return d, ports.Target{NativeID: d.NativeID, NativeSecret: d.NativeSecret}, nil
}

// List returns the destinations owner has registered on network.
func (r *DestinationRegistry) List(ctx context.Context, owner domain.Owner, network domain.Network) ([]domain.Destination, error) {
	if !owner.Valid() {
		return nil, domain.ErrInvalidOwner
	}
	return r.store.ListByOwner(ctx, network, owner)
}

// Delete removes a destination: best-effort teardown on the network side,
// then unconditional removal of the registry row. The registry must never
// retain a destination the caller believes is gone, even when the
// network-side removal could not be confirmed.
func (r *DestinationRegistry) Delete(ctx context.Context, owner domain.Owner, id uuid.UUID) error {
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}

	d, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Owner != owner && owner.Role != domain.RoleSuperAdmin {
		return domain.ErrDestinationNotFound
	}

	if err := r.teardown(ctx, owner, d); err != nil {
		r.log.Warn("network-side destination removal failed",
			"destination_id", id, "network", d.Network, "err", err)
	}

	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete destination row: %w", err)
	}

	r.log.Info("destination deleted", "destination_id", id, "network", d.Network)
	return nil
}

func (r *DestinationRegistry) teardown(ctx context.Context, owner domain.Owner, d domain.Destination) error {
	sess, err := r.sessions.Resolve(ctx, owner, d.Network)
	if err != nil {
		return err
	}

	adapter, err := r.adapters.For(d.Network)
	if err != nil {
		return err
	}

	conn, err := adapter.Connect(ctx, sess)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	if !d.Addressable() {
		return errors.New("destination has no native identifiers to tear down")
	}
	return conn.DeleteDestination(ctx, ports.Target{NativeID: d.NativeID, NativeSecret: d.NativeSecret})
}
