package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Destination is a group or channel native to one network, addressable via
// stored native identifiers. NativeSecret is required for channel-network
// destinations (paired with NativeID to authorize sends) and empty for
// device-network destinations, where a single opaque JID suffices.
//
// Native identifiers are immutable once captured; if the network-side entity
// disappears the destination must be re-created.
type Destination struct {
	ID           uuid.UUID
	Network      Network
	NativeID     string
	NativeSecret string
	DisplayName  string
	CountryRef   string
	Owner        Owner
	CreatedAt    time.Time
}

// NewDestination creates a Destination with a generated ID.
func NewDestination(network Network, owner Owner, displayName, countryRef, nativeID, nativeSecret string) Destination {
	return Destination{
		ID:           uuid.New(),
		Network:      network,
		NativeID:     nativeID,
		NativeSecret: nativeSecret,
		DisplayName:  displayName,
		CountryRef:   countryRef,
		Owner:        owner,
		CreatedAt:    time.Now().UTC(),
	}
}

// Addressable reports whether the destination carries every native
// identifier its network needs for a send.
func (d Destination) Addressable() bool {
	if d.NativeID == "" {
		return false
	}
	if d.Network == NetworkChannel && d.NativeSecret == "" {
		return false
	}
	return true
}

var ErrDestinationNotFound = errors.New("destination not found")
