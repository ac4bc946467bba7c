package app

import (
	"fmt"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"
)

// Adapters selects the protocol client for a network. Callers are written
// once against ports.NetworkAdapter; the enum picks the variant.
type Adapters map[domain.Network]ports.NetworkAdapter

// For returns the adapter registered for network.
func (a Adapters) For(network domain.Network) (ports.NetworkAdapter, error) {
	adapter, ok := a[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidNetwork, network)
	}
	return adapter, nil
}
