package domain

import "errors"

// Network identifies one of the two external messaging systems the bridge
// integrates: a channel network with per-owner authenticated sessions, and a
// device network bound to a single QR-linked device per deployment.
type Network string

const (
	NetworkChannel Network = "channel"
	NetworkDevice  Network = "device"
)

// Valid reports whether n is one of the known networks.
func (n Network) Valid() bool {
	return n == NetworkChannel || n == NetworkDevice
}

// Role is the internal platform role of an owner.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleSales       Role = "SALES"
	RoleRegularUser Role = "REGULAR_USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleSupervisor, RoleSales, RoleRegularUser:
		return true
	}
	return false
}

// Owner is the internal account on whose behalf sessions and destinations
// exist. It is passed as a single value through every signature; the
// role-to-column mapping happens once, at the store boundary.
type Owner struct {
	ID   string
	Role Role
}

// Valid reports whether the owner carries a usable identity.
func (o Owner) Valid() bool {
	return o.ID != "" && o.Role.Valid()
}

var (
	ErrInvalidOwner   = errors.New("invalid owner")
	ErrInvalidNetwork = errors.New("invalid network")
)
