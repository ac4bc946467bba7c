package app

import (
	"sync"

	"golang-messaging-bridge/internal/domain"
)

// jobLocks serializes broadcast jobs that would otherwise race on one
// network connection. Channel-network jobs lock per owner (independent
// owners run in parallel on independent connections); device-network jobs
// all share the single linked device and therefore one global key.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*sync.Mutex)}
}

func jobKey(network domain.Network, owner domain.Owner) string {
	if network == domain.NetworkDevice {
		return "device"
	}
	return "channel/" + owner.ID + "/" + string(owner.Role)
}

// acquire blocks until the job lock for key is held and returns its release
// function. Lock entries are kept for reuse; the map is bounded by the
// number of distinct owners.
func (l *jobLocks) acquire(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
