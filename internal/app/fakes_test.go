package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/google/uuid"
)

// ── session store ────────────────────────────────────────────────────────────

type fakeSessionStore struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{rows: make(map[string]domain.Session)}
}

func sessKey(network domain.Network, owner domain.Owner) string {
	return string(network) + "/" + owner.ID + "/" + string(owner.Role)
}

func (s *fakeSessionStore) Upsert(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sessKey(sess.Network, sess.Owner)] = sess
	return nil
}

func (s *fakeSessionStore) Get(ctx context.Context, network domain.Network, owner domain.Owner) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessKey(network, owner)]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *fakeSessionStore) SaveVerified(ctx context.Context, network domain.Network, owner domain.Owner, credential []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessKey(network, owner)]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Credential = credential
	sess.VerificationToken = ""
	s.rows[sessKey(network, owner)] = sess
	return nil
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ── destination store ────────────────────────────────────────────────────────

type fakeDestinationStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Destination
}

func newFakeDestinationStore() *fakeDestinationStore {
	return &fakeDestinationStore{rows: make(map[uuid.UUID]domain.Destination)}
}

func (s *fakeDestinationStore) Save(ctx context.Context, d domain.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[d.ID] = d
	return nil
}

func (s *fakeDestinationStore) Get(ctx context.Context, id uuid.UUID) (domain.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return domain.Destination{}, domain.ErrDestinationNotFound
	}
	return d, nil
}

func (s *fakeDestinationStore) ListByOwner(ctx context.Context, network domain.Network, owner domain.Owner) ([]domain.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Destination
	for _, d := range s.rows {
		if d.Network == network && d.Owner == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeDestinationStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *fakeDestinationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ── network adapter ──────────────────────────────────────────────────────────

// fakeConn scripts per-target send outcomes and counts lifecycle events.
type fakeConn struct {
	mu        sync.Mutex
	sendErrs  map[string][]error // nativeID -> queue of errors, nil = success
	contacts  map[string]string  // phone -> native ref
	createRef ports.NativeRef
	createErr error
	deleteErr error
	sent      []string
	deleted   []string
	closes    int
	afterSend func() // called after each send, under no lock

	sendDelay   time.Duration
	inFlight    int32
	maxInFlight int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sendErrs: make(map[string][]error),
		contacts: make(map[string]string),
	}
}

// scriptSend queues outcomes for a target; nil entries mean success.
func (c *fakeConn) scriptSend(nativeID string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErrs[nativeID] = append(c.sendErrs[nativeID], errs...)
}

func (c *fakeConn) popErr(nativeID string) error {
	c.mu.Lock()
	queue := c.sendErrs[nativeID]
	var err error
	if len(queue) > 0 {
		err = queue[0]
		c.sendErrs[nativeID] = queue[1:]
	}
	c.sent = append(c.sent, nativeID)
	hook := c.afterSend
	delay := c.sendDelay
	c.mu.Unlock()

	cur := atomic.AddInt32(&c.inFlight, 1)
	for {
		max := atomic.LoadInt32(&c.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&c.maxInFlight, max, cur) {
			break
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	atomic.AddInt32(&c.inFlight, -1)

	if hook != nil {
		hook()
	}
	return err
}

func (c *fakeConn) SendText(ctx context.Context, target ports.Target, text string) error {
	return c.popErr(target.NativeID)
}

func (c *fakeConn) SendMedia(ctx context.Context, target ports.Target, media []byte, mimeType, caption string) error {
	return c.popErr(target.NativeID)
}

func (c *fakeConn) ResolveContact(ctx context.Context, phoneNumber string) (ports.Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.contacts[phoneNumber]
	if !ok {
		return ports.Target{}, ports.ErrContactNotFound
	}
	return ports.Target{NativeID: ref}, nil
}

func (c *fakeConn) CreateDestination(ctx context.Context, spec ports.DestinationSpec) (ports.NativeRef, error) {
	if c.createErr != nil {
		return ports.NativeRef{}, c.createErr
	}
	return c.createRef, nil
}

func (c *fakeConn) DeleteDestination(ctx context.Context, target ports.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, target.NativeID)
	return c.deleteErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) sentTargets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeAdapter struct {
	mu         sync.Mutex
	conn       *fakeConn
	connectErr error
	connects   int

	codeReq    ports.CodeRequest
	codeReqErr error
	requests   int

	confirmCred []byte
	confirmErr  error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		conn:        newFakeConn(),
		codeReq:     ports.CodeRequest{Token: "token-1", Credential: []byte("pending-cred")},
		confirmCred: []byte("verified-cred"),
	}
}

func (a *fakeAdapter) Connect(ctx context.Context, session domain.Session) (ports.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects++
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.conn, nil
}

func (a *fakeAdapter) RequestCode(ctx context.Context, phoneNumber string) (ports.CodeRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests++
	if a.codeReqErr != nil {
		return ports.CodeRequest{}, a.codeReqErr
	}
	return a.codeReq, nil
}

func (a *fakeAdapter) ConfirmCode(ctx context.Context, credential []byte, phoneNumber, code, token string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.confirmErr != nil {
		return nil, a.confirmErr
	}
	return a.confirmCred, nil
}

func (a *fakeAdapter) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// ── reporter ─────────────────────────────────────────────────────────────────

type fakeReporter struct {
	mu      sync.Mutex
	reports []domain.BroadcastReport
}

func (r *fakeReporter) Report(ctx context.Context, report domain.BroadcastReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}
