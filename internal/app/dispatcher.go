package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DispatcherConfig bounds the dispatcher's timing behaviour.
type DispatcherConfig struct {
	// PerItemTimeout caps each individual send attempt. A timed-out
	// attempt is a transient failure subject to the one-retry policy.
	PerItemTimeout time.Duration

	// RetryBackoff is the fixed pause before the single retry of a
	// transiently failed item.
	RetryBackoff time.Duration

	// ThrottleInterval is the fixed inter-item delay respecting the
	// external network's rate limits. Not counted as retry backoff.
	ThrottleInterval time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.PerItemTimeout <= 0 {
		c.PerItemTimeout = 15 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = 500 * time.Millisecond
	}
}

// BroadcastDispatcher sends one payload to many destinations or contacts,
// tracking per-item outcomes. One network connection is opened per job and
// torn down on every exit path; same-owner channel-network jobs and all
// device-network jobs are serialized (see jobLocks).
type BroadcastDispatcher struct {
	sessions *SessionManager
	registry *DestinationRegistry
	adapters Adapters
	reporter ports.DeliveryReporter
	cfg      DispatcherConfig
	locks    *jobLocks
	log      *slog.Logger
}

// NewBroadcastDispatcher wires the dispatcher. reporter may be nil, in
// which case no audit reports are published.
func NewBroadcastDispatcher(
	sessions *SessionManager,
	registry *DestinationRegistry,
	adapters Adapters,
	reporter ports.DeliveryReporter,
	cfg DispatcherConfig,
	log *slog.Logger,
) *BroadcastDispatcher {
	cfg.defaults()
	return &BroadcastDispatcher{
		sessions: sessions,
		registry: registry,
		adapters: adapters,
		reporter: reporter,
		cfg:      cfg,
		locks:    newJobLocks(),
		log:      log,
	}
}

const skipReasonCancelled = "cancelled"

// SendToDestinations broadcasts payload to the given destinations, in input
// order. The result list always has one entry per input id, in the same
// order. An unknown destination is skipped, not fatal; an unready session or
// failed connect fails the whole job before anything is attempted.
func (d *BroadcastDispatcher) SendToDestinations(ctx context.Context, owner domain.Owner, network domain.Network, payload domain.Payload, destinationIDs []uuid.UUID) ([]domain.DeliveryResult, error) {
	if err := validateJob(owner, payload, len(destinationIDs)); err != nil {
		return nil, err
	}

	label := func(i int) string { return destinationIDs[i].String() }
	resolve := func(ctx context.Context, conn ports.Conn, i int) (ports.Target, error) {
		_, target, err := d.registry.Resolve(ctx, destinationIDs[i])
		return target, err
	}
	return d.runJob(ctx, owner, network, payload, len(destinationIDs), label, resolve, domain.ErrDestinationNotFound)
}

// SendToContacts broadcasts payload to phone numbers, resolving each to its
// network-native account first. A number with no account on the network is
// skipped, not failed: that is an expected state, not an error.
func (d *BroadcastDispatcher) SendToContacts(ctx context.Context, owner domain.Owner, network domain.Network, payload domain.Payload, phoneNumbers []string) ([]domain.DeliveryResult, error) {
	if err := validateJob(owner, payload, len(phoneNumbers)); err != nil {
		return nil, err
	}

	label := func(i int) string { return phoneNumbers[i] }
	resolve := func(ctx context.Context, conn ports.Conn, i int) (ports.Target, error) {
		return conn.ResolveContact(ctx, phoneNumbers[i])
	}
	return d.runJob(ctx, owner, network, payload, len(phoneNumbers), label, resolve, ports.ErrContactNotFound)
}

func validateJob(owner domain.Owner, payload domain.Payload, targets int) error {
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}
	if targets == 0 {
		return domain.ErrEmptyTargets
	}
	return payload.Validate()
}

// resolveFn resolves the i-th target to the wire target a send addresses.
type resolveFn func(ctx context.Context, conn ports.Conn, i int) (ports.Target, error)

func (d *BroadcastDispatcher) runJob(ctx context.Context, owner domain.Owner, network domain.Network, payload domain.Payload, n int, label func(int) string, resolve resolveFn, skipErr error) ([]domain.DeliveryResult, error) {
	sess, err := d.sessions.Resolve(ctx, owner, network)
	if err != nil {
		return nil, err
	}

	adapter, err := d.adapters.For(network)
	if err != nil {
		return nil, err
	}

	release := d.locks.acquire(jobKey(network, owner))
	defer release()

	conn, err := adapter.Connect(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	startedAt := time.Now().UTC()
	limiter := rate.NewLimiter(rate.Every(d.cfg.ThrottleInterval), 1)
	results := make([]domain.DeliveryResult, 0, n)
	cancelled := false

	for i := 0; i < n; i++ {
		// Cooperative cancellation between items, never mid-send.
		if !cancelled && ctx.Err() != nil {
			cancelled = true
		}
		if !cancelled {
			if err := limiter.Wait(ctx); err != nil {
				cancelled = true
			}
		}
		if cancelled {
			results = append(results, domain.DeliveryResult{
				Target: label(i),
				Status: domain.DeliverySkipped,
				Error:  skipReasonCancelled,
			})
			continue
		}

		results = append(results, d.sendOne(ctx, conn, payload, label(i), resolve, i, skipErr))
	}

	d.publishReport(owner, network, payload.Kind, results, startedAt)
	return results, nil
}

// sendOne resolves and sends a single item, applying the one-retry policy
// for transient failures.
func (d *BroadcastDispatcher) sendOne(ctx context.Context, conn ports.Conn, payload domain.Payload, label string, resolve resolveFn, i int, skipErr error) domain.DeliveryResult {
	resolveCtx, cancel := context.WithTimeout(ctx, d.cfg.PerItemTimeout)
	target, err := resolve(resolveCtx, conn, i)
	cancel()
	if err != nil {
		if errors.Is(err, skipErr) {
			return domain.DeliveryResult{Target: label, Status: domain.DeliverySkipped, Error: err.Error()}
		}
		return domain.DeliveryResult{Target: label, Status: domain.DeliveryFailed, Error: err.Error()}
	}

	err = d.attempt(ctx, conn, target, payload)
	if err == nil {
		return domain.DeliveryResult{Target: label, Status: domain.DeliverySent}
	}

	if !ports.IsTransient(err) {
		return domain.DeliveryResult{Target: label, Status: domain.DeliveryFailed, Error: err.Error()}
	}

	// Transient: wait the fixed backoff, then exactly one retry.
	if !sleep(ctx, d.cfg.RetryBackoff) {
		return domain.DeliveryResult{Target: label, Status: domain.DeliveryFailed, Error: err.Error()}
	}
	if retryErr := d.attempt(ctx, conn, target, payload); retryErr != nil {
		return domain.DeliveryResult{Target: label, Status: domain.DeliveryFailed, Error: retryErr.Error()}
	}
	return domain.DeliveryResult{Target: label, Status: domain.DeliverySentAfterRetry}
}

// attempt performs one bounded send of the payload.
func (d *BroadcastDispatcher) attempt(ctx context.Context, conn ports.Conn, target ports.Target, payload domain.Payload) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PerItemTimeout)
	defer cancel()

	if payload.Kind == domain.PayloadText {
		return conn.SendText(ctx, target, payload.Text)
	}
	return conn.SendMedia(ctx, target, payload.Media, payload.MimeType, payload.Text)
}

// CheckContacts probes which phone numbers have an account on the network,
// one connection for the whole sweep, same throttle discipline as sends.
func (d *BroadcastDispatcher) CheckContacts(ctx context.Context, owner domain.Owner, network domain.Network, phoneNumbers []string) ([]domain.ContactCheck, error) {
	if !owner.Valid() {
		return nil, domain.ErrInvalidOwner
	}
	if len(phoneNumbers) == 0 {
		return nil, domain.ErrEmptyTargets
	}

	sess, err := d.sessions.Resolve(ctx, owner, network)
	if err != nil {
		return nil, err
	}
	adapter, err := d.adapters.For(network)
	if err != nil {
		return nil, err
	}

	release := d.locks.acquire(jobKey(network, owner))
	defer release()

	conn, err := adapter.Connect(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	limiter := rate.NewLimiter(rate.Every(d.cfg.ThrottleInterval), 1)
	checks := make([]domain.ContactCheck, 0, len(phoneNumbers))

	for _, phone := range phoneNumbers {
		if ctx.Err() != nil {
			checks = append(checks, domain.ContactCheck{PhoneNumber: phone, Error: skipReasonCancelled})
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			checks = append(checks, domain.ContactCheck{PhoneNumber: phone, Error: skipReasonCancelled})
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, d.cfg.PerItemTimeout)
		_, err := conn.ResolveContact(probeCtx, phone)
		cancel()

		switch {
		case err == nil:
			checks = append(checks, domain.ContactCheck{PhoneNumber: phone, Exists: true})
		case errors.Is(err, ports.ErrContactNotFound):
			checks = append(checks, domain.ContactCheck{PhoneNumber: phone, Exists: false})
		default:
			checks = append(checks, domain.ContactCheck{PhoneNumber: phone, Error: err.Error()})
		}
	}

	return checks, nil
}

// publishReport hands the job's audit record to the reporter. Best-effort:
// a queue outage must not fail a broadcast that already happened.
func (d *BroadcastDispatcher) publishReport(owner domain.Owner, network domain.Network, kind domain.PayloadKind, results []domain.DeliveryResult, startedAt time.Time) {
	if d.reporter == nil {
		return
	}

	report := domain.NewBroadcastReport(network, owner, kind, results, startedAt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.reporter.Report(ctx, report); err != nil {
		d.log.Error("publish broadcast report", "report_id", report.ID, "err", err)
		return
	}
	d.log.Info("broadcast report published", "report_id", report.ID, "results", len(results))
}

// sleep waits for dur unless ctx ends first. Reports whether the full wait
// elapsed.
func sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
