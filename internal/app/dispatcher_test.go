package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOwner = domain.Owner{ID: "owner-1", Role: domain.RoleSales}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() DispatcherConfig {
	return DispatcherConfig{
		PerItemTimeout:   200 * time.Millisecond,
		RetryBackoff:     time.Millisecond,
		ThrottleInterval: time.Millisecond,
	}
}

type testEnv struct {
	sessions     *fakeSessionStore
	destinations *fakeDestinationStore
	adapter      *fakeAdapter
	reporter     *fakeReporter
	manager      *SessionManager
	registry     *DestinationRegistry
	dispatcher   *BroadcastDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions:     newFakeSessionStore(),
		destinations: newFakeDestinationStore(),
		adapter:      newFakeAdapter(),
		reporter:     &fakeReporter{},
	}
	adapters := Adapters{
		domain.NetworkChannel: env.adapter,
		domain.NetworkDevice:  env.adapter,
	}
	log := testLogger()
	env.manager = NewSessionManager(env.sessions, adapters, log)
	env.registry = NewDestinationRegistry(env.manager, env.destinations, adapters, log)
	env.dispatcher = NewBroadcastDispatcher(env.manager, env.registry, adapters, env.reporter, fastConfig(), log)
	return env
}

// seedVerified stores an authenticated channel session for testOwner.
func (e *testEnv) seedVerified(t *testing.T) {
	t.Helper()
	err := e.sessions.Upsert(context.Background(), domain.Session{
		Network:     domain.NetworkChannel,
		Owner:       testOwner,
		PhoneNumber: "+15550001",
		Credential:  []byte("authenticated"),
	})
	require.NoError(t, err)
}

// seedDestination stores an addressable channel destination and returns it.
func (e *testEnv) seedDestination(t *testing.T, nativeID string) domain.Destination {
	t.Helper()
	d := domain.NewDestination(domain.NetworkChannel, testOwner, "Team "+nativeID, "ref-1", nativeID, "secret-"+nativeID)
	require.NoError(t, e.destinations.Save(context.Background(), d))
	return d
}

func textPayload() domain.Payload {
	return domain.Payload{Kind: domain.PayloadText, Text: "hello"}
}

func TestSendToDestinationsPreservesOrderAndSkipsUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)

	first := env.seedDestination(t, "101")
	missing := uuid.New()
	third := env.seedDestination(t, "103")
	ids := []uuid.UUID{first.ID, missing, third.ID}

	results, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, textPayload(), ids)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, first.ID.String(), results[0].Target)
	assert.Equal(t, domain.DeliverySent, results[0].Status)

	assert.Equal(t, missing.String(), results[1].Target)
	assert.Equal(t, domain.DeliverySkipped, results[1].Status)
	assert.NotEmpty(t, results[1].Error)

	assert.Equal(t, third.ID.String(), results[2].Target)
	assert.Equal(t, domain.DeliverySent, results[2].Status)

	assert.Equal(t, 1, env.adapter.connectCount())
	assert.Equal(t, 1, env.adapter.conn.closeCount())
	assert.Equal(t, []string{"101", "103"}, env.adapter.conn.sentTargets())
	assert.Equal(t, 1, env.reporter.count())
}

func TestSendToDestinationsRetriesTransientOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)

	recovers := env.seedDestination(t, "201")
	exhausts := env.seedDestination(t, "202")
	permanent := env.seedDestination(t, "203")

	env.adapter.conn.scriptSend("201", ports.Transient(errors.New("socket dropped")), nil)
	env.adapter.conn.scriptSend("202", ports.Transient(errors.New("gateway 503")), ports.Transient(errors.New("gateway 503")))
	env.adapter.conn.scriptSend("203", errors.New("message rejected"))

	results, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, textPayload(),
		[]uuid.UUID{recovers.ID, exhausts.ID, permanent.ID})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.DeliverySentAfterRetry, results[0].Status)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, domain.DeliveryFailed, results[1].Status)
	assert.NotEmpty(t, results[1].Error)

	assert.Equal(t, domain.DeliveryFailed, results[2].Status)
	assert.NotEmpty(t, results[2].Error)

	// One retry for each transient target, none for the permanent failure.
	assert.Equal(t, []string{"201", "201", "202", "202", "203"}, env.adapter.conn.sentTargets())
}

func TestSendToDestinationsRequiresVerifiedSession(t *testing.T) {
	env := newTestEnv(t)
	// Pending session only: token still set.
	require.NoError(t, env.sessions.Upsert(context.Background(), domain.NewPendingSession(
		domain.NetworkChannel, testOwner, "+15550001", "tok", []byte("pre-login"))))
	d := env.seedDestination(t, "301")

	results, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, textPayload(), []uuid.UUID{d.ID})
	require.ErrorIs(t, err, domain.ErrSessionNotReady)
	assert.Nil(t, results)
	assert.Equal(t, 0, env.adapter.connectCount())
	assert.Equal(t, 0, env.reporter.count())
}

func TestSendToDestinationsValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)

	_, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, textPayload(), nil)
	require.ErrorIs(t, err, domain.ErrEmptyTargets)

	d := env.seedDestination(t, "401")
	_, err = env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel,
		domain.Payload{Kind: domain.PayloadText}, []uuid.UUID{d.ID})
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = env.dispatcher.SendToDestinations(context.Background(), domain.Owner{}, domain.NetworkChannel, textPayload(), []uuid.UUID{d.ID})
	require.ErrorIs(t, err, domain.ErrInvalidOwner)

	assert.Equal(t, 0, env.adapter.connectCount())
}

func TestSendToDestinationsFailsJobWhenConnectFails(t *testing.T) {
	env := newTestEnv(t)
	env.adapter.connectErr = ports.ErrNotLinked
	d := env.seedDestination(t, "501")

	results, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkDevice, textPayload(), []uuid.UUID{d.ID})
	require.ErrorIs(t, err, ports.ErrNotLinked)
	assert.Nil(t, results)
}

func TestSendToContactsSkipsUnknownNumbers(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)
	env.adapter.conn.contacts["+1000"] = "native-1000"

	results, err := env.dispatcher.SendToContacts(context.Background(), testOwner, domain.NetworkChannel, textPayload(),
		[]string{"+1000", "+2000"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "+1000", results[0].Target)
	assert.Equal(t, domain.DeliverySent, results[0].Status)

	assert.Equal(t, "+2000", results[1].Target)
	assert.Equal(t, domain.DeliverySkipped, results[1].Status)
	assert.Contains(t, results[1].Error, "contact not found")

	assert.Equal(t, []string{"native-1000"}, env.adapter.conn.sentTargets())
}

func TestSendToDestinationsSkipsRemainingOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)

	ids := []uuid.UUID{
		env.seedDestination(t, "601").ID,
		env.seedDestination(t, "602").ID,
		env.seedDestination(t, "603").ID,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.adapter.conn.afterSend = cancel

	results, err := env.dispatcher.SendToDestinations(ctx, testOwner, domain.NetworkChannel, textPayload(), ids)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.DeliverySent, results[0].Status)
	for _, r := range results[1:] {
		assert.Equal(t, domain.DeliverySkipped, r.Status)
		assert.Equal(t, "cancelled", r.Error)
	}
	// The connection is torn down even on the cancel path.
	assert.Equal(t, 1, env.adapter.conn.closeCount())
}

func TestSendMediaPayloadUsesMediaSend(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)
	d := env.seedDestination(t, "701")

	payload := domain.Payload{
		Kind:     domain.PayloadImage,
		Text:     "caption",
		Media:    []byte{0x89, 0x50},
		MimeType: "image/png",
	}
	results, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, payload, []uuid.UUID{d.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.DeliverySent, results[0].Status)
}

func TestSameOwnerJobsAreSerialized(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)
	env.adapter.conn.sendDelay = 5 * time.Millisecond

	ids := []uuid.UUID{
		env.seedDestination(t, "801").ID,
		env.seedDestination(t, "802").ID,
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.dispatcher.SendToDestinations(context.Background(), testOwner, domain.NetworkChannel, textPayload(), ids)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), env.adapter.conn.maxInFlight)
	assert.Equal(t, 4, env.adapter.connectCount())
}

func TestCheckContactsReportsExistence(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)
	env.adapter.conn.contacts["+1000"] = "native-1000"

	checks, err := env.dispatcher.CheckContacts(context.Background(), testOwner, domain.NetworkChannel, []string{"+1000", "+2000"})
	require.NoError(t, err)
	require.Len(t, checks, 2)

	assert.True(t, checks[0].Exists)
	assert.Empty(t, checks[0].Error)
	assert.False(t, checks[1].Exists)
	assert.Empty(t, checks[1].Error)

	assert.Equal(t, 1, env.adapter.conn.closeCount())
}

func TestCheckContactsRejectsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t)

	_, err := env.dispatcher.CheckContacts(context.Background(), testOwner, domain.NetworkChannel, nil)
	require.ErrorIs(t, err, domain.ErrEmptyTargets)
}
