package channelgw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayStub records requests and serves scripted JSON responses per path.
type gatewayStub struct {
	mu        sync.Mutex
	requests  []stubRequest
	responses map[string]stubResponse
}

type stubRequest struct {
	Method string
	Path   string
	Handle string
	Body   map[string]any
}

type stubResponse struct {
	Status int
	Body   any
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{responses: make(map[string]stubResponse)}
}

func (g *gatewayStub) respond(path string, status int, body any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[path] = stubResponse{Status: status, Body: body}
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	g.mu.Lock()
	g.requests = append(g.requests, stubRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Handle: r.Header.Get("X-Gateway-Handle"),
		Body:   body,
	})
	resp, ok := g.responses[r.URL.Path]
	g.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}")) //nolint:errcheck
		return
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}

func (g *gatewayStub) last() stubRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *gatewayStub) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func newTestClient(t *testing.T) (*Client, *gatewayStub) {
	t.Helper()
	stub := newGatewayStub()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return New(srv.URL), stub
}

func verifiedSession() domain.Session {
	return domain.Session{
		Network:     domain.NetworkChannel,
		Owner:       domain.Owner{ID: "owner-1", Role: domain.RoleSales},
		PhoneNumber: "+15550001",
		Credential:  []byte("authenticated"),
	}
}

func TestRequestCodeReturnsTokenAndCredential(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/auth/code", http.StatusOK, map[string]any{
		"token":      "tok-1",
		"credential": []byte("pre-login"),
	})

	cr, err := client.RequestCode(context.Background(), "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cr.Token)
	assert.Equal(t, []byte("pre-login"), cr.Credential)

	req := stub.last()
	assert.Equal(t, "/v1/auth/code", req.Path)
	assert.Equal(t, "+15550001", req.Body["phone_number"])
	assert.Empty(t, req.Handle)
}

func TestConfirmCodeMapsRejection(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/auth/verify", http.StatusUnprocessableEntity, map[string]any{"error": "code_rejected"})

	_, err := client.ConfirmCode(context.Background(), []byte("pre-login"), "+15550001", "000000", "tok-1")
	require.ErrorIs(t, err, ports.ErrCodeRejected)

	stub.respond("/v1/auth/verify", http.StatusUnprocessableEntity, map[string]any{"error": "code_expired"})
	_, err = client.ConfirmCode(context.Background(), []byte("pre-login"), "+15550001", "123456", "tok-1")
	require.ErrorIs(t, err, ports.ErrCodeExpired)
}

func TestConnectCarriesHandleOnSubsequentCalls(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusOK, map[string]any{"handle": "h-1"})

	conn, err := client.Connect(context.Background(), verifiedSession())
	require.NoError(t, err)

	require.NoError(t, conn.SendText(context.Background(), ports.Target{NativeID: "123", NativeSecret: "s"}, "hi"))
	req := stub.last()
	assert.Equal(t, "/v1/messages/text", req.Path)
	assert.Equal(t, "h-1", req.Handle)
	assert.Equal(t, "123", req.Body["channel_id"])
	assert.Equal(t, "s", req.Body["access_secret"])
	assert.Equal(t, "hi", req.Body["text"])

	require.NoError(t, conn.Close())
	req = stub.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/v1/connect/h-1", req.Path)
}

func TestConnectRejectsEmptyCredential(t *testing.T) {
	client, _ := newTestClient(t)

	sess := verifiedSession()
	sess.Credential = nil
	_, err := client.Connect(context.Background(), sess)
	require.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestConnectMapsAuthFailure(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusUnauthorized, map[string]any{"error": "auth_key_invalid"})

	_, err := client.Connect(context.Background(), verifiedSession())
	require.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestServerErrorsAreTransient(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusBadGateway, nil)

	_, err := client.Connect(context.Background(), verifiedSession())
	require.Error(t, err)
	assert.True(t, ports.IsTransient(err))
}

func TestResolveContactNotFound(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusOK, map[string]any{"handle": "h-1"})
	stub.respond("/v1/contacts/resolve", http.StatusNotFound, map[string]any{"error": "contact_not_found"})

	conn, err := client.Connect(context.Background(), verifiedSession())
	require.NoError(t, err)

	_, err = conn.ResolveContact(context.Background(), "+15559999")
	require.ErrorIs(t, err, ports.ErrContactNotFound)
}

func TestCreateDestinationRequiresCompleteIdentifiers(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusOK, map[string]any{"handle": "h-1"})
	stub.respond("/v1/channels", http.StatusOK, map[string]any{"native_id": "777", "access_secret": ""})

	conn, err := client.Connect(context.Background(), verifiedSession())
	require.NoError(t, err)

	_, err = conn.CreateDestination(context.Background(), ports.DestinationSpec{DisplayName: "News"})
	require.Error(t, err)

	stub.respond("/v1/channels", http.StatusOK, map[string]any{"native_id": "777", "access_secret": "abc"})
	ref, err := conn.CreateDestination(context.Background(), ports.DestinationSpec{DisplayName: "News", About: "daily"})
	require.NoError(t, err)
	assert.Equal(t, "777", ref.NativeID)
	assert.Equal(t, "abc", ref.NativeSecret)

	req := stub.last()
	assert.Equal(t, "News", req.Body["title"])
	assert.Equal(t, "daily", req.Body["about"])
}

func TestCloseIsIdempotent(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusOK, map[string]any{"handle": "h-1"})

	conn, err := client.Connect(context.Background(), verifiedSession())
	require.NoError(t, err)

	before := stub.requestCount()
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	// Exactly one DELETE on the wire for two Close calls.
	assert.Equal(t, before+1, stub.requestCount())
}

func TestCloseTreatsUnknownHandleAsClosed(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/connect", http.StatusOK, map[string]any{"handle": "h-gone"})
	stub.respond("/v1/connect/h-gone", http.StatusNotFound, nil)

	conn, err := client.Connect(context.Background(), verifiedSession())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestRequestCodeRejectsEmptyToken(t *testing.T) {
	client, stub := newTestClient(t)
	stub.respond("/v1/auth/code", http.StatusOK, map[string]any{"token": ""})

	_, err := client.RequestCode(context.Background(), "+15550001")
	require.Error(t, err)
}
