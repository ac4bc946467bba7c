// Package devicegw implements the device-network adapter. The external
// network binds one physical device per deployment, so the whole process
// shares a single websocket to the linked-device gateway. A background
// supervisor owns the socket lifecycle: it dials, reads, and re-dials after
// a drop with a fixed pause; the request path never triggers a relink.
package devicegw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"

	"github.com/gorilla/websocket"
)

// Client implements ports.NetworkAdapter for the device network.
type Client struct {
	url            string
	reconnectEvery time.Duration
	log            *slog.Logger

	mu      sync.Mutex
	ws      *websocket.Conn
	linked  bool
	pending map[string]chan response

	writeMu sync.Mutex
	nextID  atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Client for the gateway websocket URL. Run must be started
// before the client can serve requests.
func New(url string, reconnectEvery time.Duration, log *slog.Logger) *Client {
	if reconnectEvery <= 0 {
		reconnectEvery = 5 * time.Second
	}
	return &Client{
		url:            url,
		reconnectEvery: reconnectEvery,
		log:            log,
		pending:        make(map[string]chan response),
		done:           make(chan struct{}),
	}
}

// frame is the wire format in both directions. Requests carry id+method,
// responses echo the id, and unsolicited frames carry an event name.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

type response struct {
	result json.RawMessage
	err    error
}

// Run supervises the shared socket until ctx is cancelled or Close is
// called. It blocks; start it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := c.connectAndRead(ctx); err != nil {
			c.log.Warn("device gateway connection lost", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(c.reconnectEvery):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial device gateway: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.log.Info("device gateway connected", "url", c.url)

	defer func() {
		ws.Close()
		c.mu.Lock()
		c.ws = nil
		c.linked = false
		// Unblock every in-flight request; the socket they were written
		// to is gone.
		for id, ch := range c.pending {
			ch <- response{err: ports.Transient(fmt.Errorf("connection dropped"))}
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		switch {
		case f.Event != "":
			c.handleEvent(f)
		case f.ID != "":
			c.dispatch(f)
		}
	}
}

func (c *Client) handleEvent(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch f.Event {
	case "linked":
		c.linked = true
		c.log.Info("device linked")
	case "unlinked":
		c.linked = false
		c.log.Warn("device unlinked; QR pairing required")
	}
}

func (c *Client) dispatch(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if !f.OK {
		ch <- response{err: mapGatewayError(f.Error)}
		return
	}
	ch <- response{result: f.Result}
}

func mapGatewayError(msg string) error {
	switch msg {
	case "contact_not_found":
		return ports.ErrContactNotFound
	case "not_linked":
		return ports.ErrNotLinked
	}
	return fmt.Errorf("gateway error: %s", msg)
}

// request writes one frame and waits for its correlated response.
func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan response, 1)

	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return nil, ports.ErrNotLinked
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = ws.WriteJSON(frame{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ports.Transient(fmt.Errorf("write frame: %w", err))
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ports.Transient(ctx.Err())
		}
		return nil, ctx.Err()
	case resp := <-ch:
		return resp.result, resp.err
	}
}

// Connect returns the shared connection. The session is ignored: the device
// network has exactly one identity per deployment, paired out of band via
// QR code. Fails with ErrNotLinked when the socket is down or the pairing
// has not completed.
func (c *Client) Connect(ctx context.Context, session domain.Session) (ports.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil || !c.linked {
		return nil, ports.ErrNotLinked
	}
	return &sharedConn{client: c}, nil
}

// RequestCode is unsupported: linking happens by QR pairing, not phone
// verification.
func (c *Client) RequestCode(ctx context.Context, phoneNumber string) (ports.CodeRequest, error) {
	return ports.CodeRequest{}, ports.ErrVerificationUnsupported
}

// ConfirmCode is unsupported for the same reason as RequestCode.
func (c *Client) ConfirmCode(ctx context.Context, credential []byte, phoneNumber, code, token string) ([]byte, error) {
	return nil, ports.ErrVerificationUnsupported
}

// Close tears down the shared socket and stops the supervisor.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return c.ws.Close()
	}
	return nil
}
