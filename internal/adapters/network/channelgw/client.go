// Package channelgw implements the channel-network adapter against the
// MTProto gateway sidecar. Every job opens one physical gateway session
// authenticated with the owner's credential blob and tears it down when the
// job ends.
package channelgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/ports"
)

// Client implements ports.NetworkAdapter for the channel network.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given gateway base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type codeRequestBody struct {
	PhoneNumber string `json:"phone_number"`
}

type codeRequestResponse struct {
	Token      string `json:"token"`
	Credential []byte `json:"credential"`
}

// RequestCode asks the gateway to send a verification code over a fresh
// unauthenticated session and returns the pending token plus the session
// blob the confirmation must resume from.
func (c *Client) RequestCode(ctx context.Context, phoneNumber string) (ports.CodeRequest, error) {
	var out codeRequestResponse
	if err := c.post(ctx, "/v1/auth/code", "", codeRequestBody{PhoneNumber: phoneNumber}, &out); err != nil {
		return ports.CodeRequest{}, err
	}
	if out.Token == "" {
		return ports.CodeRequest{}, fmt.Errorf("gateway returned empty verification token")
	}
	return ports.CodeRequest{Token: out.Token, Credential: out.Credential}, nil
}

type confirmCodeBody struct {
	Credential  []byte `json:"credential"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Token       string `json:"token"`
}

type confirmCodeResponse struct {
	Credential []byte `json:"credential"`
}

// ConfirmCode submits (phone, code, token) resuming from the unauthenticated
// credential and returns the authenticated credential blob.
func (c *Client) ConfirmCode(ctx context.Context, credential []byte, phoneNumber, code, token string) ([]byte, error) {
	var out confirmCodeResponse
	err := c.post(ctx, "/v1/auth/verify", "", confirmCodeBody{
		Credential:  credential,
		PhoneNumber: phoneNumber,
		Code:        code,
		Token:       token,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Credential) == 0 {
		return nil, fmt.Errorf("gateway returned empty credential")
	}
	return out.Credential, nil
}

type connectBody struct {
	Credential []byte `json:"credential"`
}

type connectResponse struct {
	Handle string `json:"handle"`
}

// Connect opens a gateway session for the owner's credential and returns a
// connection scoped to it.
func (c *Client) Connect(ctx context.Context, session domain.Session) (ports.Conn, error) {
	if len(session.Credential) == 0 {
		return nil, ports.ErrConnectionFailed
	}

	var out connectResponse
	if err := c.post(ctx, "/v1/connect", "", connectBody{Credential: session.Credential}, &out); err != nil {
		return nil, err
	}
	if out.Handle == "" {
		return nil, fmt.Errorf("gateway returned empty handle: %w", ports.ErrConnectionFailed)
	}
	return &conn{client: c, handle: out.Handle}, nil
}

// post sends a JSON body and decodes a JSON response, mapping gateway
// failures onto the adapter error taxonomy. handle, when non-empty, scopes
// the call to an open gateway session.
func (c *Client) post(ctx context.Context, path, handle string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if handle != "" {
		req.Header.Set("X-Gateway-Handle", handle)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ports.Transient(fmt.Errorf("gateway returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return mapGatewayError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyTransportErr marks network-level failures (timeouts, refused
// connections) as transient so the dispatcher retries them once.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return ports.Transient(err)
	}
	return ports.Transient(fmt.Errorf("gateway request: %w", err))
}

// mapGatewayError translates the gateway's 4xx error codes.
func mapGatewayError(resp *http.Response) error {
	var er errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)

	switch er.Error {
	case "code_rejected":
		return ports.ErrCodeRejected
	case "code_expired":
		return ports.ErrCodeExpired
	case "contact_not_found":
		return ports.ErrContactNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("credential rejected: %w", ports.ErrConnectionFailed)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ports.ErrContactNotFound
	}
	if er.Error != "" {
		return fmt.Errorf("gateway error: %s", er.Error)
	}
	return fmt.Errorf("gateway returned %d", resp.StatusCode)
}
