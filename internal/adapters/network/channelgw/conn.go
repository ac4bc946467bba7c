package channelgw

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang-messaging-bridge/internal/ports"
)

// conn is one open gateway session. All calls carry the session handle; the
// gateway resolves it back to the owner's authenticated client.
type conn struct {
	client *Client
	handle string

	mu     sync.Mutex
	closed bool
}

type sendTextBody struct {
	ChannelID    string `json:"channel_id"`
	AccessSecret string `json:"access_secret"`
	Text         string `json:"text"`
}

func (c *conn) SendText(ctx context.Context, target ports.Target, text string) error {
	return c.client.post(ctx, "/v1/messages/text", c.handle, sendTextBody{
		ChannelID:    target.NativeID,
		AccessSecret: target.NativeSecret,
		Text:         text,
	}, nil)
}

type sendMediaBody struct {
	ChannelID    string `json:"channel_id"`
	AccessSecret string `json:"access_secret"`
	Media        []byte `json:"media"`
	MimeType     string `json:"mime_type"`
	Caption      string `json:"caption,omitempty"`
}

func (c *conn) SendMedia(ctx context.Context, target ports.Target, media []byte, mimeType, caption string) error {
	return c.client.post(ctx, "/v1/messages/media", c.handle, sendMediaBody{
		ChannelID:    target.NativeID,
		AccessSecret: target.NativeSecret,
		Media:        media,
		MimeType:     mimeType,
		Caption:      caption,
	}, nil)
}

type resolveContactBody struct {
	PhoneNumber string `json:"phone_number"`
}

type resolveContactResponse struct {
	NativeID string `json:"native_id"`
}

// ResolveContact performs the gateway's contact-import lookup.
func (c *conn) ResolveContact(ctx context.Context, phoneNumber string) (ports.Target, error) {
	var out resolveContactResponse
	if err := c.client.post(ctx, "/v1/contacts/resolve", c.handle, resolveContactBody{PhoneNumber: phoneNumber}, &out); err != nil {
		return ports.Target{}, err
	}
	if out.NativeID == "" {
		return ports.Target{}, ports.ErrContactNotFound
	}
	return ports.Target{NativeID: out.NativeID}, nil
}

type createChannelBody struct {
	Title string `json:"title"`
	About string `json:"about,omitempty"`
}

type createChannelResponse struct {
	NativeID     string `json:"native_id"`
	AccessSecret string `json:"access_secret"`
}

// CreateDestination creates a channel on the network side. Both native
// identifiers must come back; a channel without its access secret cannot be
// addressed later.
func (c *conn) CreateDestination(ctx context.Context, spec ports.DestinationSpec) (ports.NativeRef, error) {
	var out createChannelResponse
	if err := c.client.post(ctx, "/v1/channels", c.handle, createChannelBody{
		Title: spec.DisplayName,
		About: spec.About,
	}, &out); err != nil {
		return ports.NativeRef{}, err
	}
	if out.NativeID == "" || out.AccessSecret == "" {
		return ports.NativeRef{}, fmt.Errorf("gateway returned incomplete channel identifiers")
	}
	return ports.NativeRef{NativeID: out.NativeID, NativeSecret: out.AccessSecret}, nil
}

type deleteChannelBody struct {
	ChannelID    string `json:"channel_id"`
	AccessSecret string `json:"access_secret"`
}

func (c *conn) DeleteDestination(ctx context.Context, target ports.Target) error {
	return c.client.post(ctx, "/v1/channels/delete", c.handle, deleteChannelBody{
		ChannelID:    target.NativeID,
		AccessSecret: target.NativeSecret,
	}, nil)
}

// Close releases the gateway session. Idempotent; a handle the gateway no
// longer knows counts as closed.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.client.baseURL+"/v1/connect/"+c.handle, nil)
	if err != nil {
		return fmt.Errorf("new disconnect request: %w", err)
	}

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("disconnect returned %d", resp.StatusCode)
	}
	return nil
}
