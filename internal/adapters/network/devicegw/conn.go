package devicegw

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-messaging-bridge/internal/ports"
)

// sharedConn is a view onto the client's shared socket. Close is a no-op:
// the supervisor owns the socket, and a job must never tear down the
// connection other jobs are serialized behind.
type sharedConn struct {
	client *Client
}

type sendTextParams struct {
	JID  string `json:"jid"`
	Text string `json:"text"`
}

func (c *sharedConn) SendText(ctx context.Context, target ports.Target, text string) error {
	_, err := c.client.request(ctx, "send_text", sendTextParams{JID: target.NativeID, Text: text})
	return err
}

type sendMediaParams struct {
	JID      string `json:"jid"`
	Media    []byte `json:"media"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

func (c *sharedConn) SendMedia(ctx context.Context, target ports.Target, media []byte, mimeType, caption string) error {
	_, err := c.client.request(ctx, "send_media", sendMediaParams{
		JID:      target.NativeID,
		Media:    media,
		MimeType: mimeType,
		Caption:  caption,
	})
	return err
}

type resolveContactParams struct {
	PhoneNumber string `json:"phone_number"`
}

type resolveContactResult struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

func (c *sharedConn) ResolveContact(ctx context.Context, phoneNumber string) (ports.Target, error) {
	raw, err := c.client.request(ctx, "resolve_contact", resolveContactParams{PhoneNumber: phoneNumber})
	if err != nil {
		return ports.Target{}, err
	}
	var out resolveContactResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.Target{}, fmt.Errorf("decode resolve result: %w", err)
	}
	if !out.Exists || out.JID == "" {
		return ports.Target{}, ports.ErrContactNotFound
	}
	return ports.Target{NativeID: out.JID}, nil
}

type joinGroupParams struct {
	InviteCode string `json:"invite_code"`
}

type joinGroupResult struct {
	JID string `json:"jid"`
}

// CreateDestination joins an existing group via its invite code; the group
// JID the gateway returns is the destination's only native identifier.
func (c *sharedConn) CreateDestination(ctx context.Context, spec ports.DestinationSpec) (ports.NativeRef, error) {
	if spec.InviteCode == "" {
		return ports.NativeRef{}, fmt.Errorf("invite code is required for device-network destinations")
	}
	raw, err := c.client.request(ctx, "join_group", joinGroupParams{InviteCode: spec.InviteCode})
	if err != nil {
		return ports.NativeRef{}, err
	}
	var out joinGroupResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.NativeRef{}, fmt.Errorf("decode join result: %w", err)
	}
	if out.JID == "" {
		return ports.NativeRef{}, fmt.Errorf("gateway returned empty group jid")
	}
	return ports.NativeRef{NativeID: out.JID}, nil
}

type leaveGroupParams struct {
	JID string `json:"jid"`
}

func (c *sharedConn) DeleteDestination(ctx context.Context, target ports.Target) error {
	_, err := c.client.request(ctx, "leave_group", leaveGroupParams{JID: target.NativeID})
	return err
}

func (c *sharedConn) Close() error { return nil }
