package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PayloadKind discriminates what a broadcast carries.
type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadImage    PayloadKind = "image"
	PayloadVideo    PayloadKind = "video"
	PayloadDocument PayloadKind = "document"
	PayloadVoice    PayloadKind = "voice"
)

// Valid reports whether k is a known payload kind.
func (k PayloadKind) Valid() bool {
	switch k {
	case PayloadText, PayloadImage, PayloadVideo, PayloadDocument, PayloadVoice:
		return true
	}
	return false
}

// Payload is the content of one broadcast: either plain text or media bytes
// with an optional caption in Text. Media is supplied by the caller already
// fetched; the bridge does not download anything itself.
type Payload struct {
	Kind     PayloadKind
	Text     string
	Media    []byte
	MimeType string
	FileName string
}

// Validate rejects payloads that cannot be sent before any network call is
// attempted.
func (p Payload) Validate() error {
	if !p.Kind.Valid() {
		return ErrInvalidPayload
	}
	if p.Kind == PayloadText {
		if p.Text == "" {
			return ErrInvalidPayload
		}
		return nil
	}
	if len(p.Media) == 0 {
		return ErrInvalidPayload
	}
	return nil
}

// DeliveryStatus is the per-target outcome of a broadcast.
type DeliveryStatus string

const (
	DeliverySent           DeliveryStatus = "sent"
	DeliverySentAfterRetry DeliveryStatus = "sent_after_retry"
	DeliveryFailed         DeliveryStatus = "failed"
	DeliverySkipped        DeliveryStatus = "skipped"
)

// DeliveryResult records the outcome for one target. Results are returned in
// input order so callers can zip them back to their target list.
type DeliveryResult struct {
	Target string         `json:"target"`
	Status DeliveryStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// ContactCheck is the outcome of probing whether a phone number has an
// account on a network.
type ContactCheck struct {
	PhoneNumber string `json:"phone_number"`
	Exists      bool   `json:"exists"`
	Error       string `json:"error,omitempty"`
}

// BroadcastReport is the audit record for one completed broadcast job,
// published to the queue for the audit worker.
type BroadcastReport struct {
	ID         uuid.UUID        `json:"id"`
	Network    Network          `json:"network"`
	OwnerID    string           `json:"owner_id"`
	OwnerRole  Role             `json:"owner_role"`
	Kind       PayloadKind      `json:"kind"`
	Results    []DeliveryResult `json:"results"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewBroadcastReport stamps a report for a finished job.
func NewBroadcastReport(network Network, owner Owner, kind PayloadKind, results []DeliveryResult, startedAt time.Time) BroadcastReport {
	return BroadcastReport{
		ID:         uuid.New(),
		Network:    network,
		OwnerID:    owner.ID,
		OwnerRole:  owner.Role,
		Kind:       kind,
		Results:    results,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
}

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrEmptyTargets   = errors.New("target list is empty")
)
