package transport

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"golang-messaging-bridge/internal/app"
	"golang-messaging-bridge/internal/domain"
	"golang-messaging-bridge/internal/middleware"
	"golang-messaging-bridge/internal/ports"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler holds all HTTP handlers for the messaging bridge.
type Handler struct {
	sessions   *app.SessionManager
	registry   *app.DestinationRegistry
	dispatcher *app.BroadcastDispatcher
	log        *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(sessions *app.SessionManager, registry *app.DestinationRegistry, dispatcher *app.BroadcastDispatcher, log *slog.Logger) *Handler {
	return &Handler{sessions: sessions, registry: registry, dispatcher: dispatcher, log: log}
}

// Register mounts all routes onto the given Fiber router.
func (h *Handler) Register(router fiber.Router) {
	router.Post("/sessions/code", h.RequestCode)
	router.Post("/sessions/verify", h.VerifyCode)
	router.Post("/destinations", h.CreateDestination)
	router.Get("/destinations", h.ListDestinations)
	router.Delete("/destinations/:id", h.DeleteDestination)
	router.Post("/broadcasts", h.Broadcast)
	router.Post("/contacts/check", h.CheckContacts)
}

// ── Sessions ─────────────────────────────────────────────────────────────────

type requestCodeRequest struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phone_number"`
}

type requestCodeResponse struct {
	Token string `json:"token"`
}

// RequestCode asks the network to send a verification code.
//
// POST /sessions/code
// Body: { "network": "channel", "phone_number": "+..." }
func (h *Handler) RequestCode(c *fiber.Ctx) error {
	var req requestCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	network := domain.Network(req.Network)
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}

	token, err := h.sessions.RequestCode(c.Context(), middleware.Owner(c), network, req.PhoneNumber)
	if err != nil {
		return h.fail(c, "request code", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(requestCodeResponse{Token: token})
}

type verifyCodeRequest struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Token       string `json:"token"`
}

// VerifyCode submits the received code and completes verification.
//
// POST /sessions/verify
// Body: { "network": "channel", "phone_number": "+...", "code": "12345", "token": "..." }
func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	network := domain.Network(req.Network)
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}
	if req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code is required"})
	}

	if err := h.sessions.VerifyCode(c.Context(), middleware.Owner(c), network, req.PhoneNumber, req.Code); err != nil {
		return h.fail(c, "verify code", err)
	}

	return c.JSON(fiber.Map{"status": "verified"})
}

// ── Destinations ─────────────────────────────────────────────────────────────

type createDestinationRequest struct {
	Network     string `json:"network"`
	DisplayName string `json:"display_name"`
	CountryRef  string `json:"country_ref"`
	About       string `json:"about"`
	InviteCode  string `json:"invite_code"`
}

type destinationResponse struct {
	ID          string `json:"id"`
	Network     string `json:"network"`
	NativeID    string `json:"native_id"`
	DisplayName string `json:"display_name"`
	CountryRef  string `json:"country_ref"`
}

func toDestinationResponse(d domain.Destination) destinationResponse {
	return destinationResponse{
		ID:          d.ID.String(),
		Network:     string(d.Network),
		NativeID:    d.NativeID,
		DisplayName: d.DisplayName,
		CountryRef:  d.CountryRef,
	}
}

// CreateDestination creates a channel (channel network) or joins a group by
// invite code (device network) and registers it.
//
// POST /destinations
func (h *Handler) CreateDestination(c *fiber.Ctx) error {
	var req createDestinationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	network := domain.Network(req.Network)
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}

	d, err := h.registry.Create(c.Context(), middleware.Owner(c), network, req.DisplayName, req.CountryRef, ports.DestinationSpec{
		About:      req.About,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		return h.fail(c, "create destination", err)
	}

	return c.Status(fiber.StatusCreated).JSON(toDestinationResponse(d))
}

// ListDestinations returns the caller's registered destinations on a network.
//
// GET /destinations?network=channel
func (h *Handler) ListDestinations(c *fiber.Ctx) error {
	network := domain.Network(c.Query("network"))
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}

	list, err := h.registry.List(c.Context(), middleware.Owner(c), network)
	if err != nil {
		return h.fail(c, "list destinations", err)
	}

	out := make([]destinationResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDestinationResponse(d))
	}
	return c.JSON(fiber.Map{"count": len(out), "destinations": out})
}

// DeleteDestination tears a destination down and removes it from the
// registry.
//
// DELETE /destinations/:id
func (h *Handler) DeleteDestination(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a valid UUID"})
	}

	if err := h.registry.Delete(c.Context(), middleware.Owner(c), id); err != nil {
		return h.fail(c, "delete destination", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Broadcasts ───────────────────────────────────────────────────────────────

type broadcastRequest struct {
	Network        string   `json:"network"`
	Kind           string   `json:"kind"`
	Text           string   `json:"text"`
	Media          string   `json:"media"` // base64
	MimeType       string   `json:"mime_type"`
	FileName       string   `json:"file_name"`
	DestinationIDs []string `json:"destination_ids"`
	PhoneNumbers   []string `json:"phone_numbers"`
}

// Broadcast sends one payload to many destinations or contacts and returns
// the per-target results in input order.
//
// POST /broadcasts
func (h *Handler) Broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	network := domain.Network(req.Network)
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}
	if len(req.DestinationIDs) > 0 && len(req.PhoneNumbers) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "destination_ids and phone_numbers are mutually exclusive"})
	}

	payload, err := h.buildPayload(req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	owner := middleware.Owner(c)

	var results []domain.DeliveryResult
	switch {
	case len(req.DestinationIDs) > 0:
		ids := make([]uuid.UUID, 0, len(req.DestinationIDs))
		for _, raw := range req.DestinationIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "destination_ids must be valid UUIDs"})
			}
			ids = append(ids, id)
		}
		results, err = h.dispatcher.SendToDestinations(c.Context(), owner, network, payload, ids)

	case len(req.PhoneNumbers) > 0:
		results, err = h.dispatcher.SendToContacts(c.Context(), owner, network, payload, req.PhoneNumbers)

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "destination_ids or phone_numbers are required"})
	}

	if err != nil {
		return h.fail(c, "broadcast", err)
	}
	return c.JSON(fiber.Map{"count": len(results), "results": results})
}

func (h *Handler) buildPayload(req broadcastRequest) (domain.Payload, error) {
	payload := domain.Payload{
		Kind:     domain.PayloadKind(req.Kind),
		Text:     req.Text,
		MimeType: req.MimeType,
		FileName: req.FileName,
	}
	if req.Media != "" {
		media, err := base64.StdEncoding.DecodeString(req.Media)
		if err != nil {
			return domain.Payload{}, errors.New("media must be base64 encoded")
		}
		payload.Media = media
	}
	if err := payload.Validate(); err != nil {
		return domain.Payload{}, err
	}
	return payload, nil
}

// ── Contacts ─────────────────────────────────────────────────────────────────

type checkContactsRequest struct {
	Network      string   `json:"network"`
	PhoneNumbers []string `json:"phone_numbers"`
}

// CheckContacts reports which phone numbers have an account on a network.
//
// POST /contacts/check
func (h *Handler) CheckContacts(c *fiber.Ctx) error {
	var req checkContactsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	network := domain.Network(req.Network)
	if !network.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown network"})
	}

	checks, err := h.dispatcher.CheckContacts(c.Context(), middleware.Owner(c), network, req.PhoneNumbers)
	if err != nil {
		return h.fail(c, "check contacts", err)
	}
	return c.JSON(fiber.Map{"count": len(checks), "contacts": checks})
}

// ── Error mapping ────────────────────────────────────────────────────────────

// fail translates domain and adapter errors onto HTTP statuses.
func (h *Handler) fail(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidPhone),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrEmptyTargets),
		errors.Is(err, domain.ErrInvalidNetwork):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, domain.ErrInvalidOwner):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrDestinationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, domain.ErrSessionNotReady),
		errors.Is(err, domain.ErrVerificationMissing):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, ports.ErrCodeRejected),
		errors.Is(err, ports.ErrCodeExpired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, ports.ErrNotLinked):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, ports.ErrConnectionFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.Error(op, "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
