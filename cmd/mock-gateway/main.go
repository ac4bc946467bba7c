// mock-gateway emulates both external network gateways for local
// development: the channel gateway's HTTP API on one port and the
// device gateway's websocket on another. Behaviour knobs are deliberately
// simple: verification code "000000" is rejected, phone numbers ending in
// "99" have no account on either network.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	httpAddr := getenv("HTTP_ADDR", ":9090")
	wsAddr := getenv("WS_ADDR", ":9091")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fiberApp := newChannelGateway(log)
	go func() {
		log.Info("mock channel gateway listening", "addr", httpAddr)
		if err := fiberApp.Listen(httpAddr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	wsServer := &http.Server{Addr: wsAddr, Handler: deviceGatewayHandler(log)}
	go func() {
		log.Info("mock device gateway listening", "addr", wsAddr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ws listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-gateway")
	_ = fiberApp.Shutdown()
	_ = wsServer.Close()
}

// ── Channel gateway (HTTP) ───────────────────────────────────────────────────

type gatewayState struct {
	mu      sync.Mutex
	handles map[string]bool
}

func newChannelGateway(log *slog.Logger) *fiber.App {
	state := &gatewayState{handles: make(map[string]bool)}

	app := fiber.New(fiber.Config{AppName: "mock-channel-gateway", DisableStartupMessage: true})

	app.Post("/v1/auth/code", func(c *fiber.Ctx) error {
		var req struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		log.Info("code requested", "phone", req.PhoneNumber)
		return c.JSON(fiber.Map{
			"token":      uuid.New().String(),
			"credential": []byte("pending:" + req.PhoneNumber),
		})
	})

	app.Post("/v1/auth/verify", func(c *fiber.Ctx) error {
		var req struct {
			PhoneNumber string `json:"phone_number"`
			Code        string `json:"code"`
			Token       string `json:"token"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		if req.Code == "000000" {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "code_rejected"})
		}
		log.Info("code verified", "phone", req.PhoneNumber)
		return c.JSON(fiber.Map{"credential": []byte("verified:" + req.PhoneNumber)})
	})

	app.Post("/v1/connect", func(c *fiber.Ctx) error {
		var req struct {
			Credential []byte `json:"credential"`
		}
		if err := c.BodyParser(&req); err != nil || len(req.Credential) == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "bad credential"})
		}
		handle := uuid.New().String()
		state.mu.Lock()
		state.handles[handle] = true
		state.mu.Unlock()
		return c.JSON(fiber.Map{"handle": handle})
	})

	app.Delete("/v1/connect/:handle", func(c *fiber.Ctx) error {
		state.mu.Lock()
		delete(state.handles, c.Params("handle"))
		state.mu.Unlock()
		return c.SendStatus(fiber.StatusNoContent)
	})

	requireHandle := func(c *fiber.Ctx) error {
		handle := c.Get("X-Gateway-Handle")
		state.mu.Lock()
		ok := state.handles[handle]
		state.mu.Unlock()
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unknown handle"})
		}
		return c.Next()
	}

	v1 := app.Group("/v1", requireHandle)

	v1.Post("/contacts/resolve", func(c *fiber.Ctx) error {
		var req struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		if strings.HasSuffix(req.PhoneNumber, "99") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact_not_found"})
		}
		return c.JSON(fiber.Map{"native_id": "user-" + req.PhoneNumber})
	})

	v1.Post("/channels", func(c *fiber.Ctx) error {
		var req struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&req); err != nil || req.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		return c.JSON(fiber.Map{
			"native_id":     uuid.New().String(),
			"access_secret": uuid.New().String(),
		})
	})

	v1.Post("/channels/delete", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	v1.Post("/messages/text", func(c *fiber.Ctx) error {
		log.Info("mock channel text delivered")
		return c.SendStatus(fiber.StatusOK)
	})

	v1.Post("/messages/media", func(c *fiber.Ctx) error {
		log.Info("mock channel media delivered")
		return c.SendStatus(fiber.StatusOK)
	})

	return app
}

// ── Device gateway (websocket) ───────────────────────────────────────────────

func deviceGatewayHandler(log *slog.Logger) http.Handler {
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// The mock device is always linked.
		_ = ws.WriteJSON(map[string]any{"event": "linked"})

		for {
			var req struct {
				ID     string          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			log.Info("mock device request", "method", req.Method, "id", req.ID)
			_ = ws.WriteJSON(handleDeviceRequest(req.ID, req.Method, req.Params))
		}
	})
	return mux
}

func handleDeviceRequest(id, method string, params json.RawMessage) map[string]any {
	switch method {
	case "send_text", "send_media", "leave_group":
		return map[string]any{"id": id, "ok": true, "result": map[string]any{}}

	case "resolve_contact":
		var p struct {
			PhoneNumber string `json:"phone_number"`
		}
		_ = json.Unmarshal(params, &p)
		if strings.HasSuffix(p.PhoneNumber, "99") {
			return map[string]any{"id": id, "ok": true, "result": map[string]any{"exists": false}}
		}
		return map[string]any{"id": id, "ok": true, "result": map[string]any{
			"exists": true,
			"jid":    strings.TrimPrefix(p.PhoneNumber, "+") + "@mock.device",
		}}

	case "join_group":
		return map[string]any{"id": id, "ok": true, "result": map[string]any{
			"jid": uuid.New().String() + "@g.mock.device",
		}}
	}
	return map[string]any{"id": id, "ok": false, "error": "unknown method"}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
