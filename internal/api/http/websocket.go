package httpapi

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/noisegrid/noise-data-aggregation/internal/noise"
)

// clientRequest is the only inbound message shape the stream supports.
type clientRequest struct {
	Type string `json:"type"`
}

// registerWebSocket mounts the /ws streaming endpoint. Each connection gets
// its own hub subscription; a connection that cannot keep up is dropped by
// the hub rather than allowed to stall the pipeline.
func registerWebSocket(app *fiber.App, service *noise.Service) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		sub, err := service.Subscribe()
		if err != nil {
			log.Printf("ws: subscribe rejected: %v", err)
			return
		}
		defer service.Unsubscribe(sub.ID())

		requests := make(chan clientRequest, 4)
		done := make(chan struct{})
		go readLoop(conn, requests, done)

		// Single writer per connection; fan-out messages and client request
		// replies are serialized here.
		for {
			select {
			case <-done:
				return
			case req := <-requests:
				if req.Type != "get_current_data" {
					continue
				}
				msg, err := json.Marshal(noise.NewEnvelope(noise.TypeSensorData, service.Snapshot()))
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case msg, ok := <-sub.Messages():
				if !ok {
					// Dropped by the hub or shutting down.
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}))
}

// readLoop consumes inbound frames until the connection errors out.
// Unknown or malformed requests are ignored; they never kill the stream.
func readLoop(conn *websocket.Conn, requests chan<- clientRequest, done chan<- struct{}) {
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		select {
		case requests <- req:
		default:
		}
	}
}
