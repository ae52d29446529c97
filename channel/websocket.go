// Package channel exposes the assistant over transport endpoints. Channels
// never touch the turn log directly; every message funnels through the
// conversation manager's coalescing and the engine's turn queue.
package channel

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/aide-go/convo"
	"github.com/becomeliminal/aide-go/engine"
)

// ChannelWebSocket is the channel name recorded on messages arriving here.
const ChannelWebSocket = "websocket"

// TurnRunner runs one serialized turn. Satisfied by *engine.Engine.
type TurnRunner interface {
	HandleMessage(ctx context.Context, channel, content string, stream engine.StreamFunc) <-chan error
}

// Frame is the wire format in both directions.
//
// Inbound: {"type": "message", "content": "..."}
// Outbound: "chunk" frames while the response streams, then one "done",
// or one "error" if the turn failed.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// WebSocketHandler serves the assistant over a WebSocket connection.
type WebSocketHandler struct {
	runner   TurnRunner
	convo    *convo.Manager
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(runner TurnRunner, conversation *convo.Manager, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketHandler{
		runner: runner,
		convo:  conversation,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log.With("component", "channel.websocket"),
	}
}

// ServeHTTP upgrades the connection and pumps messages until the peer
// disconnects. Each connection is its own rapid-fire sender: quick
// follow-ups coalesce into one turn instead of queueing several.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sender := "ws-" + uuid.NewString()
	h.log.Info("websocket connected", "sender", sender, "remote", r.RemoteAddr)

	// gorilla allows one concurrent writer; the stream goroutine and error
	// paths share the connection.
	var writeMu sync.Mutex
	send := func(f Frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(f); err != nil {
			h.log.Debug("websocket write failed", "sender", sender, "error", err)
		}
	}

	ctx := r.Context()
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "sender", sender, "error", err)
			}
			h.convo.FlushRapidFire(sender, func(batched string) {
				h.runTurn(ctx, batched, send)
			})
			return
		}
		if frame.Type != "message" || frame.Content == "" {
			send(Frame{Type: "error", Content: "expected a message frame with content"})
			continue
		}

		h.convo.QueueRapidFire(sender, frame.Content, func(batched string) {
			h.runTurn(ctx, batched, send)
		})
	}
}

// runTurn feeds one coalesced batch through the engine, streaming chunks
// back as they arrive.
func (h *WebSocketHandler) runTurn(ctx context.Context, content string, send func(Frame)) {
	settled := h.runner.HandleMessage(ctx, ChannelWebSocket, content, func(chunk string, done bool) {
		if chunk != "" {
			send(Frame{Type: "chunk", Content: chunk})
		}
	})
	if err := <-settled; err != nil {
		h.log.Warn("turn failed", "error", err)
		send(Frame{Type: "error", Content: "Something went wrong handling that message. Please try again."})
		return
	}
	send(Frame{Type: "done"})
}
