package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/messaging"
	ws "github.com/leasehub/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers authenticate with the access_token query parameter,
		// so the origin carries no credentials worth checking.
		return true
	},
}

// WebSocketUpgrade returns a handler that upgrades authenticated HTTP
// connections to the push channel.
func WebSocketUpgrade(hub *ws.Hub, msgs *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		client := ws.NewClient(hub, actor.UserID)
		hub.Register(client)

		// Start read and write pumps
		go writePump(conn, client)
		go readPump(conn, client, hub, &commandHandler{hub: hub, msgs: msgs, actor: actor})
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps commands from the WebSocket connection to the handler.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, h *commandHandler) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		h.handle(client, message)
	}
}

type commandHandler struct {
	hub   *ws.Hub
	msgs  *messaging.Service
	actor auth.Actor
}

// handle processes one client command and replies on the client's socket.
func (h *commandHandler) handle(client *ws.Client, raw []byte) {
	var cmd ws.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		client.Reply(errorMessage("", "bad_request", "Malformed command", ""))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cmd.Type {
	case ws.TypePing:
		client.Reply(ws.NewMessage(ws.TypePong, "", nil))

	case ws.TypeSubscribe:
		if _, err := h.hub.Subscribe(ctx, client, cmd.Channel); err != nil {
			client.Reply(errorMessage(cmd.Channel, "forbidden", "Cannot subscribe to channel", string(cmd.Type)))
			return
		}
		client.Reply(ws.NewMessage(ws.TypeSubscribeAck, cmd.Channel, nil))

	case ws.TypeUnsubscribe:
		h.hub.Unsubscribe(client, cmd.Channel)
		client.Reply(ws.NewMessage(ws.TypeUnsubscribeAck, cmd.Channel, nil))

	case ws.TypeSend:
		h.send(ctx, client, cmd)

	default:
		client.Reply(errorMessage(cmd.Channel, "bad_request", "Unknown command", string(cmd.Type)))
	}
}

func (h *commandHandler) send(ctx context.Context, client *ws.Client, cmd ws.Command) {
	kind, conversationID, err := ws.ParseChannel(cmd.Channel)
	if err != nil || kind != ws.ChannelKindConversation {
		client.Reply(errorMessage(cmd.Channel, "bad_request", "Messages can only be sent to conversation channels", string(cmd.Type)))
		return
	}

	var p ws.SendPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		client.Reply(errorMessage(cmd.Channel, "bad_request", "Malformed send payload", string(cmd.Type)))
		return
	}

	if _, err := h.msgs.Send(ctx, h.actor, conversationID, p.Body); err != nil {
		code, message := "internal_error", "Failed to send message"
		switch {
		case errors.Is(err, apperror.ErrValidation):
			code, message = "validation_error", apperror.Message(err)
		case errors.Is(err, apperror.ErrNotFound):
			code, message = "not_found", apperror.Message(err)
		default:
			log.Printf("WebSocket send from %s failed: %v", h.actor.UserID, err)
		}
		client.Reply(errorMessage(cmd.Channel, code, message, string(cmd.Type)))
	}
}

func errorMessage(channel, code, message, originalType string) ws.Message {
	return ws.NewMessage(ws.TypeError, channel, ws.ErrorPayload{
		Code:         code,
		Message:      message,
		OriginalType: originalType,
	})
}
