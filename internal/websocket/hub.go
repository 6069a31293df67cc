// Package websocket provides WebSocket connection management and channel fan-out.
package websocket

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/leasehub/backend/internal/metrics"
)

// ErrSubscriptionDenied is returned when a client may not listen on a channel.
var ErrSubscriptionDenied = errors.New("subscription denied")

// ConversationAccess reports whether a user takes part in a conversation.
type ConversationAccess interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Relay carries published messages to every server instance, including
// this one. Messages come back in through Hub.Deliver.
type Relay interface {
	Publish(ctx context.Context, channel string, data []byte) error
}

type delivery struct {
	channel string
	data    []byte
}

// Hub maintains the set of active WebSocket clients and their channel
// subscriptions, and fans published messages out to subscribers.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Subscribers per channel
	channels map[string]map[*Client]bool

	// Messages to deliver to local subscribers
	deliveries chan delivery

	conversations ConversationAccess
	relay         Relay

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub. Conversation channels cannot be
// subscribed to until SetConversationAccess is called.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		deliveries: make(chan delivery, 256),
	}
}

// SetConversationAccess sets the participant check for conversation
// channels. Call before serving clients.
func (h *Hub) SetConversationAccess(a ConversationAccess) {
	h.conversations = a
}

// SetRelay routes publishes through r instead of delivering them directly.
// Call before Run.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run starts the hub's main event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			metrics.SetWebSocketClients(0)
			return

		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.channels[d.channel] {
		select {
		case client.send <- d.data:
		default:
			// Client send buffer full, drop the connection
			log.Printf("WebSocket client too slow, dropping: user=%s", client.userID)
			h.removeLocked(client)
		}
	}
}

// removeLocked drops a client and all its subscriptions. h.mu must be held.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for channel := range client.channels {
		if subs, ok := h.channels[channel]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	client.channels = nil
	close(client.send)
}

// Register adds a client to the hub. The client can subscribe as soon as
// Register returns.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetWebSocketClients(n)
	log.Printf("WebSocket client connected: user=%s (total: %d)", client.userID, n)
}

// Unregister removes a client and its subscriptions from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	h.removeLocked(client)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetWebSocketClients(n)
	log.Printf("WebSocket client disconnected: user=%s (total: %d)", client.userID, n)
}

// Authorize checks whether a user may subscribe to a channel.
func (h *Hub) Authorize(ctx context.Context, userID, channel string) error {
	kind, id, err := ParseChannel(channel)
	if err != nil {
		return err
	}

	switch kind {
	case ChannelKindNotifications:
		if id != userID {
			return ErrSubscriptionDenied
		}
		return nil
	case ChannelKindConversation:
		if h.conversations == nil {
			return ErrSubscriptionDenied
		}
		ok, err := h.conversations.IsParticipant(ctx, id, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSubscriptionDenied
		}
		return nil
	}
	return ErrSubscriptionDenied
}

// Subscribe authorizes and adds a channel subscription for the client.
// Subscribing to a channel the client already listens on is a no-op; added
// reports whether a new subscription was created.
func (h *Hub) Subscribe(ctx context.Context, client *Client, channel string) (added bool, err error) {
	if err := h.Authorize(ctx, client.userID, channel); err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return false, errors.New("client not registered")
	}
	if client.channels[channel] {
		return false, nil
	}

	client.channels[channel] = true
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]bool)
		h.channels[channel] = subs
	}
	subs[client] = true
	return true, nil
}

// Unsubscribe removes the client's subscription to exactly one channel.
func (h *Hub) Unsubscribe(client *Client, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.channels[channel] {
		return false
	}
	delete(client.channels, channel)
	if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	return true
}

// Publish sends a message to every subscriber of its channel.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	metrics.RecordPush(string(msg.Type))

	if h.relay != nil {
		err := h.relay.Publish(ctx, msg.Channel, data)
		if err == nil {
			return
		}
		log.Printf("Relay publish failed, delivering locally: %v", err)
	}
	h.Deliver(msg.Channel, data)
}

// Deliver queues raw message bytes for local subscribers of a channel.
func (h *Hub) Deliver(channel string, data []byte) {
	select {
	case h.deliveries <- delivery{channel: channel, data: data}:
	default:
		log.Printf("Delivery queue full, dropping message for %s", channel)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Client represents an authenticated WebSocket client connection.
type Client struct {
	hub      *Hub
	userID   string
	send     chan []byte
	channels map[string]bool // guarded by hub.mu
}

// NewClient creates a new WebSocket client for a user.
func NewClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:      hub,
		userID:   userID,
		send:     make(chan []byte, 256),
		channels: make(map[string]bool),
	}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() string {
	return c.userID
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

// Reply queues a message for this client only. It reports false if the
// client is gone or its buffer is full.
func (c *Client) Reply(msg Message) bool {
	data, err := msg.JSON()
	if err != nil {
		return false
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
