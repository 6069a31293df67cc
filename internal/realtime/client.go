// Package realtime is a client for the push channel served at /api/ws.
//
// A Client is owned by one session: create it on login, Close it on logout.
// Deliveries arrive on Go channels returned by Subscribe. Nothing is
// buffered or replayed across a disconnect; the REST API is the source of
// truth for anything missed.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leasehub/backend/internal/apperror"
)

// State is the connection state of a Client.
type State string

// Connection states
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Errors
var (
	ErrClosed       = apperror.Transport("realtime client closed")
	ErrNotConnected = apperror.Transport("realtime channel not connected")
	ErrNoToken      = apperror.Transport("no valid session token")
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 3 * time.Second

// TokenSource returns the current session token and whether it is still valid.
type TokenSource func() (token string, ok bool)

// RESTFallback posts a chat message over request/response when the push
// channel is down.
type RESTFallback func(ctx context.Context, conversationID, body string) error

// Delivery is one message received on a subscribed channel.
type Delivery struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Config configures a Client.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8080/api/ws.
	URL   string
	Token TokenSource

	ReconnectDelay time.Duration
	Fallback       RESTFallback

	OnError       func(error)
	OnStateChange func(State)

	// BufferSize is the capacity of each subscription channel.
	BufferSize int
	Dialer     *websocket.Dialer
}

type command struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Client is a push channel connection with per-channel subscriptions.
type Client struct {
	cfg Config

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	subs         map[string]chan Delivery
	closed       bool
	reconnecting bool
	done         chan struct{}

	writeMu sync.Mutex
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Token == nil {
		cfg.Token = func() (string, bool) { return "", false }
	}

	return &Client{
		cfg:   cfg,
		state: StateDisconnected,
		subs:  make(map[string]chan Delivery),
		done:  make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. On failure the client moves to the error state
// and keeps retrying in the background while the token stays valid.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.dial(ctx)
	if err != nil && !errors.Is(err, ErrNoToken) && !errors.Is(err, ErrClosed) {
		c.fail(nil, err)
	}
	return err
}

// Close tears the connection down for good. Subscription channels are closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	for name, ch := range c.subs {
		close(ch)
		delete(c.subs, name)
	}
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if changed {
		c.notifyState(StateDisconnected)
	}
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

// Subscribe registers interest in a channel and returns its delivery
// channel. Subscribing again returns the same Go channel. The registration
// is sent now if connected and again after every reconnect.
func (c *Client) Subscribe(channel string) (<-chan Delivery, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if ch, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		return ch, nil
	}
	ch := make(chan Delivery, c.cfg.BufferSize)
	c.subs[channel] = ch
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.write(conn, command{Type: "subscribe", Channel: channel}); err != nil {
			c.fail(conn, err)
		}
	}
	return ch, nil
}

// Unsubscribe removes exactly one channel registration and closes its
// delivery channel.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	ch, ok := c.subs[channel]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, channel)
	close(ch)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.write(conn, command{Type: "unsubscribe", Channel: channel}); err != nil {
			c.fail(conn, err)
			return err
		}
	}
	return nil
}

// Subscriptions returns the names of the active subscriptions.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.subs))
	for name := range c.subs {
		names = append(names, name)
	}
	return names
}

// SendMessage posts a chat message. It uses the push channel when connected
// and the REST fallback otherwise. A failed fallback is returned as is;
// nothing is queued or retried.
func (c *Client) SendMessage(ctx context.Context, conversationID, body string) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if conn != nil {
		err := c.write(conn, command{
			Type:    "send",
			Channel: "conversation:" + conversationID,
			Payload: map[string]string{"body": body},
		})
		if err == nil {
			return nil
		}
		c.fail(conn, err)
	}

	if c.cfg.Fallback == nil {
		return ErrNotConnected
	}
	if err := c.cfg.Fallback(ctx, conversationID, body); err != nil {
		return fmt.Errorf("sending message over REST: %w", err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	token, ok := c.cfg.Token()
	if !ok {
		c.transition(StateDisconnected)
		return ErrNoToken
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	if changed {
		c.notifyState(StateConnecting)
	}

	target, err := withToken(c.cfg.URL, token)
	if err != nil {
		return err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return apperror.Transport("dialing %s: %v", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	if c.conn != nil {
		// Another dial won the race.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	channels := make([]string, 0, len(c.subs))
	for name := range c.subs {
		channels = append(channels, name)
	}
	changed = c.setStateLocked(StateConnected)
	c.mu.Unlock()
	if changed {
		c.notifyState(StateConnected)
	}

	go c.readLoop(conn)

	for _, name := range channels {
		if err := c.write(conn, command{Type: "subscribe", Channel: name}); err != nil {
			c.fail(conn, err)
			return nil
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(conn, apperror.Transport("reading push channel: %v", err))
			return
		}

		var d Delivery
		if err := json.Unmarshal(data, &d); err != nil {
			log.Printf("Ignoring malformed push message: %v", err)
			continue
		}

		switch d.Type {
		case "subscribe.ack", "unsubscribe.ack", "pong":
			continue
		case "error":
			var p struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			json.Unmarshal(d.Payload, &p)
			c.report(fmt.Errorf("server error %s: %s", p.Code, p.Message))
			continue
		}

		c.dispatch(d)
	}
}

// dispatch hands a delivery to its subscription, dropping it if the
// subscriber is not keeping up.
func (c *Client) dispatch(d Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.subs[d.Channel]
	if !ok {
		return
	}
	select {
	case ch <- d:
	default:
		log.Printf("Subscription %s full, dropping %s", d.Channel, d.Type)
	}
}

// fail handles a transport failure on conn. A nil conn means the failure
// happened before a connection existed. Failures of a replaced or closed
// connection are ignored.
func (c *Client) fail(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || (conn != nil && c.conn != conn) {
		c.mu.Unlock()
		return
	}
	if conn != nil {
		conn.Close()
		c.conn = nil
	}
	changed := c.setStateLocked(StateError)
	startLoop := !c.reconnecting
	c.reconnecting = true
	c.mu.Unlock()

	if changed {
		c.notifyState(StateError)
	}
	c.report(err)

	if startLoop {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()

		switch {
		case err == nil:
			return
		case errors.Is(err, ErrNoToken) || errors.Is(err, ErrClosed):
			return
		default:
			c.transition(StateError)
			c.report(err)
		}
	}
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		return apperror.Transport("writing push channel: %v", err)
	}
	return nil
}

func (c *Client) transition(s State) {
	c.mu.Lock()
	changed := c.setStateLocked(s)
	c.mu.Unlock()
	if changed {
		c.notifyState(s)
	}
}

func (c *Client) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Client) notifyState(s State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

func (c *Client) report(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

func withToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing push channel URL: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
