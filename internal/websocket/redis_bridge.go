package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayTopic is the Redis pub/sub topic shared by all server instances.
const DefaultRelayTopic = "leasehub:push"

type relayEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// RedisBridge relays hub publishes through Redis pub/sub so clients
// connected to any instance receive them.
type RedisBridge struct {
	rdb   *redis.Client
	topic string
	hub   *Hub
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(ctx context.Context, addr string, hub *Hub) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisBridge{rdb: rdb, topic: DefaultRelayTopic, hub: hub}, nil
}

// Publish implements Relay.
func (b *RedisBridge) Publish(ctx context.Context, channel string, data []byte) error {
	payload, err := json.Marshal(relayEnvelope{Channel: channel, Data: data})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.topic, payload).Err()
}

// Run receives relayed messages and hands them to the local hub until ctx
// is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.topic, err)
	}
	log.Printf("Redis relay subscribed to %s", b.topic)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Ignoring malformed relay message: %v", err)
				continue
			}
			b.hub.Deliver(env.Channel, env.Data)
		}
	}
}

// Close closes the Redis connection.
func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
