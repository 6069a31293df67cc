package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversations map[string][]string

func (f fakeConversations) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	for _, id := range f[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	hub.SetConversationAccess(fakeConversations{"c1": {"tenant-1", "landlord-1"}})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send():
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel string
		kind    string
		id      string
		wantErr bool
	}{
		{"conversation:abc", ChannelKindConversation, "abc", false},
		{"user:u1:notifications", ChannelKindNotifications, "u1", false},
		{"conversation:", "", "", true},
		{"user:u1", "", "", true},
		{"lease:1", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			kind, id, err := ParseChannel(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, "tenant-1")
	hub.Register(client)

	added, err := hub.Subscribe(context.Background(), client, ConversationChannel("c1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = hub.Subscribe(context.Background(), client, ConversationChannel("c1"))
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, hub.SubscriberCount(ConversationChannel("c1")))

	hub.Publish(context.Background(), NewMessage(TypeMessageCreated, ConversationChannel("c1"), "hi"))
	assert.Equal(t, TypeMessageCreated, receive(t, client).Type)
	assertNothing(t, client)
}

func TestSubscribe_Authorization(t *testing.T) {
	hub := startHub(t)
	stranger := NewClient(hub, "stranger")
	hub.Register(stranger)
	ctx := context.Background()

	_, err := hub.Subscribe(ctx, stranger, ConversationChannel("c1"))
	assert.ErrorIs(t, err, ErrSubscriptionDenied)

	_, err = hub.Subscribe(ctx, stranger, UserChannel("tenant-1"))
	assert.ErrorIs(t, err, ErrSubscriptionDenied)

	_, err = hub.Subscribe(ctx, stranger, UserChannel("stranger"))
	assert.NoError(t, err)

	_, err = hub.Subscribe(ctx, stranger, "bogus")
	assert.Error(t, err)
}

func TestPublish_OnlySubscribers(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()

	tenant := NewClient(hub, "tenant-1")
	landlord := NewClient(hub, "landlord-1")
	hub.Register(tenant)
	hub.Register(landlord)
	assert.Equal(t, 2, hub.ClientCount())

	_, err := hub.Subscribe(ctx, tenant, UserChannel("tenant-1"))
	require.NoError(t, err)

	hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel("tenant-1"), map[string]string{"title": "Lease sent"}))

	msg := receive(t, tenant)
	assert.Equal(t, UserChannel("tenant-1"), msg.Channel)
	assertNothing(t, landlord)
}

func TestUnsubscribe_RemovesOnlyThatChannel(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	client := NewClient(hub, "tenant-1")
	hub.Register(client)

	_, err := hub.Subscribe(ctx, client, ConversationChannel("c1"))
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, client, UserChannel("tenant-1"))
	require.NoError(t, err)

	assert.True(t, hub.Unsubscribe(client, ConversationChannel("c1")))
	assert.False(t, hub.Unsubscribe(client, ConversationChannel("c1")))

	hub.Publish(ctx, NewMessage(TypeMessageCreated, ConversationChannel("c1"), "hi"))
	assertNothing(t, client)

	hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel("tenant-1"), "n"))
	assert.Equal(t, TypeNotificationCreated, receive(t, client).Type)
}

func TestSlowClientDropped(t *testing.T) {
	hub := startHub(t)
	ctx := context.Background()
	client := NewClient(hub, "tenant-1")
	hub.Register(client)
	_, err := hub.Subscribe(ctx, client, UserChannel("tenant-1"))
	require.NoError(t, err)

	for i := 0; i < cap(client.send); i++ {
		client.send <- []byte("{}")
	}

	hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel("tenant-1"), "overflow"))

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.SubscriberCount(UserChannel("tenant-1")))
	assert.False(t, client.Reply(NewMessage(TypePong, "", nil)))
}

func TestUnregister_ClosesSend(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, "tenant-1")
	hub.Register(client)
	hub.Unregister(client)

	_, ok := <-client.Send()
	assert.False(t, ok)

	_, err := hub.Subscribe(context.Background(), client, UserChannel("tenant-1"))
	assert.Error(t, err)
}

type loopbackRelay struct {
	hub  *Hub
	err  error
	sent int
}

func (r *loopbackRelay) Publish(ctx context.Context, channel string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.sent++
	r.hub.Deliver(channel, data)
	return nil
}

func TestPublish_ThroughRelay(t *testing.T) {
	hub := NewHub()
	relay := &loopbackRelay{hub: hub}
	hub.SetRelay(relay)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := NewClient(hub, "u1")
	hub.Register(client)
	_, err := hub.Subscribe(ctx, client, UserChannel("u1"))
	require.NoError(t, err)

	hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel("u1"), "via relay"))
	receive(t, client)
	assert.Equal(t, 1, relay.sent)

	relay.err = errors.New("redis down")
	hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel("u1"), "local fallback"))
	receive(t, client)
}

func TestConversationChannelWithoutAccessChecker(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, "u1")
	hub.Register(client)

	_, err := hub.Subscribe(context.Background(), client, ConversationChannel("c1"))
	assert.ErrorIs(t, err, ErrSubscriptionDenied)
}
