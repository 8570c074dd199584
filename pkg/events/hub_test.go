package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return Event{}
	}
}

func TestPublishRoutesByKey(t *testing.T) {
	hub := NewHub()
	sub := hub.Register(7, 8)

	hub.Publish(UserKey(7), TypeSessionConnected, "a")
	hub.Publish(UserKey(8), TypeSessionConnected, "other user")

	evt := drain(t, sub)
	assert.Equal(t, TypeSessionConnected, evt.Type)
	assert.Equal(t, "a", evt.Payload)

	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestSubscriberFIFO(t *testing.T) {
	hub := NewHub()
	sub := hub.Register(1, 16)
	hub.Join(sub, SessionKey("s1"))

	for i := 0; i < 5; i++ {
		hub.Publish(SessionKey("s1"), TypeBroadcastProgress, i)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, drain(t, sub).Payload)
	}
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	sub := hub.Register(1, 1)

	done := make(chan struct{})
	go func() {
		hub.Publish(UserKey(1), TypeMessageIncoming, "first")
		hub.Publish(UserKey(1), TypeMessageIncoming, "dropped")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	assert.Equal(t, "first", drain(t, sub).Payload)
}

func TestUnregisterSweepsAllKeys(t *testing.T) {
	hub := NewHub()
	sub := hub.Register(1, 4)
	hub.Join(sub, SessionKey("s1"))
	hub.Join(sub, BroadcastKey(9))

	hub.Unregister(sub)

	// Channel is closed; publishing afterwards must not panic.
	hub.Publish(SessionKey("s1"), TypeSessionQR, nil)
	hub.Publish(BroadcastKey(9), TypeBroadcastProgress, nil)

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestPublishToUserAndSession(t *testing.T) {
	hub := NewHub()
	userSub := hub.Register(3, 4)
	sessionSub := hub.Register(4, 4)
	hub.Join(sessionSub, SessionKey("abc"))

	hub.PublishToUserAndSession(3, "abc", TypeSessionQR, "payload")

	require.Equal(t, "payload", drain(t, userSub).Payload)
	require.Equal(t, "payload", drain(t, sessionSub).Payload)
}
