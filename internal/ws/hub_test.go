package ws

import (
	"testing"

	"github.com/google/uuid"

	"chat-core/internal/protocol"
)

func TestHubRegisterAndUnregisterCounts(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	first, second := NewClient(ConnInfo{}), NewClient(ConnInfo{})

	if n := hub.Register(user, first); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
	if n := hub.Register(user, second); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
	if n := hub.Unregister(user, first); n != 1 {
		t.Fatalf("expected 1 remaining session, got %d", n)
	}
	if !hub.Connected(user) {
		t.Fatalf("expected user to stay connected")
	}
	if n := hub.Unregister(user, second); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
	if hub.Connected(user) {
		t.Fatalf("expected user to be offline")
	}
	if n := hub.Unregister(user, second); n != 0 {
		t.Fatalf("expected unknown unregister to be ignored, got %d", n)
	}
}

func TestHubSendIfConnectedOffline(t *testing.T) {
	hub := NewHub()
	if hub.SendIfConnected(uuid.New(), protocol.Envelope{Type: protocol.TypeTyping}) {
		t.Fatalf("expected send to an offline user to report false")
	}
}

func TestHubSendReachesEverySession(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	first, second := NewClient(ConnInfo{}), NewClient(ConnInfo{})
	hub.Register(user, first)
	hub.Register(user, second)

	if !hub.SendIfConnected(user, protocol.Envelope{Type: protocol.TypeNewMessage}) {
		t.Fatalf("expected delivery")
	}
	for i, c := range []*Client{first, second} {
		select {
		case env := <-c.Outbound():
			if env.Type != protocol.TypeNewMessage {
				t.Fatalf("session %d got %s", i, env.Type)
			}
		default:
			t.Fatalf("session %d got nothing", i)
		}
	}
}

func TestHubDropsSlowSession(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	slow := NewClient(ConnInfo{})
	hub.Register(user, slow)

	for i := 0; i < SendBuffer; i++ {
		if !hub.SendIfConnected(user, protocol.Envelope{Type: protocol.TypeTyping}) {
			t.Fatalf("send %d should fit the buffer", i)
		}
	}
	if hub.SendIfConnected(user, protocol.Envelope{Type: protocol.TypeTyping}) {
		t.Fatalf("expected overflow to report false")
	}
	select {
	case <-slow.Dropped():
	default:
		t.Fatalf("expected slow session to be dropped")
	}
	if hub.Connected(user) {
		t.Fatalf("expected dropped session to be unregistered")
	}
}
