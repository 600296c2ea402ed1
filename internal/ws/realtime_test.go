package ws

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/memstore"
)

func TestReconnectDuringDisconnectEndsOnline(t *testing.T) {
	rt := NewRealtime(memstore.New().Chats())
	ctx := context.Background()
	user := uuid.New()
	first := NewClient(ConnInfo{})
	rt.Connect(ctx, user, first)

	entered := make(chan struct{})
	release := make(chan struct{})
	gated := true
	rt.Presence.SetClock(func() time.Time {
		if gated {
			gated = false
			close(entered)
			<-release
		}
		return time.Now().UTC()
	})

	disconnected := make(chan struct{})
	go func() {
		rt.Disconnect(ctx, user, first)
		close(disconnected)
	}()
	<-entered

	connected := make(chan struct{})
	go func() {
		rt.Connect(ctx, user, NewClient(ConnInfo{}))
		close(connected)
	}()

	select {
	case <-connected:
		t.Fatalf("reconnect finished while the offline write was still pending")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-disconnected
	<-connected

	assert.True(t, rt.Hub.Connected(user))
	state, ok := rt.Presence.Get(ctx, user)
	require.True(t, ok)
	assert.True(t, state.Online)
}
