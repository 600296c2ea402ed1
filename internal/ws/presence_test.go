package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/protocol"
)

type staticPeers map[uuid.UUID][]uuid.UUID

func (p staticPeers) ListRelevantPeers(_ context.Context, userID uuid.UUID, _ int) ([]uuid.UUID, error) {
	return p[userID], nil
}

type mapMirror struct {
	mu     sync.Mutex
	states map[uuid.UUID]PresenceState
}

func (m *mapMirror) SetPresence(_ context.Context, userID uuid.UUID, online bool, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = PresenceState{Online: online, LastSeen: lastSeen}
	return nil
}

func (m *mapMirror) GetPresence(_ context.Context, userID uuid.UUID) (bool, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	return s.Online, s.LastSeen, ok, nil
}

func drainPresence(t *testing.T, c *Client) protocol.PresenceUpdate {
	t.Helper()
	select {
	case env := <-c.Outbound():
		require.Equal(t, protocol.TypePresenceUpdate, env.Type)
		var update protocol.PresenceUpdate
		require.NoError(t, json.Unmarshal(env.Data, &update))
		return update
	default:
		t.Fatalf("no presence update queued")
	}
	return protocol.PresenceUpdate{}
}

func TestPresenceAnnouncesToPeers(t *testing.T) {
	hub := NewHub()
	user, peer := uuid.New(), uuid.New()
	peerClient := NewClient(ConnInfo{})
	hub.Register(peer, peerClient)

	presence := NewPresence(hub, staticPeers{user: {peer, user}})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	presence.SetClock(func() time.Time { return now })

	presence.Online(context.Background(), user)
	update := drainPresence(t, peerClient)
	assert.True(t, update.Online)
	assert.Nil(t, update.LastSeen)

	now = now.Add(time.Minute)
	presence.Offline(context.Background(), user)
	update = drainPresence(t, peerClient)
	assert.False(t, update.Online)
	require.NotNil(t, update.LastSeen)
	assert.True(t, update.LastSeen.Equal(now))

	state, ok := presence.Get(context.Background(), user)
	require.True(t, ok)
	assert.False(t, state.Online)
}

func TestPresenceFallsBackToMirror(t *testing.T) {
	mirror := &mapMirror{states: map[uuid.UUID]PresenceState{}}
	remote := uuid.New()
	seen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mirror.states[remote] = PresenceState{Online: false, LastSeen: seen}

	presence := NewPresence(NewHub(), nil).WithMirror(mirror)
	state, ok := presence.Get(context.Background(), remote)
	require.True(t, ok)
	assert.True(t, state.LastSeen.Equal(seen))

	local := uuid.New()
	presence.Online(context.Background(), local)
	online, _, found, err := mirror.GetPresence(context.Background(), local)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, online)

	_, ok = presence.Get(context.Background(), uuid.New())
	assert.False(t, ok)
}

func TestTypingThrottle(t *testing.T) {
	typing := NewTyping(TypingThrottle)
	chat, user := uuid.New(), uuid.New()
	now := time.Now()

	assert.True(t, typing.Touch(chat, user, now))
	assert.False(t, typing.Touch(chat, user, now.Add(time.Second)))
	assert.True(t, typing.Touch(uuid.New(), user, now.Add(time.Second)))
	assert.True(t, typing.Touch(chat, user, now.Add(TypingThrottle)))

	typing.Forget(user)
	assert.True(t, typing.Touch(chat, user, now.Add(TypingThrottle+time.Millisecond)))
}
